// Package session keeps per-browser state on the server, keyed by a random
// cookie. A session holds the signed-in user and queued flash messages.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

type Session struct {
	Key     string            `json:"-"`
	UserID  int64             `json:"user_id,omitempty"`
	Flashes []Flash           `json:"flashes,omitempty"`
	Values  map[string]string `json:"values,omitempty"`

	dirty bool
}

// Store persists sessions by key.
type Store interface {
	Load(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func newSession() *Session {
	return &Session{
		Key:    newKey(),
		Values: make(map[string]string),
	}
}

func (s *Session) Authenticated() bool {
	return s.UserID != 0
}

func (s *Session) SetUser(id int64) {
	s.UserID = id
	s.dirty = true
}

func (s *Session) AddFlash(level Level, text string) {
	s.Flashes = append(s.Flashes, Flash{Level: level, Text: text})
	s.dirty = true
}

// PopFlashes returns the queued messages and clears the queue.
func (s *Session) PopFlashes() []Flash {
	if len(s.Flashes) == 0 {
		return nil
	}

	f := s.Flashes
	s.Flashes = nil
	s.dirty = true
	return f
}

func (s *Session) Set(key, val string) {
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[key] = val
	s.dirty = true
}

func (s *Session) Get(key string) (string, bool) {
	val, ok := s.Values[key]
	return val, ok
}

// Modified reports whether the session changed since it was loaded.
func (s *Session) Modified() bool {
	return s.dirty
}

// Save implements oauth.Env so the OAuth state can live in the session.
func (s *Session) Save(key, val string) error {
	s.Set(key, val)
	return nil
}

// Load implements oauth.Env.
func (s *Session) Load(key string) (string, error) {
	val, ok := s.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func newKey() string {
	b := make([]byte, 32)

	// rand.Read never returns an error
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
