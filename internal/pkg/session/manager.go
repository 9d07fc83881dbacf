package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Rubix982/django-photo-edit/internal/pkg/router"
)

type ctxKey struct{}

var sessionKey ctxKey

// Manager binds sessions to requests through a cookie.
type Manager struct {
	store  Store
	cookie string
	maxAge time.Duration
	secure bool
}

type ManagerOption func(*Manager) *Manager

func WithCookieName(name string) ManagerOption {
	return func(m *Manager) *Manager {
		m.cookie = name
		return m
	}
}

func WithMaxAge(d time.Duration) ManagerOption {
	return func(m *Manager) *Manager {
		m.maxAge = d
		return m
	}
}

func WithSecureCookie(secure bool) ManagerOption {
	return func(m *Manager) *Manager {
		m.secure = secure
		return m
	}
}

func NewManager(store Store, opts ...ManagerOption) *Manager {
	if store == nil {
		panic("session store is required")
	}

	m := &Manager{
		store:  store,
		cookie: "sessionid",
		maxAge: 14 * 24 * time.Hour,
	}
	for _, opt := range opts {
		m = opt(m)
	}

	return m
}

// Middleware attaches the request's session to its context. A missing or
// expired cookie yields a fresh, unsaved session.
func (m *Manager) Middleware() router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := m.load(r)
			if err != nil {
				slog.Error("failed to load session",
					"error", err,
					"method", r.Method,
					"url", r.URL.String(),
					"remote_addr", r.RemoteAddr,
				)
				s = newSession()
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), s)))
		})
	}
}

func (m *Manager) load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.cookie)
	if err != nil || c.Value == "" {
		return newSession(), nil
	}

	s, err := m.store.Load(r.Context(), c.Value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newSession(), nil
		}
		return nil, err
	}

	return s, nil
}

// Save persists the session and (re)issues its cookie. It must run before
// the response header is written.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Save(ctx, s, m.maxAge); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.dirty = false

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    s.Key,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Rotate gives the session a new key, dropping the old one. Used on login
// so a pre-auth session id cannot be reused.
func (m *Manager) Rotate(ctx context.Context, s *Session) error {
	old := s.Key
	s.Key = newKey()
	s.dirty = true

	if err := m.store.Delete(ctx, old); err != nil {
		return fmt.Errorf("delete old session: %w", err)
	}

	return nil
}

// Destroy removes the session from the store and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.Invalidate(ctx, s); err != nil {
		return err
	}

	m.ExpireCookie(w)
	return nil
}

// Invalidate deletes the stored session and resets s to an empty one.
func (m *Manager) Invalidate(ctx context.Context, s *Session) error {
	if err := m.store.Delete(ctx, s.Key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	*s = *newSession()
	return nil
}

func (m *Manager) ExpireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the request's session. Outside the middleware it
// returns a fresh session so callers never deal with nil.
func FromContext(ctx context.Context) *Session {
	s, ok := ctx.Value(sessionKey).(*Session)
	if !ok || s == nil {
		return newSession()
	}
	return s
}
