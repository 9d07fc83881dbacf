package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// sweepInterval is how often Save drops expired entries.
const sweepInterval = time.Minute

type memoryEntry struct {
	raw     []byte
	expires time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemoryStore keeps sessions in process memory. Sessions are stored
// serialized so callers never share a *Session between requests.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]memoryEntry
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (m *MemoryStore) Load(ctx context.Context, key string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[key]
	if ok && e.expired(m.now()) {
		delete(m.sessions, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}

	var s Session
	if err := json.Unmarshal(e.raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.Key = key

	return &s, nil
}

// Save stores s until ttl elapses. A zero ttl keeps it until deleted.
func (m *MemoryStore) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	now := m.now()
	e := memoryEntry{raw: raw}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.Key] = e
	if now.Sub(m.lastSweep) >= sweepInterval {
		m.sweep(now)
		m.lastSweep = now
	}

	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()

	return nil
}

// Len counts stored sessions, expired ones included until the next sweep.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryStore) sweep(now time.Time) {
	for key, e := range m.sessions {
		if e.expired(now) {
			delete(m.sessions, key)
		}
	}
}
