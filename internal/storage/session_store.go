package storage

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrSessionNotFound is returned when no snapshot exists for an account.
var ErrSessionNotFound = errors.New("session snapshot not found")

// SessionSnapshot is the part of an authenticated session that survives a restart.
type SessionSnapshot struct {
	SteamID string                    `json:"steam_id"`
	Cookies map[string][]*http.Cookie `json:"cookies"` // keyed by the URL the cookies were set for
	SavedAt time.Time                 `json:"saved_at"`
}

// SessionStore persists session snapshots by account name.
type SessionStore interface {
	Load(ctx context.Context, account string) (*SessionSnapshot, error)
	Save(ctx context.Context, account string, snapshot *SessionSnapshot) error
	Delete(ctx context.Context, account string) error
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*SessionSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*SessionSnapshot)}
}

func (s *MemoryStore) Load(_ context.Context, account string) (*SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[account]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return snapshot, nil
}

func (s *MemoryStore) Save(_ context.Context, account string, snapshot *SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[account] = snapshot
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, account)
	return nil
}
