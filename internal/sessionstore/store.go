package sessionstore

import (
	"context"
	"sync"

	"github.com/quickread/quickread-backend/internal/domain"
)

// Store persists per-session state keyed by the opaque session id. Get on an
// unknown id returns (nil, nil); the lifecycle manager creates on demand.
type Store interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore is the single-node default, also used throughout the tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]domain.Session{}}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := sess
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
