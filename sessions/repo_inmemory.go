package sessions

import (
	"context"
	"sync"
	"time"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]*Session),
	}
}

func (r *InMemoryRepo) Insert(_ context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *session
	r.sessions[session.RefreshToken] = &copied
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, refreshToken string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[refreshToken]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *InMemoryRepo) Revoke(_ context.Context, refreshToken string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[refreshToken]
	if !ok {
		return ErrNotFound
	}
	if stored.Revoked {
		return ErrAlreadyRevoked
	}
	stored.Revoked = true
	revokedAt := at
	stored.RevokedAt = &revokedAt
	return nil
}
