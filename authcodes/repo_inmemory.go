package authcodes

import (
	"context"
	"sync"
	"time"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu    sync.Mutex
	codes map[string]*AuthCode
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		codes: make(map[string]*AuthCode),
	}
}

func (r *InMemoryRepo) Insert(_ context.Context, code *AuthCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *code
	r.codes[code.Code] = &copied
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, code string) (*AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *InMemoryRepo) MarkUsed(_ context.Context, code string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.codes[code]
	if !ok {
		return ErrNotFound
	}
	if stored.Used {
		return ErrAlreadyUsed
	}
	stored.Used = true
	usedAt := at
	stored.UsedAt = &usedAt
	return nil
}
