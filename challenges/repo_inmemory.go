package challenges

import (
	"context"
	"sync"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of Repo. Expired
// entries are dropped lazily on access; there is no background sweep.
type InMemoryRepo struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		challenges: make(map[string]*Challenge),
	}
}

func (r *InMemoryRepo) Insert(_ context.Context, challenge *Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *challenge
	r.challenges[challenge.Challenge] = &copied
	return nil
}

func (r *InMemoryRepo) Consume(_ context.Context, challenge string) (*Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.challenges[challenge]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.challenges, challenge)
	copied := *stored
	return &copied, nil
}
