package token

import (
	"context"
	"sync"
	"time"
)

// Blacklist records access tokens proven invalid or expired at verification
// time, keyed by jti, so known-bad tokens short-circuit without another
// cryptographic check. Entries need not outlive the token they describe.
type Blacklist interface {
	Add(ctx context.Context, jti string, revokedAt, expiresAt time.Time) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// InMemoryBlacklist is a simple in-memory implementation.
type InMemoryBlacklist struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

var _ Blacklist = (*InMemoryBlacklist)(nil)

func NewInMemoryBlacklist() *InMemoryBlacklist {
	return &InMemoryBlacklist{
		revoked: make(map[string]time.Time),
	}
}

func (b *InMemoryBlacklist) Add(_ context.Context, jti string, _, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[jti] = expiresAt
	return nil
}

func (b *InMemoryBlacklist) Contains(_ context.Context, jti string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.revoked[jti]
	return exists, nil
}

// Cleanup removes entries whose tokens have expired anyway.
func (b *InMemoryBlacklist) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for jti, exp := range b.revoked {
		if now.After(exp) {
			delete(b.revoked, jti)
		}
	}
}
