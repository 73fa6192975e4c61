package clients

import (
	"context"
	"sort"
	"sync"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		clients: make(map[string]*Client),
	}
}

func (r *InMemoryRepo) Get(_ context.Context, clientID string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *client
	copied.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	return &copied, nil
}

func (r *InMemoryRepo) List(_ context.Context) ([]*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		copied := *c
		copied.RedirectURIs = append([]string(nil), c.RedirectURIs...)
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *InMemoryRepo) Upsert(_ context.Context, client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *client
	copied.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	r.clients[client.ID] = &copied
	return nil
}
