package clients

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// OriginCache holds a TTL-bounded snapshot of the CORS origins derived from
// every registered client's trusted redirect URIs, plus any statically
// configured origins. It is shared by all in-flight requests; refresh is
// last-writer-wins and staleness up to the TTL is by design. On a store
// outage the last known good snapshot keeps serving.
type OriginCache struct {
	repo    Repo
	static  []string
	ttl     time.Duration
	nowFunc func() time.Time

	mu          sync.RWMutex
	snapshot    map[string]struct{}
	lastRefresh time.Time
}

// OriginCacheOption configures an OriginCache.
type OriginCacheOption func(*OriginCache)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) OriginCacheOption {
	return func(c *OriginCache) {
		c.nowFunc = now
	}
}

func NewOriginCache(repo Repo, static []string, ttl time.Duration, options ...OriginCacheOption) *OriginCache {
	c := &OriginCache{
		repo:     repo,
		static:   static,
		ttl:      ttl,
		nowFunc:  time.Now,
		snapshot: make(map[string]struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// IsAllowed reports whether origin may make cross-origin requests,
// refreshing the snapshot first if it is stale.
func (c *OriginCache) IsAllowed(ctx context.Context, origin string) bool {
	c.refreshIfStale(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.snapshot[origin]
	return ok
}

// Origins returns the current snapshot, refreshing it first if stale.
func (c *OriginCache) Origins(ctx context.Context) []string {
	c.refreshIfStale(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	origins := make([]string, 0, len(c.snapshot))
	for o := range c.snapshot {
		origins = append(origins, o)
	}
	return origins
}

func (c *OriginCache) refreshIfStale(ctx context.Context) {
	c.mu.RLock()
	stale := c.nowFunc().Sub(c.lastRefresh) >= c.ttl
	c.mu.RUnlock()
	if !stale {
		return
	}

	allClients, err := c.repo.List(ctx)
	if err != nil {
		// Keep serving the last known good snapshot rather than failing
		// every cross-origin request.
		log.Error().Err(err).Msg("origin cache refresh failed, serving stale snapshot")
		return
	}

	snapshot := make(map[string]struct{})
	for _, o := range c.static {
		snapshot[o] = struct{}{}
	}
	for _, client := range allClients {
		for _, uri := range client.RedirectURIs {
			origin, ok := originOf(uri)
			if !ok {
				continue // malformed URIs are skipped
			}
			snapshot[origin] = struct{}{}
		}
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.lastRefresh = c.nowFunc()
	c.mu.Unlock()
}

// originOf extracts scheme://host[:port] from a redirect URI.
func originOf(uri string) (string, bool) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return parsed.Scheme + "://" + parsed.Host, true
}
