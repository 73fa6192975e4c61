// Package redisstore provides Redis-backed implementations of the entity
// repositories, enabling horizontal scaling of the authorization server.
// Records are stored as JSON under prefixed keys with TTL-backed expiry;
// single-use transitions (code redemption, session revocation) use SetNX
// marker keys so exactly one concurrent caller wins.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/chainsso/go-signon-server/authcodes"
	"github.com/chainsso/go-signon-server/challenges"
	"github.com/chainsso/go-signon-server/clients"
	"github.com/chainsso/go-signon-server/sessions"
	"github.com/chainsso/go-signon-server/token"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// usedMarkerRetention extends the used/revoked marker past the expiry of the
// record it guards, so a late replay still reads as reuse rather than unknown.
// Markers always take the record's remaining lifetime plus this retention; a
// marker that lapsed before its record would resurrect a revoked token.
const usedMarkerRetention = time.Hour

// Key segments under the store prefix.
const (
	keyTypeClient      = "client"
	keyTypeClientIndex = "clients"
	keyTypeChallenge   = "challenge"
	keyTypeAuthCode    = "authcode"
	keyTypeCodeUsed    = "authcode:used"
	keyTypeSession     = "session"
	keyTypeRevoked     = "session:revoked"
	keyTypeBlacklist   = "blacklist"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store wraps a Redis client and exposes the entity repositories. All repos
// share one connection pool and one key prefix.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New connects to Redis and verifies connectivity before returning.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("[redisstore.New] address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[redisstore.New] ping")
	}

	return &Store{client: client, prefix: cfg.KeyPrefix}, nil
}

// NewWithClient creates a Store with a pre-configured client. This is useful
// for testing with miniredis.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Store {
	return &Store{client: client, prefix: keyPrefix}
}

// Close closes the Redis client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity (health check).
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Clients returns the client registry backed by this store.
func (s *Store) Clients() clients.Repo { return &clientRepo{s} }

// Challenges returns the challenge repo backed by this store.
func (s *Store) Challenges() challenges.Repo { return &challengeRepo{s} }

// AuthCodes returns the auth code repo backed by this store.
func (s *Store) AuthCodes() authcodes.Repo { return &authCodeRepo{s} }

// Sessions returns the session repo backed by this store.
func (s *Store) Sessions() sessions.Repo { return &sessionRepo{s} }

// Blacklist returns the access token blacklist backed by this store.
func (s *Store) Blacklist() *RedisBlacklist { return &RedisBlacklist{s} }

func (s *Store) key(kind, id string) string {
	return s.prefix + kind + ":" + id
}

// ttlUntil returns the storage TTL for a record expiring at exp. Records
// already past expiry get a minimal TTL rather than living forever.
func ttlUntil(exp time.Time, extra time.Duration) time.Duration {
	ttl := time.Until(exp) + extra
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

// -----------------------
// clients.Repo
// -----------------------

type clientRepo struct {
	store *Store
}

var _ clients.Repo = (*clientRepo)(nil)

func (r *clientRepo) Get(ctx context.Context, clientID string) (*clients.Client, error) {
	data, err := r.store.client.Get(ctx, r.store.key(keyTypeClient, clientID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, clients.ErrNotFound
		}
		return nil, errors.Wrap(err, "[clientRepo.Get]")
	}

	var client clients.Client
	if err := json.Unmarshal(data, &client); err != nil {
		return nil, errors.Wrap(err, "[clientRepo.Get] unmarshal")
	}
	return &client, nil
}

func (r *clientRepo) List(ctx context.Context) ([]*clients.Client, error) {
	indexKey := r.store.key(keyTypeClientIndex, "all")
	ids, err := r.store.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(err, "[clientRepo.List] index")
	}

	list := make([]*clients.Client, 0, len(ids))
	for _, id := range ids {
		client, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, clients.ErrNotFound) {
				// Client was deleted out of band, clean up the index.
				_ = r.store.client.SRem(ctx, indexKey, id).Err()
				continue
			}
			return nil, err
		}
		list = append(list, client)
	}
	return list, nil
}

func (r *clientRepo) Upsert(ctx context.Context, client *clients.Client) error {
	if client == nil || client.ID == "" {
		return errors.New("[clientRepo.Upsert] client ID is required")
	}

	data, err := json.Marshal(client)
	if err != nil {
		return errors.Wrap(err, "[clientRepo.Upsert] marshal")
	}

	// Clients are registered out of band and do not expire.
	if err := r.store.client.Set(ctx, r.store.key(keyTypeClient, client.ID), data, 0).Err(); err != nil {
		return errors.Wrap(err, "[clientRepo.Upsert]")
	}
	return errors.Wrap(
		r.store.client.SAdd(ctx, r.store.key(keyTypeClientIndex, "all"), client.ID).Err(),
		"[clientRepo.Upsert] index",
	)
}

// -----------------------
// challenges.Repo
// -----------------------

type challengeRepo struct {
	store *Store
}

var _ challenges.Repo = (*challengeRepo)(nil)

func (r *challengeRepo) Insert(ctx context.Context, challenge *challenges.Challenge) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return errors.Wrap(err, "[challengeRepo.Insert] marshal")
	}

	key := r.store.key(keyTypeChallenge, challenge.Challenge)
	return errors.Wrap(
		r.store.client.Set(ctx, key, data, ttlUntil(challenge.ExpiresAt, 0)).Err(),
		"[challengeRepo.Insert]",
	)
}

func (r *challengeRepo) Consume(ctx context.Context, challenge string) (*challenges.Challenge, error) {
	// GETDEL makes read-and-remove a single step; concurrent consumers get
	// at most one non-nil result.
	data, err := r.store.client.GetDel(ctx, r.store.key(keyTypeChallenge, challenge)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, challenges.ErrNotFound
		}
		return nil, errors.Wrap(err, "[challengeRepo.Consume]")
	}

	var stored challenges.Challenge
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrap(err, "[challengeRepo.Consume] unmarshal")
	}
	return &stored, nil
}

// -----------------------
// authcodes.Repo
// -----------------------

type authCodeRepo struct {
	store *Store
}

var _ authcodes.Repo = (*authCodeRepo)(nil)

func (r *authCodeRepo) Insert(ctx context.Context, code *authcodes.AuthCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return errors.Wrap(err, "[authCodeRepo.Insert] marshal")
	}

	// Codes outlive their expiry by the marker retention so replays of a
	// stale code still resolve against a record.
	key := r.store.key(keyTypeAuthCode, code.Code)
	return errors.Wrap(
		r.store.client.Set(ctx, key, data, ttlUntil(code.ExpiresAt, usedMarkerRetention)).Err(),
		"[authCodeRepo.Insert]",
	)
}

func (r *authCodeRepo) Get(ctx context.Context, code string) (*authcodes.AuthCode, error) {
	data, err := r.store.client.Get(ctx, r.store.key(keyTypeAuthCode, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, authcodes.ErrNotFound
		}
		return nil, errors.Wrap(err, "[authCodeRepo.Get]")
	}

	var stored authcodes.AuthCode
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrap(err, "[authCodeRepo.Get] unmarshal")
	}

	// The used flag lives in a marker key so the transition can be a single
	// SetNX; fold it back into the record on read.
	usedAt, err := r.store.client.Get(ctx, r.store.key(keyTypeCodeUsed, code)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(err, "[authCodeRepo.Get] used marker")
	}
	if err == nil {
		stored.Used = true
		if at, parseErr := time.Parse(time.RFC3339Nano, usedAt); parseErr == nil {
			stored.UsedAt = &at
		}
	}
	return &stored, nil
}

func (r *authCodeRepo) MarkUsed(ctx context.Context, code string, at time.Time) error {
	data, err := r.store.client.Get(ctx, r.store.key(keyTypeAuthCode, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return authcodes.ErrNotFound
		}
		return errors.Wrap(err, "[authCodeRepo.MarkUsed]")
	}

	var stored authcodes.AuthCode
	if err := json.Unmarshal(data, &stored); err != nil {
		return errors.Wrap(err, "[authCodeRepo.MarkUsed] unmarshal")
	}

	// The marker must cover the record's remaining lifetime, otherwise a
	// used code would read back as fresh once the marker lapsed.
	won, err := r.store.client.SetNX(
		ctx,
		r.store.key(keyTypeCodeUsed, code),
		at.Format(time.RFC3339Nano),
		ttlUntil(stored.ExpiresAt, usedMarkerRetention),
	).Result()
	if err != nil {
		return errors.Wrap(err, "[authCodeRepo.MarkUsed] marker")
	}
	if !won {
		return authcodes.ErrAlreadyUsed
	}
	return nil
}

// -----------------------
// sessions.Repo
// -----------------------

type sessionRepo struct {
	store *Store
}

var _ sessions.Repo = (*sessionRepo)(nil)

func (r *sessionRepo) Insert(ctx context.Context, session *sessions.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[sessionRepo.Insert] marshal")
	}

	key := r.store.key(keyTypeSession, session.RefreshToken)
	return errors.Wrap(
		r.store.client.Set(ctx, key, data, ttlUntil(session.ExpiresAt, usedMarkerRetention)).Err(),
		"[sessionRepo.Insert]",
	)
}

func (r *sessionRepo) Get(ctx context.Context, refreshToken string) (*sessions.Session, error) {
	data, err := r.store.client.Get(ctx, r.store.key(keyTypeSession, refreshToken)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessions.ErrNotFound
		}
		return nil, errors.Wrap(err, "[sessionRepo.Get]")
	}

	var stored sessions.Session
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrap(err, "[sessionRepo.Get] unmarshal")
	}

	revokedAt, err := r.store.client.Get(ctx, r.store.key(keyTypeRevoked, refreshToken)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(err, "[sessionRepo.Get] revoked marker")
	}
	if err == nil {
		stored.Revoked = true
		if at, parseErr := time.Parse(time.RFC3339Nano, revokedAt); parseErr == nil {
			stored.RevokedAt = &at
		}
	}
	return &stored, nil
}

func (r *sessionRepo) Revoke(ctx context.Context, refreshToken string, at time.Time) error {
	data, err := r.store.client.Get(ctx, r.store.key(keyTypeSession, refreshToken)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sessions.ErrNotFound
		}
		return errors.Wrap(err, "[sessionRepo.Revoke]")
	}

	var stored sessions.Session
	if err := json.Unmarshal(data, &stored); err != nil {
		return errors.Wrap(err, "[sessionRepo.Revoke] unmarshal")
	}

	// Sessions live for weeks; the revocation marker has to last at least
	// as long as the session record or the token comes back to life.
	won, err := r.store.client.SetNX(
		ctx,
		r.store.key(keyTypeRevoked, refreshToken),
		at.Format(time.RFC3339Nano),
		ttlUntil(stored.ExpiresAt, usedMarkerRetention),
	).Result()
	if err != nil {
		return errors.Wrap(err, "[sessionRepo.Revoke] marker")
	}
	if !won {
		return sessions.ErrAlreadyRevoked
	}
	return nil
}

// -----------------------
// token.Blacklist
// -----------------------

// RedisBlacklist records known-bad access token jtis. Entries carry the
// token's own expiry as TTL; Redis garbage-collects them.
type RedisBlacklist struct {
	store *Store
}

var _ token.Blacklist = (*RedisBlacklist)(nil)

func (b *RedisBlacklist) Add(ctx context.Context, jti string, revokedAt, expiresAt time.Time) error {
	return errors.Wrap(
		b.store.client.Set(
			ctx,
			b.store.key(keyTypeBlacklist, jti),
			revokedAt.Format(time.RFC3339Nano),
			ttlUntil(expiresAt, 0),
		).Err(),
		"[RedisBlacklist.Add]",
	)
}

func (b *RedisBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	exists, err := b.store.client.Exists(ctx, b.store.key(keyTypeBlacklist, jti)).Result()
	if err != nil {
		return false, errors.Wrap(err, "[RedisBlacklist.Contains]")
	}
	return exists > 0, nil
}
