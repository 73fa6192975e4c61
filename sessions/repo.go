package sessions

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when no session exists under a refresh token.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyRevoked is returned by Revoke when the session was already
	// revoked, by rotation or by logout.
	ErrAlreadyRevoked = errors.New("session already revoked")
)

// Session is the renewable credential a client holds after first token
// issuance, keyed by its opaque refresh token. Refresh is rotating and
// single-use: each refresh revokes the presented session and mints a new
// one.
type Session struct {
	RefreshToken string     `json:"refresh_token"`
	ClientID     string     `json:"client_id"`
	Address      string     `json:"address"`
	PublicKey    string     `json:"public_key"`
	AccessToken  string     `json:"access_token,omitempty"` // audit and blacklist correlation
	Revoked      bool       `json:"revoked"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Repo stores sessions with TTL-backed expiry.
type Repo interface {
	Insert(ctx context.Context, session *Session) error

	// Get returns the session whether or not it has been revoked.
	Get(ctx context.Context, refreshToken string) (*Session, error)

	// Revoke transitions revoked=false to revoked=true in a single
	// conditional step. Exactly one caller wins a concurrent rotation; the
	// rest get ErrAlreadyRevoked.
	Revoke(ctx context.Context, refreshToken string, at time.Time) error
}
