package authcodes

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when no auth code exists under a value.
	ErrNotFound = errors.New("auth code not found")

	// ErrAlreadyUsed is returned by MarkUsed when the code was already
	// redeemed. Distinct from ErrNotFound so a replayed code is observably
	// "already used" rather than unknown.
	ErrAlreadyUsed = errors.New("auth code already used")
)

// AuthCode is proof that a signature was verified for a specific signer.
// It carries forward the PKCE binding and state from the challenge it was
// minted against, and may be redeemed for a token pair exactly once.
type AuthCode struct {
	Code                string     `json:"auth_code"`
	ClientID            string     `json:"client_id"`
	Address             string     `json:"address"`
	PublicKey           string     `json:"public_key"`
	State               string     `json:"state,omitempty"`
	CodeChallenge       string     `json:"code_challenge,omitempty"`
	CodeChallengeMethod string     `json:"code_challenge_method,omitempty"`
	Used                bool       `json:"used"`
	UsedAt              *time.Time `json:"used_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	ExpiresAt           time.Time  `json:"expires_at"`
}

func (a *AuthCode) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// Repo stores auth codes. Codes are retained until TTL expiry rather than
// deleted on use, so replay attempts can be reported as reuse.
type Repo interface {
	Insert(ctx context.Context, code *AuthCode) error

	// Get returns the code whether or not it has been used.
	Get(ctx context.Context, code string) (*AuthCode, error)

	// MarkUsed transitions used=false to used=true in a single conditional
	// step. Exactly one caller wins a concurrent redemption; the rest get
	// ErrAlreadyUsed.
	MarkUsed(ctx context.Context, code string, at time.Time) error
}
