package challenges

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a challenge does not exist or has already
// been consumed. The two cases are indistinguishable on purpose: a consumed
// challenge must present as invalid.
var ErrNotFound = errors.New("challenge not found")

// Challenge is a single authorize-request's proof-of-intent token. It is
// created by the authorize operation and consumed exactly once when a signed
// artifact referencing it is verified.
type Challenge struct {
	Challenge           string    `json:"challenge"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	State               string    `json:"state,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is past its expiry. Store TTL
// deletion is garbage collection only; callers check this independently.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Repo stores challenges with TTL-backed expiry.
type Repo interface {
	Insert(ctx context.Context, challenge *Challenge) error

	// Consume returns the challenge and removes it in a single conditional
	// step. A second Consume of the same value returns ErrNotFound;
	// concurrent consumers get at most one success.
	Consume(ctx context.Context, challenge string) (*Challenge, error)
}
