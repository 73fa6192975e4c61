// Package signing defines the boundary to the external blockchain signature
// collaborator. The server treats the signed artifact as opaque: the
// collaborator deserializes it, verifies the signature cryptographically and
// hands back the signer identity plus the embedded message bytes.
package signing

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidSignature is returned when the artifact's signature does not
	// verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrNetworkMismatch is returned when the artifact declares a network
	// other than the deployment's configured one.
	ErrNetworkMismatch = errors.New("transaction network does not match expected network")

	// ErrUnsupportedPayload is returned for artifacts the collaborator
	// cannot deserialize or whose declared type is not a transfer.
	ErrUnsupportedPayload = errors.New("unsupported transaction payload")
)

// Result is the outcome of verifying a signed artifact.
type Result struct {
	Valid           bool
	SignerPublicKey string
	SignerAddress   string
	Network         string
	EmbeddedMessage []byte
}

// Verifier verifies an opaque signed artifact and extracts the signer
// identity and embedded message. expectedNetwork is the deployment's
// configured network; implementations reject artifacts declaring any other.
type Verifier interface {
	Verify(ctx context.Context, payload string, expectedNetwork string) (*Result, error)
}
