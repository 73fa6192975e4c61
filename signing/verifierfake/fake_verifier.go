package verifierfake

import (
	"context"
	"sync"

	"github.com/chainsso/go-signon-server/signing"
)

var _ signing.Verifier = (*FakeVerifier)(nil)

// FakeVerifier is a test double for the external signature collaborator.
// Register payloads with results; unregistered payloads fail with
// ErrInvalidSignature.
type FakeVerifier struct {
	mu      sync.Mutex
	results map[string]*signing.Result
}

func New() *FakeVerifier {
	return &FakeVerifier{
		results: make(map[string]*signing.Result),
	}
}

// RegisterPayload makes payload verify successfully with the given signer
// identity and embedded message.
func (f *FakeVerifier) RegisterPayload(payload, address, publicKey, network string, embeddedMessage []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[payload] = &signing.Result{
		Valid:           true,
		SignerAddress:   address,
		SignerPublicKey: publicKey,
		Network:         network,
		EmbeddedMessage: embeddedMessage,
	}
}

func (f *FakeVerifier) Verify(_ context.Context, payload string, expectedNetwork string) (*signing.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result, ok := f.results[payload]
	if !ok || !result.Valid {
		return nil, signing.ErrInvalidSignature
	}
	if result.Network != expectedNetwork {
		return nil, signing.ErrNetworkMismatch
	}
	return result, nil
}
