package signing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// HTTPVerifier calls an external verification service over HTTP. The service
// owns transaction deserialization, cryptographic signature checking and
// address derivation; this adapter only speaks its JSON contract.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPVerifier creates a verifier against the service at baseURL.
func NewHTTPVerifier(baseURL string, options ...HTTPVerifierOption) *HTTPVerifier {
	v := &HTTPVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// HTTPVerifierOption defines a function type to modify the HTTPVerifier
// instance.
type HTTPVerifierOption func(*HTTPVerifier)

// WithHTTPClient sets the underlying HTTP client (primarily for testing).
func WithHTTPClient(client *http.Client) HTTPVerifierOption {
	return func(v *HTTPVerifier) {
		v.client = client
	}
}

var _ Verifier = (*HTTPVerifier)(nil)

type verifyRequest struct {
	Payload string `json:"payload"`
	Network string `json:"network"`
}

type verifyResponse struct {
	Valid           bool   `json:"valid"`
	SignerPublicKey string `json:"signer_public_key"`
	SignerAddress   string `json:"signer_address"`
	Network         string `json:"network"`
	EmbeddedMessage string `json:"embedded_message"` // base64
	Error           string `json:"error,omitempty"`
}

// Verify submits the opaque payload to the verification service. Service
// verdicts map onto the package sentinel errors; transport failures surface
// as wrapped infrastructure errors.
func (v *HTTPVerifier) Verify(ctx context.Context, payload string, expectedNetwork string) (*Result, error) {
	body, err := json.Marshal(verifyRequest{Payload: payload, Network: expectedNetwork})
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPVerifier.Verify] marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPVerifier.Verify] build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPVerifier.Verify] request")
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "[HTTPVerifier.Verify] decode response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return nil, verdictError(decoded.Error)
	default:
		return nil, errors.Errorf("[HTTPVerifier.Verify] unexpected status %d", resp.StatusCode)
	}

	if !decoded.Valid {
		return nil, ErrInvalidSignature
	}
	if decoded.Network != expectedNetwork {
		return nil, ErrNetworkMismatch
	}

	message, err := base64.StdEncoding.DecodeString(decoded.EmbeddedMessage)
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPVerifier.Verify] decode embedded message")
	}

	return &Result{
		Valid:           true,
		SignerPublicKey: decoded.SignerPublicKey,
		SignerAddress:   decoded.SignerAddress,
		Network:         decoded.Network,
		EmbeddedMessage: message,
	}, nil
}

// verdictError maps the service's error string onto the package sentinels.
func verdictError(code string) error {
	switch code {
	case "invalid_signature":
		return ErrInvalidSignature
	case "network_mismatch":
		return ErrNetworkMismatch
	default:
		return ErrUnsupportedPayload
	}
}
