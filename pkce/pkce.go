// Package pkce implements the Proof Key for Code Exchange challenge
// computation of RFC 7636. Only the S256 transformation is computable;
// any other method is an error the caller maps to invalid_grant.
package pkce

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/chainsso/go-signon-server/oauth2"
)

// ErrUnsupportedMethod is returned for any code_challenge_method other
// than S256.
var ErrUnsupportedMethod = errors.New("unsupported PKCE method")

const (
	// MinVerifierLength and MaxVerifierLength bound code_verifier per RFC 7636 §4.1.
	MinVerifierLength = 43
	MaxVerifierLength = 128
)

// ComputeChallenge derives the code challenge for a verifier:
// BASE64URL-no-padding(SHA256(verifier)).
func ComputeChallenge(verifier string, method oauth2.CodeMethodType) (string, error) {
	if method != oauth2.CodeMethodTypeS256 {
		return "", errors.Wrapf(ErrUnsupportedMethod, "%q", method)
	}
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:]), nil
}

// Verify recomputes the challenge from verifier and compares it to the
// stored challenge. Exact string equality, per the stored value.
func Verify(storedChallenge, verifier string, method oauth2.CodeMethodType) (bool, error) {
	computed, err := ComputeChallenge(verifier, method)
	if err != nil {
		return false, err
	}
	return computed == storedChallenge, nil
}

// ValidVerifierLength reports whether a code_verifier satisfies the RFC 7636
// length bounds.
func ValidVerifierLength(verifier string) bool {
	return len(verifier) >= MinVerifierLength && len(verifier) <= MaxVerifierLength
}
