package auth

import (
	"net/http"

	"github.com/chainsso/go-signon-server/oauth2"
)

// FlowError is a protocol-level failure: a client request error or auth
// error with a defined OAuth2 error code, description and HTTP status.
// Store and infrastructure failures are ordinary wrapped errors; the server
// layer surfaces those as generic 500s and logs the cause.
type FlowError struct {
	Status      int
	Code        string
	Description string
}

func (e *FlowError) Error() string {
	return e.Code + ": " + e.Description
}

func invalidRequest(description string) *FlowError {
	return &FlowError{Status: http.StatusBadRequest, Code: oauth2.ErrorInvalidRequest, Description: description}
}

func invalidGrant(description string) *FlowError {
	return &FlowError{Status: http.StatusBadRequest, Code: oauth2.ErrorInvalidGrant, Description: description}
}

func unauthorizedClient(description string) *FlowError {
	return &FlowError{Status: http.StatusBadRequest, Code: oauth2.ErrorUnauthorizedClient, Description: description}
}

func unsupportedResponseType(description string) *FlowError {
	return &FlowError{Status: http.StatusBadRequest, Code: oauth2.ErrorUnsupportedResponseType, Description: description}
}

func unsupportedGrantType(description string) *FlowError {
	return &FlowError{Status: http.StatusBadRequest, Code: oauth2.ErrorUnsupportedGrantType, Description: description}
}

func invalidToken(description string) *FlowError {
	return &FlowError{Status: http.StatusUnauthorized, Code: oauth2.ErrorInvalidToken, Description: description}
}

// Fixed descriptions for failures tests and clients match on. A consumed
// challenge and an unknown one fail with the same message by design; code
// reuse shares the client-facing message with unknown codes but is logged
// distinctly for diagnosability.
const (
	descUntrustedRedirectURI = "redirect_uri does not match any trusted URI"
	descInvalidChallenge     = "invalid or expired challenge"
	descInvalidCode          = "Invalid or used code"
	descInvalidSession       = "Invalid or revoked session"
	descUnsupportedPKCE      = "Unsupported PKCE method"
	descPKCEMismatch         = "code_verifier does not match code_challenge"
	descStateMismatch        = "state does not match the authorization request"
)
