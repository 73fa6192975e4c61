package oauth2

// OAuth2 error codes returned in the "error" field of error responses,
// per RFC 6749 §4.1.2.1 and §5.2.
const (
	ErrorInvalidRequest          = "invalid_request"
	ErrorUnsupportedResponseType = "unsupported_response_type"
	ErrorUnsupportedGrantType    = "unsupported_grant_type"
	ErrorUnauthorizedClient      = "unauthorized_client"
	ErrorInvalidGrant            = "invalid_grant"
	ErrorInvalidToken            = "invalid_token"
	ErrorServerError             = "server_error"
)

// ErrorResponse is the standard OAuth2 error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
