package oauth2

// TokenResponse represents the response from an OAuth2 token request, per
// RFC 6749 §5.1. Returned from the /oauth/token endpoint for both grant
// types.
type TokenResponse struct {
	// AccessToken is the signed bearer token used to access protected
	// resources. Short-lived; the authoritative expiry is the JWT exp claim.
	AccessToken string `json:"access_token"`

	// TokenType is always "bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`

	// RefreshToken is an opaque single-use token for obtaining a new pair.
	// Omitted from the body when the deployment delivers it as an HttpOnly
	// cookie instead.
	RefreshToken string `json:"refresh_token,omitempty"`
}
