package oauth2

// TokenRequest carries the parameters of a token endpoint call. The refresh
// token may arrive in the request body or as an HttpOnly cookie depending on
// the deployment's transport; the server layer resolves that before the
// request reaches the authorization service.
type TokenRequest struct {
	GrantType    GrantType `json:"grant_type"`
	ClientID     string    `json:"client_id"`
	Code         string    `json:"code,omitempty"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	State        string    `json:"state,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}
