package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/chainsso/go-signon-server/auth"
	"github.com/chainsso/go-signon-server/oauth2"
)

// AuthorizeHandler begins the sign-on flow: validates the client and
// redirect target and returns a challenge for the wallet to sign.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, ferr := parseAuthorizeParams(r)
		if ferr != nil {
			writeJSONError(w, ferr.Code, ferr.Description, ferr.Status)
			return
		}

		result, err := s.auth.Authorize(r.Context(), params)
		if err != nil {
			s.writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// CheckHandler runs the authorize validation without issuing a challenge,
// so a client can pre-flight its configuration.
func (s *Server) CheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, ferr := parseAuthorizeParams(r)
		if ferr != nil {
			writeJSONError(w, ferr.Code, ferr.Description, ferr.Status)
			return
		}

		result, err := s.auth.Check(r.Context(), params)
		if err != nil {
			s.writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// VerifySignatureHandler accepts the signed artifact, mints an auth code and
// sends the caller back to the client's redirect URI.
func (s *Server) VerifySignatureHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oauth2.ErrorInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
			return
		}

		result, err := s.auth.VerifySignature(r.Context(), r.FormValue("payload"))
		if err != nil {
			s.writeError(w, err)
			return
		}

		// Redirect when the challenge carries a resolvable target; JSON
		// fallback keeps non-browser callers working.
		if target, ok := codeRedirectURL(result); ok {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"code":       result.Code,
			"expires_in": result.ExpiresIn,
		})
	}
}

// TokenHandler exchanges an authorization code or refresh token for a new
// token pair.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oauth2.ErrorInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
			return
		}

		tokenReq := oauth2.TokenRequest{
			GrantType:    oauth2.GrantType(r.FormValue("grant_type")),
			ClientID:     r.FormValue("client_id"),
			Code:         r.FormValue("code"),
			CodeVerifier: r.FormValue("code_verifier"),
			State:        r.FormValue("state"),
		}

		if tokenReq.GrantType == oauth2.RefreshTokenGrant {
			refreshToken, ferr := s.transport.Extract(r)
			if ferr != nil {
				writeJSONError(w, ferr.Code, ferr.Description, ferr.Status)
				return
			}
			tokenReq.RefreshToken = refreshToken
		}

		resp, err := s.auth.Token(r.Context(), tokenReq)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.transport.WriteToken(w, resp)
	}
}

// UserInfoHandler returns the identity bound to a bearer access token.
func (s *Server) UserInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken, ferr := bearerToken(r)
		if ferr != nil {
			writeJSONError(w, ferr.Code, ferr.Description, ferr.Status)
			return
		}

		info, err := s.auth.UserInfo(r.Context(), accessToken)
		if err != nil {
			s.writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, info)
	}
}

// LogoutHandler revokes the session identified by the presented refresh
// token.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oauth2.ErrorInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
			return
		}

		// On logout a missing credential is a client error, not an auth
		// failure: swallow the transport's 401 and let the service answer
		// the empty token with its 400.
		refreshToken, ferr := s.transport.Extract(r)
		if ferr != nil {
			refreshToken = ""
		}

		if err := s.auth.Logout(r.Context(), refreshToken); err != nil {
			s.writeError(w, err)
			return
		}

		s.transport.ClearSession(w)
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"message": "Logged out successfully",
		})
	}
}

// Helper functions

// parseAuthorizeParams extracts the authorization query parameters, rejecting
// any parameter supplied more than once. Duplicate redirect_uri or state
// values are an injection vector, not a client mistake to tolerate.
func parseAuthorizeParams(r *http.Request) (*auth.AuthorizeParams, *auth.FlowError) {
	query := r.URL.Query()
	values := make(map[string]string, len(query))
	for _, key := range []string{"response_type", "client_id", "redirect_uri", "state", "code_challenge", "code_challenge_method"} {
		vs := query[key]
		if len(vs) > 1 {
			return nil, &auth.FlowError{
				Status:      http.StatusBadRequest,
				Code:        oauth2.ErrorInvalidRequest,
				Description: key + " must not be repeated",
			}
		}
		if len(vs) == 1 {
			values[key] = vs[0]
		}
	}

	return &auth.AuthorizeParams{
		ResponseType:        values["response_type"],
		ClientID:            values["client_id"],
		RedirectURI:         values["redirect_uri"],
		State:               values["state"],
		CodeChallenge:       values["code_challenge"],
		CodeChallengeMethod: values["code_challenge_method"],
	}, nil
}

// codeRedirectURL builds redirect_uri?code=...&state=... with proper escaping.
func codeRedirectURL(result *auth.VerifyResult) (string, bool) {
	if result.RedirectURI == "" {
		return "", false
	}
	target, err := url.Parse(result.RedirectURI)
	if err != nil {
		return "", false
	}

	query := target.Query()
	query.Set("code", result.Code)
	if result.State != "" {
		query.Set("state", result.State)
	}
	target.RawQuery = query.Encode()
	return target.String(), true
}

func bearerToken(r *http.Request) (string, *auth.FlowError) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", &auth.FlowError{
			Status:      http.StatusUnauthorized,
			Code:        oauth2.ErrorInvalidToken,
			Description: "Missing Authorization header",
		}
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", &auth.FlowError{
			Status:      http.StatusUnauthorized,
			Code:        oauth2.ErrorInvalidToken,
			Description: "Invalid Authorization header format",
		}
	}
	return parts[1], nil
}

// writeError maps service failures onto the wire: protocol errors keep their
// OAuth2 code and status; anything else is an infrastructure failure that
// must not leak its cause to the caller.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ferr *auth.FlowError
	if errors.As(err, &ferr) {
		writeJSONError(w, ferr.Code, ferr.Description, ferr.Status)
		return
	}

	log.Error().Err(err).Msg("Database query failed")
	writeJSONError(w, oauth2.ErrorServerError, "Database connection error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(oauth2.ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}
