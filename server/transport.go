package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/chainsso/go-signon-server/auth"
	"github.com/chainsso/go-signon-server/oauth2"
)

const refreshTokenCookieName = "refresh_token"

// RefreshTokenTransport abstracts where the refresh token travels: the JSON
// response body (native apps, server-side clients) or an HttpOnly cookie
// (browser clients). Selected by REFRESH_TOKEN_TRANSPORT.
type RefreshTokenTransport interface {
	// Extract returns the refresh token presented on the request.
	Extract(r *http.Request) (string, *auth.FlowError)

	// WriteToken sends the token response, placing the refresh token per
	// transport.
	WriteToken(w http.ResponseWriter, resp *oauth2.TokenResponse)

	// ClearSession removes any client-held refresh state after logout.
	ClearSession(w http.ResponseWriter)
}

// NewRefreshTokenTransport selects the transport by name. Anything other
// than "cookie" gets the body transport.
func NewRefreshTokenTransport(kind string, production bool, refreshTTL time.Duration) RefreshTokenTransport {
	if kind == "cookie" {
		return &CookieTransport{Production: production, TTL: refreshTTL}
	}
	return &BodyTransport{}
}

// BodyTransport carries the refresh token in the request form and the
// response body.
type BodyTransport struct{}

var _ RefreshTokenTransport = (*BodyTransport)(nil)

func (*BodyTransport) Extract(r *http.Request) (string, *auth.FlowError) {
	return r.FormValue(refreshTokenCookieName), nil
}

func (*BodyTransport) WriteToken(w http.ResponseWriter, resp *oauth2.TokenResponse) {
	writeTokenJSON(w, resp)
}

func (*BodyTransport) ClearSession(http.ResponseWriter) {}

// CookieTransport carries the refresh token in an HttpOnly cookie and strips
// it from the response body so scripts never see it.
type CookieTransport struct {
	Production bool
	TTL        time.Duration
}

var _ RefreshTokenTransport = (*CookieTransport)(nil)

func (*CookieTransport) Extract(r *http.Request) (string, *auth.FlowError) {
	cookie, err := r.Cookie(refreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		return "", &auth.FlowError{
			Status:      http.StatusUnauthorized,
			Code:        oauth2.ErrorInvalidRequest,
			Description: "Missing refresh_token cookie",
		}
	}
	return cookie.Value, nil
}

func (t *CookieTransport) WriteToken(w http.ResponseWriter, resp *oauth2.TokenResponse) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    resp.RefreshToken,
		Path:     "/",
		MaxAge:   int(t.TTL.Seconds()),
		HttpOnly: true,
		Secure:   t.Production,
		SameSite: http.SameSiteStrictMode,
	})

	body := *resp
	body.RefreshToken = ""
	writeTokenJSON(w, &body)
}

func (t *CookieTransport) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.Production,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeTokenJSON(w http.ResponseWriter, resp *oauth2.TokenResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	_ = json.NewEncoder(w).Encode(resp)
}
