package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/chainsso/go-signon-server/auth"
	"github.com/chainsso/go-signon-server/authcodes"
	"github.com/chainsso/go-signon-server/challenges"
	"github.com/chainsso/go-signon-server/clients"
	"github.com/chainsso/go-signon-server/internal/config"
	"github.com/chainsso/go-signon-server/server"
	"github.com/chainsso/go-signon-server/sessions"
	"github.com/chainsso/go-signon-server/signing/verifierfake"
	"github.com/chainsso/go-signon-server/token"
)

const (
	testClientID    = "client-a"
	testRedirectURI = "https://a.example.com/cb"
	testState       = "state-1"
	testAddress     = "TALICE5VF6J5FYMTCM7FPFP37Y5KLVVKXLRQ"
	testPublicKey   = "9801508C58666C746F471538E43002B85B1CD542F9874B2861183919BA8787B6"
	testNetwork     = "testnet"
)

type serverFixture struct {
	server   *server.Server
	verifier *verifierfake.FakeVerifier
	payloads int
}

func setupServer(t *testing.T) *serverFixture {
	t.Helper()

	clientRepo := clients.NewInMemoryRepo()
	require.NoError(t, clientRepo.Upsert(context.Background(), &clients.Client{
		ID:           testClientID,
		AppName:      "App A",
		RedirectURIs: []string{testRedirectURI},
	}))

	verifier := verifierfake.New()
	issuer := token.NewIssuer(token.NewHMACSigner("server-test-secret"), testNetwork, token.WithExpiry(time.Hour))

	service, err := auth.NewAuthorizationService(
		auth.Repos{
			Clients:    clientRepo,
			Challenges: challenges.NewInMemoryRepo(),
			AuthCodes:  authcodes.NewInMemoryRepo(),
			Sessions:   sessions.NewInMemoryRepo(),
		},
		issuer,
		verifier,
		token.NewInMemoryBlacklist(),
		auth.Settings{
			Network:                testNetwork,
			ChallengeExpiration:    5 * time.Minute,
			AuthCodeExpiration:     2 * time.Minute,
			RefreshTokenExpiration: 30 * 24 * time.Hour,
		},
	)
	require.NoError(t, err)

	origins := clients.NewOriginCache(clientRepo, nil, time.Minute)

	srv, err := server.New(config.New(), service, origins, nil)
	require.NoError(t, err)

	return &serverFixture{server: srv, verifier: verifier}
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) authorize(t *testing.T) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, server.RouteOAuthAuthorize+
		"?response_type=code&client_id="+testClientID+
		"&redirect_uri="+url.QueryEscape(testRedirectURI)+
		"&state="+testState, nil)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Challenge string `json:"challenge"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Challenge)
	return body.Challenge
}

// verifySignature registers a signed payload for the challenge and posts it,
// returning the auth code from the redirect.
func (f *serverFixture) verifySignature(t *testing.T, challenge string) string {
	t.Helper()

	payload := fmt.Sprintf("payload-%d", f.payloads)
	f.payloads++
	message := fmt.Sprintf(`{"challenge":%q}`, challenge)
	f.verifier.RegisterPayload(payload, testAddress, testPublicKey, testNetwork, []byte(message))

	form := url.Values{"payload": {payload}}
	req := httptest.NewRequest(http.MethodPost, server.RouteOAuthVerifySignature, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(req)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, testRedirectURI, location.Scheme+"://"+location.Host+location.Path)
	require.Equal(t, testState, location.Query().Get("state"))

	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func (f *serverFixture) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

func decodeTokenResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestFullSignOnFlow(t *testing.T) {
	f := setupServer(t)

	challenge := f.authorize(t)
	code := f.verifySignature(t, challenge)

	rec := f.postForm(server.RouteOAuthToken, url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {testClientID},
		"code":       {code},
	})
	body := decodeTokenResponse(t, rec)
	accessToken, _ := body["access_token"].(string)
	refreshToken, _ := body["refresh_token"].(string)
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, refreshToken)
	require.Equal(t, "bearer", body["token_type"])

	// userinfo with the minted token
	req := httptest.NewRequest(http.MethodGet, server.RouteOAuthUserInfo, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var info struct {
		Address   string `json:"address"`
		PublicKey string `json:"publicKey"`
		Network   string `json:"network"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, testAddress, info.Address)
	require.Equal(t, testPublicKey, info.PublicKey)
	require.Equal(t, testNetwork, info.Network)

	// refresh rotation
	rec = f.postForm(server.RouteOAuthToken, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {testClientID},
		"refresh_token": {refreshToken},
	})
	rotated := decodeTokenResponse(t, rec)
	newRefresh, _ := rotated["refresh_token"].(string)
	require.NotEmpty(t, newRefresh)
	require.NotEqual(t, refreshToken, newRefresh)

	// the old refresh token is dead
	rec = f.postForm(server.RouteOAuthToken, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {testClientID},
		"refresh_token": {refreshToken},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// logout with the live one
	rec = f.postForm(server.RouteOAuthLogout, url.Values{"refresh_token": {newRefresh}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var logoutBody struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logoutBody))
	require.Equal(t, "ok", logoutBody.Status)
	require.NotEmpty(t, logoutBody.Message)

	rec = f.postForm(server.RouteOAuthLogout, url.Values{"refresh_token": {newRefresh}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutMissingRefreshToken(t *testing.T) {
	f := setupServer(t)

	rec := f.postForm(server.RouteOAuthLogout, url.Values{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_request", body.Error)
}

func TestAuthorizeRejectsRepeatedParams(t *testing.T) {
	f := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, server.RouteOAuthAuthorize+
		"?response_type=code&client_id="+testClientID+
		"&redirect_uri="+url.QueryEscape(testRedirectURI)+
		"&redirect_uri="+url.QueryEscape("https://evil.com/cb"), nil)
	rec := f.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_request", body.Error)
}

func TestCheckEndpoint(t *testing.T) {
	f := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, server.RouteOAuthCheck+
		"?response_type=code&client_id="+testClientID+
		"&redirect_uri="+url.QueryEscape(testRedirectURI), nil)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Valid   bool   `json:"valid"`
		AppName string `json:"app_name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Valid)
	require.Equal(t, "App A", body.AppName)
}

func TestVerifySignatureRejectsUnknownPayload(t *testing.T) {
	f := setupServer(t)

	rec := f.postForm(server.RouteOAuthVerifySignature, url.Values{"payload": {"never-registered"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserInfoRequiresBearer(t *testing.T) {
	f := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, server.RouteOAuthUserInfo, nil)
	rec := f.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, server.RouteOAuthUserInfo, nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = f.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, server.RouteOAuthUserInfo, nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = f.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenRejectsUnknownGrant(t *testing.T) {
	f := setupServer(t)

	rec := f.postForm(server.RouteOAuthToken, url.Values{
		"grant_type": {"client_credentials"},
		"client_id":  {testClientID},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "unsupported_grant_type", body.Error)
}

func TestCookieTransport(t *testing.T) {
	t.Setenv("REFRESH_TOKEN_TRANSPORT", "cookie")
	f := setupServer(t)

	challenge := f.authorize(t)
	code := f.verifySignature(t, challenge)

	rec := f.postForm(server.RouteOAuthToken, url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {testClientID},
		"code":       {code},
	})
	body := decodeTokenResponse(t, rec)

	// The refresh token travels only in the HttpOnly cookie.
	_, inBody := body["refresh_token"]
	require.False(t, inBody)

	var refreshCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			refreshCookie = c
		}
	}
	require.NotNil(t, refreshCookie)
	require.NotEmpty(t, refreshCookie.Value)
	require.True(t, refreshCookie.HttpOnly)

	// Refresh with the cookie.
	req := httptest.NewRequest(http.MethodPost, server.RouteOAuthToken, strings.NewReader(url.Values{
		"grant_type": {"refresh_token"},
		"client_id":  {testClientID},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(refreshCookie)
	rec = f.do(req)
	decodeTokenResponse(t, rec)

	var rotatedCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			rotatedCookie = c
		}
	}
	require.NotNil(t, rotatedCookie)

	// No cookie at all is a 401 on the token endpoint.
	rec = f.postForm(server.RouteOAuthToken, url.Values{
		"grant_type": {"refresh_token"},
		"client_id":  {testClientID},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logout without the cookie is a plain client error, not an auth
	// failure.
	rec = f.postForm(server.RouteOAuthLogout, url.Values{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Logout with the cookie succeeds and expires it.
	req = httptest.NewRequest(http.MethodPost, server.RouteOAuthLogout, nil)
	req.AddCookie(rotatedCookie)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)
}

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

func TestHealthEndpoint(t *testing.T) {
	f := setupServer(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, "in-memory", body.Database)
}

func TestHealthEndpointStoreDown(t *testing.T) {
	clientRepo := clients.NewInMemoryRepo()
	require.NoError(t, clientRepo.Upsert(context.Background(), &clients.Client{
		ID:           testClientID,
		RedirectURIs: []string{testRedirectURI},
	}))

	service, err := auth.NewAuthorizationService(
		auth.Repos{
			Clients:    clientRepo,
			Challenges: challenges.NewInMemoryRepo(),
			AuthCodes:  authcodes.NewInMemoryRepo(),
			Sessions:   sessions.NewInMemoryRepo(),
		},
		token.NewIssuer(token.NewHMACSigner("secret"), testNetwork),
		verifierfake.New(),
		token.NewInMemoryBlacklist(),
		auth.Settings{Network: testNetwork},
	)
	require.NoError(t, err)

	srv, err := server.New(
		config.New(),
		service,
		clients.NewOriginCache(clientRepo, nil, time.Minute),
		&fakePinger{err: errors.New("connection refused")},
	)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.RouteHealth, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCorsMiddleware(t *testing.T) {
	f := setupServer(t)

	// Preflight from a registered client origin.
	req := httptest.NewRequest(http.MethodGet, server.RouteOAuthCheck+
		"?response_type=code&client_id="+testClientID+
		"&redirect_uri="+url.QueryEscape(testRedirectURI), nil)
	req.Header.Set("Origin", "https://a.example.com")
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://a.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	// An unregistered origin gets no CORS headers.
	req = httptest.NewRequest(http.MethodGet, server.RouteOAuthCheck+
		"?response_type=code&client_id="+testClientID+
		"&redirect_uri="+url.QueryEscape(testRedirectURI), nil)
	req.Header.Set("Origin", "https://evil.com")
	rec = f.do(req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightRequests(t *testing.T) {
	f := setupServer(t)

	// A browser preflight from a registered client origin must reach the
	// CORS middleware and come back with the allow headers, not a mux 405.
	req := httptest.NewRequest(http.MethodOptions, server.RouteOAuthToken, nil)
	req.Header.Set("Origin", "https://a.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://a.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Headers"))

	// Every API route answers preflights.
	for _, route := range []string{
		server.RouteOAuthAuthorize,
		server.RouteOAuthCheck,
		server.RouteOAuthVerifySignature,
		server.RouteOAuthUserInfo,
		server.RouteOAuthLogout,
	} {
		req = httptest.NewRequest(http.MethodOptions, route, nil)
		req.Header.Set("Origin", "https://a.example.com")
		rec = f.do(req)
		require.Equal(t, http.StatusOK, rec.Code, route)
		require.Equal(t, "https://a.example.com", rec.Header().Get("Access-Control-Allow-Origin"), route)
	}

	// Preflight from an unknown origin answers 200 with no allow headers
	// so the browser blocks the real request.
	req = httptest.NewRequest(http.MethodOptions, server.RouteOAuthToken, nil)
	req.Header.Set("Origin", "https://evil.com")
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// A bare OPTIONS without Origin is same-origin housekeeping.
	rec = f.do(httptest.NewRequest(http.MethodOptions, server.RouteOAuthToken, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
