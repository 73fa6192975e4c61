package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/chainsso/go-signon-server/authcodes"
	"github.com/chainsso/go-signon-server/challenges"
	"github.com/chainsso/go-signon-server/clients"
	"github.com/chainsso/go-signon-server/oauth2"
	"github.com/chainsso/go-signon-server/pkce"
	"github.com/chainsso/go-signon-server/sessions"
	"github.com/chainsso/go-signon-server/signing"
	"github.com/chainsso/go-signon-server/token"
)

// Repos holds all repository dependencies for the AuthorizationService.
type Repos struct {
	Clients    clients.Repo
	Challenges challenges.Repo
	AuthCodes  authcodes.Repo
	Sessions   sessions.Repo
}

// Settings carries the deployment policy the flow enforces.
type Settings struct {
	Network                string // expected blockchain network for signed artifacts
	Production             bool   // gates the https-only redirect_uri policy
	ChallengeExpiration    time.Duration
	AuthCodeExpiration     time.Duration
	RefreshTokenExpiration time.Duration
}

// AuthorizationService orchestrates the sign-on flow: challenge issuance,
// signature verification, code exchange, refresh rotation and revocation.
// All cross-request coordination is delegated to the repos' atomic
// conditional operations; the service itself holds no locks.
type AuthorizationService struct {
	repos     Repos
	issuer    *token.Issuer
	verifier  signing.Verifier
	blacklist token.Blacklist
	settings  Settings
	nowTime   func() time.Time
}

// AuthorizationServiceOption defines a function type to modify the
// AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// NewAuthorizationService initializes a new AuthorizationService with
// required dependencies.
func NewAuthorizationService(
	repos Repos,
	issuer *token.Issuer,
	verifier signing.Verifier,
	blacklist token.Blacklist,
	settings Settings,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if repos.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients repo is required")
	}
	if repos.Challenges == nil {
		return nil, errors.New("[NewAuthorizationService] Challenges repo is required")
	}
	if repos.AuthCodes == nil {
		return nil, errors.New("[NewAuthorizationService] AuthCodes repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewAuthorizationService] Sessions repo is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewAuthorizationService] issuer is required")
	}
	if verifier == nil {
		return nil, errors.New("[NewAuthorizationService] verifier is required")
	}
	if blacklist == nil {
		return nil, errors.New("[NewAuthorizationService] blacklist is required")
	}

	authService := &AuthorizationService{
		repos:     repos,
		issuer:    issuer,
		verifier:  verifier,
		blacklist: blacklist,
		settings:  settings,
		nowTime:   time.Now,
	}

	for _, opt := range options {
		opt(authService)
	}

	return authService, nil
}

// AuthorizeResult is returned from a successful authorize call.
type AuthorizeResult struct {
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	Challenge   string `json:"challenge"`
	AppName     string `json:"app_name,omitempty"`
}

// Authorize validates the client and redirect target and issues a one-time
// challenge for the caller to get signed.
func (as *AuthorizationService) Authorize(ctx context.Context, params *AuthorizeParams) (*AuthorizeResult, error) {
	client, err := as.validateClient(ctx, params)
	if err != nil {
		return nil, err
	}

	now := as.nowTime()
	challenge := &challenges.Challenge{
		Challenge:           uuid.New().String(),
		ClientID:            params.ClientID,
		RedirectURI:         params.RedirectURI,
		State:               params.State,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(as.settings.ChallengeExpiration),
	}
	if err := as.repos.Challenges.Insert(ctx, challenge); err != nil {
		return nil, errors.Wrap(err, "[Authorize] Challenges.Insert")
	}

	return &AuthorizeResult{
		ClientID:    params.ClientID,
		RedirectURI: params.RedirectURI,
		Challenge:   challenge.Challenge,
		AppName:     client.AppName,
	}, nil
}

// CheckResult is returned from a successful dry-run validation.
type CheckResult struct {
	Valid   bool   `json:"valid"`
	AppName string `json:"app_name,omitempty"`
}

// Check performs the authorize validation without issuing a challenge.
func (as *AuthorizationService) Check(ctx context.Context, params *AuthorizeParams) (*CheckResult, error) {
	client, err := as.validateClient(ctx, params)
	if err != nil {
		return nil, err
	}
	return &CheckResult{Valid: true, AppName: client.AppName}, nil
}

func (as *AuthorizationService) validateClient(ctx context.Context, params *AuthorizeParams) (*clients.Client, error) {
	if ferr := validateAuthorizeParams(params, as.settings.Production); ferr != nil {
		return nil, ferr
	}

	client, err := as.repos.Clients.Get(ctx, params.ClientID)
	if err != nil {
		if errors.Is(err, clients.ErrNotFound) {
			return nil, unauthorizedClient("unknown client_id")
		}
		return nil, errors.Wrap(err, "[Authorize] Clients.Get")
	}
	if len(client.RedirectURIs) == 0 {
		return nil, unauthorizedClient("client has no trusted redirect URIs")
	}
	if !client.TrustsRedirectURI(params.RedirectURI) {
		return nil, invalidRequest(descUntrustedRedirectURI)
	}
	return client, nil
}

// VerifyResult is returned from a successful signature verification.
type VerifyResult struct {
	Code        string
	RedirectURI string
	State       string
	ExpiresIn   int
}

// VerifySignature hands the opaque signed artifact to the external
// collaborator, consumes the challenge embedded in its message and mints an
// auth code bound to the verified signer identity.
func (as *AuthorizationService) VerifySignature(ctx context.Context, payload string) (*VerifyResult, error) {
	if payload == "" {
		return nil, invalidRequest("payload is required")
	}

	result, err := as.verifier.Verify(ctx, payload, as.settings.Network)
	if err != nil {
		switch {
		case errors.Is(err, signing.ErrInvalidSignature):
			return nil, invalidRequest("signature verification failed")
		case errors.Is(err, signing.ErrNetworkMismatch):
			return nil, invalidRequest("transaction network does not match this deployment")
		case errors.Is(err, signing.ErrUnsupportedPayload):
			return nil, invalidRequest("unsupported transaction payload")
		default:
			return nil, errors.Wrap(err, "[VerifySignature] verifier.Verify")
		}
	}

	message, err := signing.DecodeMessage(result.EmbeddedMessage)
	if err != nil {
		return nil, invalidRequest(err.Error())
	}

	challenge, err := as.repos.Challenges.Consume(ctx, message.Challenge)
	if err != nil {
		if errors.Is(err, challenges.ErrNotFound) {
			return nil, invalidRequest(descInvalidChallenge)
		}
		return nil, errors.Wrap(err, "[VerifySignature] Challenges.Consume")
	}

	now := as.nowTime()
	if challenge.Expired(now) {
		return nil, invalidRequest(descInvalidChallenge)
	}
	// A message that names a client must name the challenge's owner.
	if message.ClientID != "" && message.ClientID != challenge.ClientID {
		return nil, invalidRequest(descInvalidChallenge)
	}

	code := &authcodes.AuthCode{
		Code:                uuid.New().String(),
		ClientID:            challenge.ClientID,
		Address:             result.SignerAddress,
		PublicKey:           result.SignerPublicKey,
		State:               challenge.State,
		CodeChallenge:       challenge.CodeChallenge,
		CodeChallengeMethod: challenge.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(as.settings.AuthCodeExpiration),
	}
	if err := as.repos.AuthCodes.Insert(ctx, code); err != nil {
		return nil, errors.Wrap(err, "[VerifySignature] AuthCodes.Insert")
	}

	return &VerifyResult{
		Code:        code.Code,
		RedirectURI: challenge.RedirectURI,
		State:       challenge.State,
		ExpiresIn:   int(as.settings.AuthCodeExpiration.Seconds()),
	}, nil
}

// Token handles the token endpoint for both supported grants.
func (as *AuthorizationService) Token(ctx context.Context, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	switch req.GrantType {
	case oauth2.AuthorizationCodeGrant:
		return as.exchangeAuthorizationCode(ctx, req)
	case oauth2.RefreshTokenGrant:
		return as.rotateRefreshToken(ctx, req)
	default:
		return nil, unsupportedGrantType("grant_type must be authorization_code or refresh_token")
	}
}

func (as *AuthorizationService) exchangeAuthorizationCode(ctx context.Context, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if req.Code == "" || req.ClientID == "" {
		return nil, invalidRequest("code and client_id are required")
	}

	code, err := as.repos.AuthCodes.Get(ctx, req.Code)
	if err != nil {
		if errors.Is(err, authcodes.ErrNotFound) {
			return nil, invalidGrant(descInvalidCode)
		}
		return nil, errors.Wrap(err, "[Token] AuthCodes.Get")
	}

	now := as.nowTime()
	if code.Used {
		log.Warn().Str("client_id", req.ClientID).Msg("authorization code replayed after redemption")
		return nil, invalidGrant(descInvalidCode)
	}
	if code.Expired(now) || code.ClientID != req.ClientID {
		return nil, invalidGrant(descInvalidCode)
	}

	if err := as.verifyPKCE(code, req.CodeVerifier); err != nil {
		return nil, err
	}
	// Defense against code-substitution CSRF: when both sides carry a state
	// they must agree.
	if code.State != "" && req.State != "" && code.State != req.State {
		return nil, invalidGrant(descStateMismatch)
	}

	// The conditional used-flag transition is the single-use gate; exactly
	// one concurrent redemption can win it.
	if err := as.repos.AuthCodes.MarkUsed(ctx, code.Code, now); err != nil {
		switch {
		case errors.Is(err, authcodes.ErrAlreadyUsed), errors.Is(err, authcodes.ErrNotFound):
			return nil, invalidGrant(descInvalidCode)
		default:
			// Infrastructure failure on the flag write is logged, not fatal:
			// the code cannot be replayed without losing this same race again.
			log.Error().Err(err).Msg("failed to mark authorization code used")
		}
	}

	return as.issueTokenPair(ctx, code.Address, code.PublicKey, req.ClientID)
}

func (as *AuthorizationService) verifyPKCE(code *authcodes.AuthCode, verifier string) error {
	if code.CodeChallenge == "" {
		return nil
	}
	if verifier == "" {
		return invalidGrant("code_verifier is required")
	}
	if !pkce.ValidVerifierLength(verifier) {
		return invalidGrant("code_verifier must be between 43 and 128 characters")
	}

	ok, err := pkce.Verify(code.CodeChallenge, verifier, oauth2.CodeMethodType(code.CodeChallengeMethod))
	if err != nil {
		return invalidGrant(descUnsupportedPKCE)
	}
	if !ok {
		return invalidGrant(descPKCEMismatch)
	}
	return nil
}

func (as *AuthorizationService) rotateRefreshToken(ctx context.Context, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if req.RefreshToken == "" || req.ClientID == "" {
		return nil, invalidRequest("Missing refresh_token or client_id")
	}

	session, err := as.repos.Sessions.Get(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return nil, invalidGrant(descInvalidSession)
		}
		return nil, errors.Wrap(err, "[Token] Sessions.Get")
	}

	now := as.nowTime()
	if session.Revoked || session.Expired(now) {
		return nil, invalidGrant(descInvalidSession)
	}

	// Hard rotation, fail closed: the presented token is revoked before the
	// replacement is minted, so a mint failure never leaves two live tokens.
	if err := as.repos.Sessions.Revoke(ctx, req.RefreshToken, now); err != nil {
		switch {
		case errors.Is(err, sessions.ErrAlreadyRevoked), errors.Is(err, sessions.ErrNotFound):
			return nil, invalidGrant(descInvalidSession)
		default:
			return nil, errors.Wrap(err, "[Token] Sessions.Revoke")
		}
	}

	return as.issueTokenPair(ctx, session.Address, session.PublicKey, session.ClientID)
}

func (as *AuthorizationService) issueTokenPair(ctx context.Context, address, publicKey, clientID string) (*oauth2.TokenResponse, error) {
	accessToken, _, err := as.issuer.Mint(address, publicKey, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "[Token] issuer.Mint")
	}

	now := as.nowTime()
	session := &sessions.Session{
		RefreshToken: uuid.New().String(),
		ClientID:     clientID,
		Address:      address,
		PublicKey:    publicKey,
		AccessToken:  accessToken,
		CreatedAt:    now,
		ExpiresAt:    now.Add(as.settings.RefreshTokenExpiration),
	}
	if err := as.repos.Sessions.Insert(ctx, session); err != nil {
		return nil, errors.Wrap(err, "[Token] Sessions.Insert")
	}

	return &oauth2.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int(as.issuer.Expiry().Seconds()),
		RefreshToken: session.RefreshToken,
	}, nil
}

// UserInfo is the identity decoded from a valid access token.
type UserInfo struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
	Network   string `json:"network"`
}

// UserInfo verifies a bearer token and returns the identity in its claims.
// The token is self-contained; no store lookup is made on the happy path.
// Tokens that fail verification are recorded in the blacklist so repeat
// presentations short-circuit.
func (as *AuthorizationService) UserInfo(ctx context.Context, rawToken string) (*UserInfo, error) {
	jti, exp := token.ExtractJTI(rawToken)
	if jti != "" {
		blacklisted, err := as.blacklist.Contains(ctx, jti)
		if err != nil {
			log.Error().Err(err).Msg("blacklist lookup failed")
		} else if blacklisted {
			return nil, invalidToken("token is invalid or expired")
		}
	}

	claims, err := as.issuer.Verify(rawToken)
	if err != nil {
		if jti != "" {
			if exp.IsZero() {
				exp = as.nowTime().Add(as.issuer.Expiry())
			}
			if blErr := as.blacklist.Add(ctx, jti, as.nowTime(), exp); blErr != nil {
				log.Error().Err(blErr).Msg("failed to record token in blacklist")
			}
		}
		return nil, invalidToken("token is invalid or expired")
	}

	return &UserInfo{
		Address:   claims.Address,
		PublicKey: claims.PublicKey,
		Network:   claims.Network,
	}, nil
}

// Logout revokes the session identified by a refresh token. Revocation is
// best-effort: a store outage is logged and the call still succeeds, since
// rotation-on-refresh is the property security depends on.
func (as *AuthorizationService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return invalidRequest("Missing refresh_token")
	}

	err := as.repos.Sessions.Revoke(ctx, refreshToken, as.nowTime())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sessions.ErrNotFound):
		return invalidRequest("Invalid refresh_token")
	case errors.Is(err, sessions.ErrAlreadyRevoked):
		return invalidRequest("Session already revoked")
	default:
		log.Error().Err(err).Msg("logout revocation failed")
		return nil
	}
}
