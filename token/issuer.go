package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const accessTokenType = "access_token"

var (
	// ErrInvalidToken covers malformed tokens, bad signatures and claim
	// shape problems.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token's exp is in the past.
	ErrTokenExpired = errors.New("token expired")
)

// AccessClaims is the verified claim set of an access token. Tokens are
// self-contained; userinfo never goes back to the store.
type AccessClaims struct {
	Address   string
	PublicKey string
	ClientID  string
	Network   string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer mints and verifies signed, time-boxed bearer access tokens. It
// never touches the store; blacklist insertion on verification failure is
// the caller's responsibility, which keeps the issuer pure and testable.
type Issuer struct {
	signer  Signer
	network string
	expiry  time.Duration
	nowFunc func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithExpiry sets the access token lifetime.
func WithExpiry(expiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.expiry = expiry
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

func NewIssuer(signer Signer, network string, options ...IssuerOption) *Issuer {
	i := &Issuer{
		signer:  signer,
		network: network,
		expiry:  time.Hour,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	return i
}

// Expiry returns the configured access token lifetime.
func (i *Issuer) Expiry() time.Duration {
	return i.expiry
}

// Mint creates a signed access token bound to the verified signer identity.
// A fresh jti anchors blacklist entries for this token.
func (i *Issuer) Mint(address, publicKey, clientID string) (string, *AccessClaims, error) {
	now := i.nowFunc()
	claims := &AccessClaims{
		Address:   address,
		PublicKey: publicKey,
		ClientID:  clientID,
		Network:   i.network,
		JTI:       uuid.New().String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(i.expiry),
	}

	signed, err := i.signer.Sign(jwt.MapClaims{
		"sub":       claims.Address,
		"pub":       claims.PublicKey,
		"client_id": claims.ClientID,
		"network":   claims.Network,
		"iat":       claims.IssuedAt.Unix(),
		"exp":       claims.ExpiresAt.Unix(),
		"jti":       claims.JTI,
		"type":      accessTokenType,
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "[Issuer.Mint] Sign")
	}
	return signed, claims, nil
}

// Verify checks the signature and expiry of a raw token and returns its
// claims.
func (i *Issuer) Verify(rawToken string) (*AccessClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.Parse(rawToken, i.signer.GetVerificationKey, jwt.WithTimeFunc(i.nowFunc))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	tokenType, _ := mapClaims["type"].(string)
	if tokenType != accessTokenType {
		return nil, ErrInvalidToken
	}

	sub, _ := mapClaims["sub"].(string)
	pub, _ := mapClaims["pub"].(string)
	clientID, _ := mapClaims["client_id"].(string)
	network, _ := mapClaims["network"].(string)
	jti, _ := mapClaims["jti"].(string)
	iat, _ := mapClaims["iat"].(float64)
	exp, _ := mapClaims["exp"].(float64)

	if sub == "" || jti == "" {
		return nil, ErrInvalidToken
	}

	return &AccessClaims{
		Address:   sub,
		PublicKey: pub,
		ClientID:  clientID,
		Network:   network,
		JTI:       jti,
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}

// ExtractJTI pulls the jti from a token without verifying it. Used to anchor
// blacklist entries for tokens that failed verification, so presenting the
// same bad token twice is idempotent to check. Returns empty when the token
// cannot be parsed at all.
func ExtractJTI(rawToken string) (jti string, exp time.Time) {
	parsed, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return "", time.Time{}
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", time.Time{}
	}
	jti, _ = claims["jti"].(string)
	if expFloat, ok := claims["exp"].(float64); ok {
		exp = time.Unix(int64(expFloat), 0)
	}
	return jti, exp
}
