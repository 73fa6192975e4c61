package config

import "time"

const (
	jwtSecretVar              = "JWT_SECRET"
	jwtExpiresInVar           = "JWT_EXPIRES_IN"
	challengeExpirationVar    = "CHALLENGE_EXPIRATION"
	authCodeExpirationVar     = "AUTHCODE_EXPIRATION"
	refreshTokenExpirationVar = "REFRESH_TOKEN_EXPIRATION"
	refreshTokenTransportVar  = "REFRESH_TOKEN_TRANSPORT"
)

type OAuthConfig interface {
	GetJWTSecret() string
	GetAccessTokenExpiry() time.Duration
	GetChallengeExpiration() time.Duration
	GetAuthCodeExpiration() time.Duration
	GetRefreshTokenExpiration() time.Duration
	GetRefreshTokenTransport() string
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetJWTSecret() string {
	return GetEnv(jwtSecretVar, "")
}

func (OAuth) GetAccessTokenExpiry() time.Duration {
	return GetDurationEnv(jwtExpiresInVar, 1*time.Hour)
}

func (OAuth) GetChallengeExpiration() time.Duration {
	return GetDurationEnv(challengeExpirationVar, 5*time.Minute)
}

// GetAuthCodeExpiration defaults shorter than the challenge window. An auth
// code is a higher privilege artifact than a challenge.
func (OAuth) GetAuthCodeExpiration() time.Duration {
	return GetDurationEnv(authCodeExpirationVar, 2*time.Minute)
}

func (OAuth) GetRefreshTokenExpiration() time.Duration {
	return GetDurationEnv(refreshTokenExpirationVar, 30*24*time.Hour)
}

// GetRefreshTokenTransport selects how refresh tokens travel to clients:
// "body" (response field) or "cookie" (HttpOnly cookie).
func (OAuth) GetRefreshTokenTransport() string {
	return GetEnv(refreshTokenTransportVar, "body")
}
