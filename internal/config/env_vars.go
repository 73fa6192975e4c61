package config

import (
	"fmt"
	"os"
	"time"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	networkVar     = "NETWORK_TYPE"
	logLevelVar    = "LOG_LEVEL"
	verifierURLVar = "VERIFIER_URL"
	envProduction  = "PROD"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetNetworkType() string
	GetVerifierURL() string
	IsProduction() bool
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Sign-On Server")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (e EnvVars) IsProduction() bool {
	return e.GetEnv() == envProduction
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetNetworkType returns the blockchain network this deployment accepts
// signed artifacts from. Artifacts declaring any other network are rejected.
func (EnvVars) GetNetworkType() string {
	return GetEnv(networkVar, "testnet")
}

// GetVerifierURL returns the base URL of the external signature verification
// service. Empty means no verifier is configured; main refuses to start.
func (EnvVars) GetVerifierURL() string {
	return os.Getenv(verifierURLVar)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDurationEnv parses a human readable duration ("5m", "1h30m", "720h")
// from the environment, falling back to defaultValue when the variable is
// unset or unparseable.
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
