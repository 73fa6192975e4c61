package config

import (
	"strings"
	"time"
)

const (
	corsOriginVar          = "CORS_ORIGIN"
	corsOriginsCacheTTLVar = "CORS_ORIGINS_CACHE_TTL"
)

type CorsConfig interface {
	GetStaticOrigins() []string
	GetOriginsCacheTTL() time.Duration
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type Cors struct{}

var _ CorsConfig = Cors{}

// GetStaticOrigins returns origins always allowed regardless of client
// registrations, from a comma separated CORS_ORIGIN value.
func (Cors) GetStaticOrigins() []string {
	raw := GetEnv(corsOriginVar, "")
	if raw == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (Cors) GetOriginsCacheTTL() time.Duration {
	return GetDurationEnv(corsOriginsCacheTTLVar, 5*time.Minute)
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, PUT, PATCH, DELETE"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
