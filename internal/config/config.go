package config

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	StoreConfig
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Store
}

func New() Config {
	return mainConfig{}
}
