package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	ClientConfig
	StoreConfig
	RoutesConfig
	BackendConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetLogFormat() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// ClientConfig configures the outbound side of the session client.
type ClientConfig interface {
	GetAPIBaseURL() string
	GetHTTPTimeout() time.Duration
	GetCacheSize() int
	GetCacheMaxAge() time.Duration
}

type mainConfig struct {
	EnvVars
	Cors
	Tokens
	Client
	Store
	Routes
	Backend
}

func New() Config {
	return mainConfig{}
}
