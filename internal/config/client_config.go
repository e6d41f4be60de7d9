package config

import "time"

type Client struct{}

var _ ClientConfig = Client{}

func (Client) GetAPIBaseURL() string {
	return GetEnv("SESSION_API_URL", "http://localhost:8080")
}

func (Client) GetHTTPTimeout() time.Duration {
	return GetEnvDuration("HTTP_TIMEOUT", 30*time.Second)
}

func (Client) GetCacheSize() int {
	return GetEnvInt("SESSION_CACHE_SIZE", 256)
}

// GetCacheMaxAge of zero keeps entries until they are invalidated or evicted.
func (Client) GetCacheMaxAge() time.Duration {
	return GetEnvDuration("SESSION_CACHE_MAX_AGE", 0)
}
