package config

// BackendConfig seeds the development backend.
type BackendConfig interface {
	GetSeedUserEmail() string
	GetSeedUserPassword() string
	GetGoogleIssuer() string
}

type Backend struct{}

var _ BackendConfig = Backend{}

func (Backend) GetSeedUserEmail() string {
	return GetEnv("SEED_USER_EMAIL", "demo@realty.dev")
}

// GetSeedUserPassword returns the seed password. Empty means one is generated and logged at startup.
func (Backend) GetSeedUserPassword() string {
	return GetEnv("SEED_USER_PASSWORD", "")
}

// GetGoogleIssuer is the OIDC issuer whose userinfo endpoint resolves provider
// tokens. Empty restricts the google exchange to the static token table.
func (Backend) GetGoogleIssuer() string {
	return GetEnv("GOOGLE_ISSUER", "")
}
