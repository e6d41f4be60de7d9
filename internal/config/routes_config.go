package config

// RoutesConfig names the navigation targets used on session transitions.
type RoutesConfig interface {
	GetAnonymousRoute() string
	GetAuthenticatedRoute() string
	GetProfileCompletionRoute() string
}

type Routes struct{}

var _ RoutesConfig = Routes{}

func (Routes) GetAnonymousRoute() string {
	return GetEnv("ROUTE_ANONYMOUS", "/login")
}

func (Routes) GetAuthenticatedRoute() string {
	return GetEnv("ROUTE_AUTHENTICATED", "/dashboard")
}

func (Routes) GetProfileCompletionRoute() string {
	return GetEnv("ROUTE_PROFILE_COMPLETION", "/signup/complete")
}
