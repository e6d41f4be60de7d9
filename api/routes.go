package api

// Backend routes consumed by the session client.
const (
	RouteLogin        = "/auth/login"
	RouteRefreshToken = "/auth/refreshToken"
	RouteGoogle       = "/auth/google"
	RouteProfile      = "/auth/profile"
)

// BypassRoutes never carry a bearer worth refreshing; a 401 on them is final.
var BypassRoutes = []string{RouteRefreshToken, RouteLogin, RouteGoogle}
