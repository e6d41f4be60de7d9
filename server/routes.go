package server

import (
	"net/http"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route path constants
const (
	RouteAuthLogin   = api.RouteLogin
	RouteAuthRefresh = api.RouteRefreshToken
	RouteAuthGoogle  = api.RouteGoogle
	RouteAuthProfile = api.RouteProfile
	RouteMetrics     = "/metrics"
)

func (s *Server) initRoutes() {
	// Token issuing endpoints carry no bearer
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshTokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthGoogle, ChainMiddleware(s.GoogleHandler(), s.APIMiddleware()...))

	// Protected
	s.RegisterRouteHandler("GET "+RouteAuthProfile, ChainMiddleware(s.ProfileHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("PATCH "+RouteAuthProfile, ChainMiddleware(s.PatchProfileHandler(), s.APIMiddleware(s.RequireAuth())...))

	// CORS preflight for every auth route
	s.RegisterRouteHandler("OPTIONS /auth/", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())
}
