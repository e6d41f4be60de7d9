package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/token/jwt"
	refreshtoken "github.com/jrsteele09/go-session-client/token/refresh"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/rs/zerolog/log"
)

// Repos holds the storage the backend needs.
type Repos struct {
	Accounts      users.AccountRepo // Backend accounts
	RefreshTokens refreshtoken.Repo // Opaque refresh tokens, one per user
}

// Server is a development backend implementing the endpoints consumed by the
// session client.
type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	repos     Repos
	creator   *jwt.Creator
	inspector *jwt.Inspector
	refresh   *refreshtoken.Manager
	providers ProviderTokens
}

// Option configures a Server.
type Option func(*Server)

// WithProviderTokens sets how google provider tokens are resolved.
func WithProviderTokens(p ProviderTokens) Option {
	return func(s *Server) {
		s.providers = p
	}
}

func New(cfg config.Config, repos Repos, opts ...Option) (*Server, error) {
	if repos.Accounts == nil {
		return nil, fmt.Errorf("[Server New] accounts repo is required")
	}
	if repos.RefreshTokens == nil {
		return nil, fmt.Errorf("[Server New] refresh token repo is required")
	}

	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		repos:     repos,
		creator:   jwt.NewCreator(cfg),
		inspector: jwt.NewInspector(cfg),
		refresh:   refreshtoken.NewManager(repos.RefreshTokens, cfg),
		providers: StaticProviderTokens{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Info().Msgf("[%s] %s", color+paddedMethod+ResetColor, path)
}
