package session

import (
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-client/cache"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/rs/zerolog/log"
)

// Navigation is a redirect request. NewAccount is set only for the
// profile-completion route.
type Navigation struct {
	Path       string
	NewAccount *users.NewAccount
}

// Navigator performs a redirect. It is called after the session lock is released.
type Navigator func(Navigation)

// Routes are the landing routes used on session transitions.
type Routes struct {
	Anonymous         string
	Authenticated     string
	ProfileCompletion string
}

// RoutesFromConfig reads the landing routes from cfg.
func RoutesFromConfig(cfg config.RoutesConfig) Routes {
	return Routes{
		Anonymous:         cfg.GetAnonymousRoute(),
		Authenticated:     cfg.GetAuthenticatedRoute(),
		ProfileCompletion: cfg.GetProfileCompletionRoute(),
	}
}

func defaultRoutes() Routes {
	return Routes{
		Anonymous:         "/login",
		Authenticated:     "/dashboard",
		ProfileCompletion: "/signup/complete",
	}
}

type options struct {
	transport http.RoundTripper
	timeout   time.Duration
	navigate  Navigator
	routes    Routes
	verifier  *oidc.IDTokenVerifier
	cacheOpts cache.Options
	nowTime   func() time.Time
}

// Option configures a Service.
type Option func(*options)

// WithTransport sets the transport underneath the request pipeline.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithHTTPTimeout bounds every backend call, the refresh call included.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

func WithNavigator(n Navigator) Option {
	return func(o *options) {
		o.navigate = n
	}
}

func WithRoutes(r Routes) Option {
	return func(o *options) {
		o.routes = r
	}
}

// WithIDTokenVerifier enables verification of the provider's id_token before
// it is exchanged with the backend.
func WithIDTokenVerifier(v *oidc.IDTokenVerifier) Option {
	return func(o *options) {
		o.verifier = v
	}
}

func WithCacheOptions(opts cache.Options) Option {
	return func(o *options) {
		o.cacheOpts = opts
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(o *options) {
		o.nowTime = nowFunc
	}
}

func newOptions(opts []Option) options {
	o := options{
		transport: http.DefaultTransport,
		routes:    defaultRoutes(),
		nowTime:   time.Now,
		navigate: func(n Navigation) {
			log.Debug().Str("path", n.Path).Msg("navigate")
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheOpts.Now == nil {
		o.cacheOpts.Now = o.nowTime
	}
	return o
}
