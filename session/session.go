// Package session is the single owner of the authenticated identity. It wires
// the credential store, request pipeline, refresh coordinator, API client and
// cache, and exposes login, logout and refresh to the rest of the application.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/cache"
	"github.com/jrsteele09/go-session-client/credentials"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/pipeline"
	"github.com/jrsteele09/go-session-client/refresh"
	"github.com/jrsteele09/go-session-client/token/jwt"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var (
	_ refresh.Owner        = (*Service)(nil)
	_ pipeline.TokenSource = (*Service)(nil)
	_ cache.Identity       = (*Service)(nil)
	_ oauth2.TokenSource   = (*Service)(nil)
)

// Service holds the in-memory session and is its only writer.
type Service struct {
	store       *credentials.Store
	api         *api.Client
	httpClient  *http.Client
	coordinator *refresh.Coordinator
	cache       *cache.Cache
	verifier    oidcVerifier
	navigate    Navigator
	routes      Routes
	nowTime     func() time.Time

	mu    sync.RWMutex
	creds credentials.Credentials
}

// New builds the session service and loads any session persisted in store.
func New(ctx context.Context, store *credentials.Store, baseURL string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("[session.New] credential store is required")
	}
	o := newOptions(opts)

	s := &Service{
		store:    store,
		navigate: o.navigate,
		routes:   o.routes,
		nowTime:  o.nowTime,
	}
	if o.verifier != nil {
		s.verifier = o.verifier
	}

	s.httpClient = &http.Client{
		Transport: pipeline.New(o.transport, s, s.obtainFreshToken, api.BypassRoutes...),
		Timeout:   o.timeout,
	}
	s.api = api.New(baseURL, s.httpClient)
	s.coordinator = refresh.New(s, s.api)

	c, err := cache.New(s, o.cacheOpts)
	if err != nil {
		return nil, errors.Wrap(err, "[session.New] cache.New")
	}
	s.cache = c

	s.creds = store.Read(ctx)
	if s.creds.Authenticated() {
		log.Info().Str("user_id", s.userID()).Msg("restored persisted session")
	}
	return s, nil
}

// HTTPClient sends requests through the pipeline: bearer injection and a
// single replay after a 401.
func (s *Service) HTTPClient() *http.Client {
	return s.httpClient
}

// API returns the backend client bound to this session.
func (s *Service) API() *api.Client {
	return s.api
}

// Cache returns the identity-scoped read-through cache.
func (s *Service) Cache() *cache.Cache {
	return s.cache
}

// Login starts a session for user. The cache is flushed before the new
// identity becomes visible to readers.
func (s *Service) Login(ctx context.Context, tokens credentials.TokenPair, user users.User, redirectPath string) error {
	if !tokens.Complete() {
		return sessionerrors.ErrPartialCredentials
	}
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", sessionerrors.ErrInvalidUser, err)
	}

	s.mu.Lock()
	s.cache.InvalidateAll()
	if err := s.store.Write(ctx, tokens.AccessToken, tokens.RefreshToken, user); err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "[Service.Login] store.Write")
	}
	previous := s.userID()
	s.creds = credentials.Credentials{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         &user,
	}
	s.mu.Unlock()

	log.Info().Str("user_id", user.ID).Str("previous_user_id", previous).Msg("logged in")

	if redirectPath == "" {
		redirectPath = s.routes.Authenticated
	}
	s.navigate(Navigation{Path: redirectPath})
	return nil
}

// LoginWithPassword exchanges a password for tokens, reads the profile with
// the new access token and then logs in.
func (s *Service) LoginWithPassword(ctx context.Context, authenticator, pass, redirectPath string) error {
	pair, err := s.api.Login(ctx, authenticator, pass)
	if api.IsUnauthorized(err) {
		return fmt.Errorf("%w: %v", sessionerrors.ErrInvalidCredentials, err)
	}
	if err != nil {
		return errors.Wrap(err, "[Service.LoginWithPassword] api.Login")
	}

	user, err := s.api.ProfileWithToken(ctx, pair.AccessToken)
	if err != nil {
		return errors.Wrap(err, "[Service.LoginWithPassword] api.ProfileWithToken")
	}
	return s.Login(ctx, pair, user, redirectPath)
}

// Logout ends the session. Logging out an anonymous session only redirects.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	err := s.clearLocked(ctx, "logout")
	s.mu.Unlock()

	s.navigate(Navigation{Path: s.routes.Anonymous})
	return err
}

// RefreshAuth renews the token pair. It returns false without a network call
// when there is no refresh token, and false after a failed refresh, which has
// already ended the session.
func (s *Service) RefreshAuth(ctx context.Context) bool {
	if s.RefreshToken() == "" {
		return false
	}
	if _, err := s.coordinator.ObtainFreshToken(ctx); err != nil {
		log.Warn().Err(err).Msg("refresh failed")
		return false
	}
	return true
}

// IsLogged reports whether an access token is held.
func (s *Service) IsLogged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken != ""
}

// User returns the session's user.
func (s *Service) User() (users.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.User == nil {
		return users.User{}, false
	}
	return *s.creds.User, true
}

// UserID implements cache.Identity.
func (s *Service) UserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := s.userID()
	return id, id != ""
}

// CurrentToken reads the stored token and its user at send time.
func (s *Service) CurrentToken(ctx context.Context) (string, string) {
	creds := s.store.Read(ctx)
	if !creds.Authenticated() {
		return "", ""
	}
	if creds.User == nil {
		return creds.AccessToken, ""
	}
	return creds.AccessToken, creds.User.ID
}

// Token implements oauth2.TokenSource.
func (s *Service) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	access, refreshToken := s.creds.AccessToken, s.creds.RefreshToken
	s.mu.RUnlock()

	if access == "" {
		return nil, sessionerrors.ErrNoIdentity
	}
	tok := &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
	}
	if exp, err := jwt.ExpiresAt(access); err == nil {
		tok.Expiry = exp
	}
	return tok, nil
}

// AccessTokenExpiry decodes exp from the access token without verifying it.
func (s *Service) AccessTokenExpiry() (time.Time, bool) {
	s.mu.RLock()
	access := s.creds.AccessToken
	s.mu.RUnlock()

	if access == "" {
		return time.Time{}, false
	}
	exp, err := jwt.ExpiresAt(access)
	if err != nil {
		return time.Time{}, false
	}
	return exp, true
}

// Expired reports whether the access token's exp has passed.
func (s *Service) Expired() bool {
	exp, ok := s.AccessTokenExpiry()
	return ok && !s.nowTime().Before(exp)
}

// Profile reads the authenticated user's profile through the cache.
func (s *Service) Profile(ctx context.Context) (users.User, error) {
	return cache.Fetch(ctx, s.cache, api.RouteProfile, nil, s.api.Profile)
}

// UpdateProfile patches the profile, drops cached profile reads and updates
// the stored user.
func (s *Service) UpdateProfile(ctx context.Context, patch users.ProfilePatch) (users.User, error) {
	user, err := s.api.UpdateProfile(ctx, patch)
	if err != nil {
		return users.User{}, errors.Wrap(err, "[Service.UpdateProfile] api.UpdateProfile")
	}
	s.cache.Invalidate(api.RouteProfile)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID() != user.ID {
		return user, nil
	}
	if err := s.store.Write(ctx, s.creds.AccessToken, s.creds.RefreshToken, user); err != nil {
		return user, errors.Wrap(err, "[Service.UpdateProfile] store.Write")
	}
	s.creds.User = &user
	return user, nil
}

func (s *Service) obtainFreshToken(ctx context.Context) (string, error) {
	return s.coordinator.ObtainFreshToken(ctx)
}

// clearLocked clears the store and memory and flushes the cache. mu must be held.
func (s *Service) clearLocked(ctx context.Context, reason string) error {
	userID := s.userID()
	err := s.store.Clear(ctx)
	s.creds = credentials.Credentials{}
	s.cache.InvalidateAll()

	if userID != "" {
		log.Info().Str("user_id", userID).Str("reason", reason).Msg("session ended")
	}
	if err != nil {
		return errors.Wrap(err, "[Service.clearLocked] store.Clear")
	}
	return nil
}

// userID must be called with mu held.
func (s *Service) userID() string {
	if s.creds.User == nil || s.creds.AccessToken == "" {
		return ""
	}
	return s.creds.User.ID
}
