// Package credentials persists the session's access token, refresh token and
// user identity behind a narrow key-value interface.
package credentials

import (
	"context"
	"encoding/json"
	"sync"

	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/rs/zerolog/log"
)

// Persisted key layout. Values are strings; the user is JSON encoded.
const (
	KeyAccessToken  = "auth_token"
	KeyRefreshToken = "auth_refresh_token"
	KeyUser         = "auth_user"
)

var allKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

// KV is the durable backend. SetAll must apply every pair in one operation
// from the caller's point of view.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetAll(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Credentials is a snapshot of what the store holds. Either both tokens are
// set or neither is.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	User         *users.User
}

// Authenticated reports whether the snapshot carries a token pair.
func (c Credentials) Authenticated() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// Store reads and writes the three session keys as a unit.
type Store struct {
	kv KV
	mu sync.RWMutex
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Read never fails. Missing, corrupt or partial entries read as anonymous.
func (s *Store) Read(ctx context.Context) Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()

	access, _, err := s.kv.Get(ctx, KeyAccessToken)
	if err != nil {
		log.Warn().Err(err).Str("key", KeyAccessToken).Msg("credential store read failed")
		return Credentials{}
	}
	refresh, _, err := s.kv.Get(ctx, KeyRefreshToken)
	if err != nil {
		log.Warn().Err(err).Str("key", KeyRefreshToken).Msg("credential store read failed")
		return Credentials{}
	}
	if access == "" || refresh == "" {
		if access != "" || refresh != "" {
			log.Warn().Msg("credential store holds a partial token pair, treating as anonymous")
		}
		return Credentials{}
	}

	creds := Credentials{AccessToken: access, RefreshToken: refresh}
	rawUser, ok, err := s.kv.Get(ctx, KeyUser)
	if err != nil || !ok {
		return creds
	}
	var user users.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		log.Warn().Err(err).Msg("stored user is not valid JSON")
		return creds
	}
	creds.User = &user
	return creds
}

// AccessToken returns the stored access token, or "" when anonymous.
func (s *Store) AccessToken(ctx context.Context) string {
	return s.Read(ctx).AccessToken
}

// Write replaces all three keys.
func (s *Store) Write(ctx context.Context, accessToken, refreshToken string, user users.User) error {
	if accessToken == "" || refreshToken == "" {
		return sessionerrors.ErrPartialCredentials
	}
	rawUser, err := json.Marshal(user)
	if err != nil {
		return sessionerrors.Wrapf(err, "[Store.Write] encode user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.SetAll(ctx, map[string]string{
		KeyAccessToken:  accessToken,
		KeyRefreshToken: refreshToken,
		KeyUser:         string(rawUser),
	}); err != nil {
		return sessionerrors.Wrapf(err, "[Store.Write] kv.SetAll")
	}
	return nil
}

// Clear removes all three keys. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, allKeys...); err != nil {
		return sessionerrors.Wrapf(err, "[Store.Clear] kv.Delete")
	}
	return nil
}

// TokenPair is an access/refresh token pair as issued by the backend.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Complete reports whether both tokens are present.
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}
