package session

import (
	"context"

	"github.com/jrsteele09/go-session-client/credentials"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RefreshToken returns the refresh token held in memory, "" when anonymous.
func (s *Service) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.RefreshToken
}

// Rotate stores a refreshed pair. It is rejected with ErrIdentityChanged when
// the session no longer holds usedRefreshToken, so a refresh that outlives a
// logout or a new login cannot resurrect the old identity.
func (s *Service) Rotate(ctx context.Context, usedRefreshToken string, pair credentials.TokenPair) error {
	if !pair.Complete() {
		return sessionerrors.ErrPartialCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if usedRefreshToken == "" || s.creds.RefreshToken != usedRefreshToken {
		log.Debug().Msg("ignoring refreshed tokens for a session that has moved on")
		return sessionerrors.ErrIdentityChanged
	}

	var user users.User
	if s.creds.User != nil {
		user = *s.creds.User
	}
	if err := s.store.Write(ctx, pair.AccessToken, pair.RefreshToken, user); err != nil {
		return errors.Wrap(err, "[Service.Rotate] store.Write")
	}
	s.creds.AccessToken = pair.AccessToken
	s.creds.RefreshToken = pair.RefreshToken
	return nil
}

// Expire ends the session after a failed refresh, unless a different session
// has become active since usedRefreshToken was read. An empty
// usedRefreshToken only clears a session that still holds no refresh token.
func (s *Service) Expire(ctx context.Context, usedRefreshToken string) {
	s.mu.Lock()
	if s.creds.RefreshToken != usedRefreshToken {
		s.mu.Unlock()
		log.Debug().Msg("refresh failure belongs to a previous session, keeping the current one")
		return
	}
	err := s.clearLocked(ctx, "refresh_failed")
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("failed to clear credentials after refresh failure")
	}
	s.navigate(Navigation{Path: s.routes.Anonymous})
}
