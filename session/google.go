package session

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type oidcVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// LoginWithGoogle exchanges the provider's token with the backend. An existing
// account logs in and returns nil. An unknown account leaves the session
// untouched, redirects to profile completion and returns the partial profile.
func (s *Service) LoginWithGoogle(ctx context.Context, providerToken *oauth2.Token, redirectPath string) (*users.NewAccount, error) {
	if providerToken == nil || providerToken.AccessToken == "" {
		return nil, fmt.Errorf("%w: provider token is empty", sessionerrors.ErrInvalidToken)
	}

	if s.verifier != nil {
		if rawIDToken, ok := providerToken.Extra("id_token").(string); ok && rawIDToken != "" {
			idToken, err := s.verifier.Verify(ctx, rawIDToken)
			if err != nil {
				return nil, fmt.Errorf("%w: id_token: %v", sessionerrors.ErrInvalidToken, err)
			}
			log.Debug().Str("subject", idToken.Subject).Msg("provider id_token verified")
		}
	}

	res, err := s.api.Google(ctx, providerToken.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.LoginWithGoogle] api.Google")
	}

	if res.IsNewAccount() {
		log.Info().Str("email", res.NewAccount.Email).Msg("federated login for an unknown account")
		s.navigate(Navigation{Path: s.routes.ProfileCompletion, NewAccount: res.NewAccount})
		return res.NewAccount, nil
	}

	if err := s.Login(ctx, res.TokenPair, *res.User, redirectPath); err != nil {
		return nil, err
	}
	return nil, nil
}
