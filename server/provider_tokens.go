package server

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"golang.org/x/oauth2"
)

// ProviderIdentity is what the identity provider says about a token's owner.
type ProviderIdentity struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// ProviderTokens resolves a google access token to an identity.
type ProviderTokens interface {
	Lookup(ctx context.Context, providerToken string) (ProviderIdentity, error)
}

// StaticProviderTokens is a fixed token table for local use and tests.
type StaticProviderTokens map[string]ProviderIdentity

func (t StaticProviderTokens) Lookup(_ context.Context, providerToken string) (ProviderIdentity, error) {
	id, ok := t[providerToken]
	if !ok {
		return ProviderIdentity{}, sessionerrors.ErrInvalidToken
	}
	return id, nil
}

// OIDCProviderTokens resolves tokens through the provider's userinfo endpoint.
type OIDCProviderTokens struct {
	provider *oidc.Provider
	fallback ProviderTokens
}

// NewOIDCProviderTokens discovers issuer. Tokens the provider rejects are
// tried against fallback when it is set.
func NewOIDCProviderTokens(ctx context.Context, issuer string, fallback ProviderTokens) (*OIDCProviderTokens, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s: %w", issuer, err)
	}
	return &OIDCProviderTokens{provider: provider, fallback: fallback}, nil
}

func (p *OIDCProviderTokens) Lookup(ctx context.Context, providerToken string) (ProviderIdentity, error) {
	info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: providerToken}))
	if err != nil {
		if p.fallback != nil {
			return p.fallback.Lookup(ctx, providerToken)
		}
		return ProviderIdentity{}, fmt.Errorf("%w: %v", sessionerrors.ErrInvalidToken, err)
	}

	var id ProviderIdentity
	if err := info.Claims(&id); err != nil {
		return ProviderIdentity{}, fmt.Errorf("failed to decode userinfo claims: %w", err)
	}
	id.Sub = info.Subject
	id.Email = info.Email
	return id, nil
}
