package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-client/internal/config"
)

// TokenIntrospection is what the backend knows about a presented access token.
// If Active is false, other fields may not be populated.
type TokenIntrospection struct {
	Active bool    `json:"active"`          // True or false - Is the token valid
	Exp    *int64  `json:"exp,omitempty"`   // Expiration
	Iat    *int64  `json:"iat,omitempty"`   // Issued at time
	Iss    *string `json:"iss,omitempty"`   // Issuer of the token
	Sub    *string `json:"sub,omitempty"`   // Users unique ID
	Email  string  `json:"email,omitempty"` // Users email address
}

// Inspector validates access tokens issued by Creator.
type Inspector struct {
	config config.TokenConfig
}

// NewInspector creates a new JWT inspector
func NewInspector(cfg config.TokenConfig) *Inspector {
	return &Inspector{config: cfg}
}

// Introspect verifies the signature and issuer. An expired token is returned
// inactive with a nil error.
func (i *Inspector) Introspect(rawToken string) (*TokenIntrospection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &TokenIntrospection{Active: false}, nil
	}

	token, err := jwtlib.ParseWithClaims(rawToken, jwtlib.MapClaims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(i.config.GetJWTSecret()), nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(i.config.GetIssuer()),
		jwtlib.WithTimeFunc(NowTimeFunc),
	)
	if errors.Is(err, jwtlib.ErrTokenExpired) {
		return &TokenIntrospection{Active: false}, nil
	}
	if err != nil || !token.Valid {
		return &TokenIntrospection{Active: false}, err
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return &TokenIntrospection{Active: false}, errors.New("error extracting claims from token")
	}

	iss, _ := claims["iss"].(string)
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)

	iatInt := int64(iat)
	expInt := int64(exp)

	return &TokenIntrospection{
		Active: sub != "",
		Exp:    &expInt,
		Iat:    &iatInt,
		Iss:    &iss,
		Sub:    &sub,
		Email:  email,
	}, nil
}

// ExpiresAt reads the exp claim without verifying the signature. The client
// uses it for display and scheduling only; the backend remains the authority.
func ExpiresAt(rawToken string) (time.Time, error) {
	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, errors.New("token missing exp claim")
	}
	return exp.Time, nil
}
