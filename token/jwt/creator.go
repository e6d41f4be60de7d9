package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Creator issues HMAC signed access tokens.
type Creator struct {
	config config.TokenConfig
}

// NewCreator creates a new JWT creator
func NewCreator(cfg config.TokenConfig) *Creator {
	return &Creator{
		config: cfg,
	}
}

// CreateAccessToken creates a bearer token for user.
func (c *Creator) CreateAccessToken(user *users.User) (*string, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("cannot issue an access token without a user")
	}
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"iss":   c.config.GetIssuer(),
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.Name,
		"iat":   now.Unix(),
		"exp":   now.Add(c.config.GetAccessTokenExpiry()).Unix(),
		"jti":   uuid.New().String(), // Unique token ID
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(c.config.GetJWTSecret()))
	if err != nil {
		return nil, fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return &signed, nil
}
