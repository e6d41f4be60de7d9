package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-client/internal/config"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo   Repo
	config config.TokenConfig
	lock   sync.Mutex
}

// NewManager creates a new refresh token manager
func NewManager(repo Repo, cfg config.TokenConfig) *Manager {
	return &Manager{
		repo:   repo,
		config: cfg,
	}
}

// Create issues a refresh token for userID, replacing any previous one.
func (m *Manager) Create(userID string) (*string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.create(userID)
}

// Rotate consumes token and issues its replacement. A token can be rotated
// only once.
func (m *Manager) Rotate(token string) (*StoredRefreshToken, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	rt, err := m.repo.Get(token)
	if err != nil {
		return nil, sessionerrors.ErrInvalidRefreshToken
	}
	if m.IsExpired(rt) {
		_ = m.repo.Delete(token)
		return nil, sessionerrors.ErrTokenExpired
	}

	next, err := m.create(rt.UserID)
	if err != nil {
		return nil, err
	}
	return m.repo.Get(*next)
}

// Revoke drops the refresh token held by userID, if any.
func (m *Manager) Revoke(userID string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	rt, err := m.repo.GetByUserID(userID)
	if err != nil {
		return nil
	}
	return m.repo.Delete(rt.Token)
}

// IsExpired checks if a refresh token has outlived the configured expiry
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return NowTimeFunc().Sub(rt.Iat) > m.config.GetRefreshTokenExpiry()
}

func (m *Manager) create(userID string) (*string, error) {
	// Single refresh token per user
	if existingToken, err := m.repo.GetByUserID(userID); err == nil && existingToken != nil {
		if err := m.repo.Delete(existingToken.Token); err != nil {
			return nil, fmt.Errorf("failed to delete existing refresh token: %w", err)
		}
	}

	tokenBytes := make([]byte, m.config.GetRefreshTokenLength())
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:  tokenStr,
		UserID: userID,
		Iat:    NowTimeFunc(),
	}); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &tokenStr, nil
}
