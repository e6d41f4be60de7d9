package server

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/rs/zerolog/log"
)

const seedUserName = "Demo User"

// InitialiseSystem creates the seed account if it does not exist yet.
// Returns the generated password on first creation (empty string otherwise).
func InitialiseSystem(cfg config.BackendConfig, accounts users.AccountRepo) (generatedPassword string, err error) {
	email := cfg.GetSeedUserEmail()
	if _, err := accounts.GetByEmail(email); err == nil {
		return "", nil
	}

	password := cfg.GetSeedUserPassword()
	if password == "" {
		password, err = generatePassword()
		if err != nil {
			return "", fmt.Errorf("[InitialiseSystem] failed to generate password: %w", err)
		}
		generatedPassword = password
	} else if err := users.ValidatePasswordStrength(password); err != nil {
		return "", fmt.Errorf("[InitialiseSystem] seed password: %w", err)
	}

	hash, err := users.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("[InitialiseSystem] failed to hash password: %w", err)
	}
	account := &users.Account{
		User:         users.User{Name: seedUserName, Email: email},
		PasswordHash: hash,
	}
	if err := accounts.Upsert(account); err != nil {
		return "", fmt.Errorf("[InitialiseSystem] failed to create seed account: %w", err)
	}

	evt := log.Info().Str("email", email).Str("user_id", account.ID)
	if generatedPassword != "" {
		evt = evt.Str("password", generatedPassword)
	}
	evt.Msg("seed account created")
	return generatedPassword, nil
}

// generatePassword returns a random password that passes ValidatePasswordStrength.
func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "Aa1" + base64.RawURLEncoding.EncodeToString(b), nil
}
