package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 64 << 10

type loginRequest struct {
	Authenticator string `json:"authenticator"`
	Pass          string `json:"pass"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type googleRequest struct {
	AccessToken string `json:"accessToken"` // Provider access token
}

type tokenResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         *users.User `json:"user,omitempty"`
}

type newAccountResponse struct {
	NewAccount users.NewAccount `json:"newAccount"`
}

// LoginHandler exchanges an email and password for a token pair.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Authenticator == "" || req.Pass == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "authenticator and pass are required")
			return
		}

		account, err := s.repos.Accounts.GetByEmail(req.Authenticator)
		// Don't reveal if the account exists or not
		if err != nil || account.PasswordHash == "" || !users.CheckPasswordHash(req.Pass, account.PasswordHash) {
			writeError(w, http.StatusUnauthorized, "invalid_grant", "invalid credentials")
			return
		}
		if account.Blocked {
			writeError(w, http.StatusForbidden, "account_blocked", "Account is blocked. Contact support.")
			return
		}

		pair, err := s.issueTokens(account)
		if err != nil {
			log.Error().Err(err).Str("user_id", account.ID).Msg("failed to issue tokens")
			writeError(w, http.StatusInternalServerError, "server_error", "failed to issue tokens")
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

// RefreshTokenHandler rotates a refresh token. The presented token is consumed.
func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		rotated, err := s.refresh.Rotate(req.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_grant", "refresh token is invalid or expired")
			return
		}

		account, err := s.repos.Accounts.GetByID(rotated.UserID)
		if err != nil || account.Blocked {
			_ = s.refresh.Revoke(rotated.UserID)
			writeError(w, http.StatusUnauthorized, "invalid_grant", "account is not available")
			return
		}

		access, err := s.creator.CreateAccessToken(&account.User)
		if err != nil {
			log.Error().Err(err).Str("user_id", account.ID).Msg("failed to issue access token")
			writeError(w, http.StatusInternalServerError, "server_error", "failed to issue tokens")
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: *access, RefreshToken: rotated.Token})
	}
}

// GoogleHandler exchanges a provider token. A known account gets a session;
// an unknown email gets the partial profile for sign-up.
func (s *Server) GoogleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req googleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		identity, err := s.providers.Lookup(r.Context(), req.AccessToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_grant", "provider token was rejected")
			return
		}

		account, err := s.repos.Accounts.GetByExternalID(identity.Sub)
		if err != nil {
			account, err = s.repos.Accounts.GetByEmail(identity.Email)
		}
		if err != nil {
			writeJSON(w, http.StatusOK, newAccountResponse{NewAccount: users.NewAccount{
				Email:   identity.Email,
				Name:    identity.Name,
				Picture: identity.Picture,
				Sub:     identity.Sub,
			}})
			return
		}
		if account.Blocked {
			writeError(w, http.StatusForbidden, "account_blocked", "Account is blocked. Contact support.")
			return
		}

		if utils.Value(account.ExternalProviderID) == "" {
			account.ExternalProviderID = utils.Ptr(identity.Sub)
			if account.Picture == nil && identity.Picture != "" {
				account.Picture = utils.Ptr(identity.Picture)
			}
			if err := s.repos.Accounts.Upsert(account); err != nil {
				log.Warn().Err(err).Str("user_id", account.ID).Msg("failed to link provider identity")
			}
		}

		pair, err := s.issueTokens(account)
		if err != nil {
			log.Error().Err(err).Str("user_id", account.ID).Msg("failed to issue tokens")
			writeError(w, http.StatusInternalServerError, "server_error", "failed to issue tokens")
			return
		}
		user := account.User
		pair.User = &user
		writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := s.repos.Accounts.GetByID(userIDFromContext(r.Context()))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token", "unknown user")
			return
		}
		writeJSON(w, http.StatusOK, account.User)
	}
}

func (s *Server) PatchProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := s.repos.Accounts.GetByID(userIDFromContext(r.Context()))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token", "unknown user")
			return
		}

		var patch users.ProfilePatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name cannot be empty")
			return
		}

		account.User = patch.Apply(account.User)
		if err := s.repos.Accounts.Upsert(account); err != nil {
			log.Error().Err(err).Str("user_id", account.ID).Msg("failed to update profile")
			writeError(w, http.StatusInternalServerError, "server_error", "failed to update profile")
			return
		}
		writeJSON(w, http.StatusOK, account.User)
	}
}

func (s *Server) issueTokens(account *users.Account) (tokenResponse, error) {
	access, err := s.creator.CreateAccessToken(&account.User)
	if err != nil {
		return tokenResponse{}, err
	}
	refresh, err := s.refresh.Create(account.ID)
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{AccessToken: *access, RefreshToken: *refresh}, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
