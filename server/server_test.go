package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-session-client/pipeline"
	"github.com/jrsteele09/go-session-client/credentials"
	"github.com/jrsteele09/go-session-client/credentials/memstore"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/server"
	"github.com/jrsteele09/go-session-client/session"
	refreshrepofake "github.com/jrsteele09/go-session-client/token/refresh/repofake"
	"github.com/jrsteele09/go-session-client/users"
	fakeuserrepo "github.com/jrsteele09/go-session-client/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "Str0ngPassword"
)

type testBackend struct {
	srv      *httptest.Server
	accounts users.AccountRepo
}

func newTestBackend(t *testing.T, opts ...server.Option) *testBackend {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SEED_USER_EMAIL", testEmail)
	t.Setenv("SEED_USER_PASSWORD", testPassword)

	cfg := config.New()
	accounts := fakeuserrepo.NewFakeAccountRepo()
	_, err := server.InitialiseSystem(cfg, accounts)
	require.NoError(t, err)

	s, err := server.New(cfg, server.Repos{
		Accounts:      accounts,
		RefreshTokens: refreshrepofake.NewFakeRefreshTokenRepo(),
	}, opts...)
	require.NoError(t, err)

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return &testBackend{srv: srv, accounts: accounts}
}

func (b *testBackend) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(b.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (b *testBackend) login(t *testing.T) map[string]interface{} {
	t.Helper()
	resp := b.post(t, server.RouteAuthLogin, map[string]string{"authenticator": testEmail, "pass": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestInitialiseSystem(t *testing.T) {
	t.Run("generates a password when none is configured", func(t *testing.T) {
		t.Setenv("SEED_USER_PASSWORD", "")
		accounts := fakeuserrepo.NewFakeAccountRepo()

		password, err := server.InitialiseSystem(config.New(), accounts)
		require.NoError(t, err)
		require.NoError(t, users.ValidatePasswordStrength(password))

		account, err := accounts.GetByEmail(config.New().GetSeedUserEmail())
		require.NoError(t, err)
		require.True(t, users.CheckPasswordHash(password, account.PasswordHash))

		again, err := server.InitialiseSystem(config.New(), accounts)
		require.NoError(t, err)
		require.Empty(t, again)
	})

	t.Run("weak configured password is rejected", func(t *testing.T) {
		t.Setenv("SEED_USER_PASSWORD", "weak")
		_, err := server.InitialiseSystem(config.New(), fakeuserrepo.NewFakeAccountRepo())
		require.Error(t, err)
	})
}

func TestLoginHandler(t *testing.T) {
	b := newTestBackend(t)

	body := b.login(t)
	require.NotEmpty(t, body["accessToken"])
	require.NotEmpty(t, body["refreshToken"])

	resp := b.post(t, server.RouteAuthLogin, map[string]string{"authenticator": testEmail, "pass": "Wr0ngPassword"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_grant", decode(t, resp)["error"])

	resp = b.post(t, server.RouteAuthLogin, map[string]string{"authenticator": testEmail})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	account, err := b.accounts.GetByEmail(testEmail)
	require.NoError(t, err)
	account.Blocked = true
	require.NoError(t, b.accounts.Upsert(account))
	resp = b.post(t, server.RouteAuthLogin, map[string]string{"authenticator": testEmail, "pass": testPassword})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRefreshTokenHandler_Rotates(t *testing.T) {
	b := newTestBackend(t)
	first := b.login(t)

	resp := b.post(t, server.RouteAuthRefresh, map[string]string{"refreshToken": first["refreshToken"].(string)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode(t, resp)
	require.NotEqual(t, first["refreshToken"], second["refreshToken"])
	require.NotEqual(t, first["accessToken"], second["accessToken"])

	// The consumed token cannot be presented again
	resp = b.post(t, server.RouteAuthRefresh, map[string]string{"refreshToken": first["refreshToken"].(string)})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfileHandlers(t *testing.T) {
	b := newTestBackend(t)
	access := b.login(t)["accessToken"].(string)

	get := func(token string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, b.srv.URL+server.RouteAuthProfile, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := get(access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, testEmail, decode(t, resp)["email"])

	require.Equal(t, http.StatusUnauthorized, get("").StatusCode)
	require.Equal(t, http.StatusUnauthorized, get("not-a-jwt").StatusCode)

	patch := func(body string) *http.Response {
		req, err := http.NewRequest(http.MethodPatch, b.srv.URL+server.RouteAuthProfile, bytes.NewBufferString(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+access)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp = patch(`{"name":"Ada L."}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Ada L.", decode(t, resp)["name"])

	require.Equal(t, http.StatusBadRequest, patch(`{"name":"  "}`).StatusCode)
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	b := newTestBackend(t)
	t.Setenv("ACCESS_TOKEN_TTL", "-1m")
	access := b.login(t)["accessToken"].(string)

	req, err := http.NewRequest(http.MethodGet, b.srv.URL+server.RouteAuthProfile, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGoogleHandler(t *testing.T) {
	b := newTestBackend(t, server.WithProviderTokens(server.StaticProviderTokens{
		"known":   {Sub: "g-1", Email: testEmail, Name: "Ada", Picture: "https://img.example.com/ada.png"},
		"unknown": {Sub: "g-2", Email: "new@example.com", Name: "Newcomer"},
	}))

	t.Run("known email links the provider and signs in", func(t *testing.T) {
		resp := b.post(t, server.RouteAuthGoogle, map[string]string{"accessToken": "known"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode(t, resp)
		require.NotEmpty(t, body["accessToken"])
		require.NotEmpty(t, body["refreshToken"])
		require.Equal(t, testEmail, body["user"].(map[string]interface{})["email"])

		linked, err := b.accounts.GetByExternalID("g-1")
		require.NoError(t, err)
		require.Equal(t, "https://img.example.com/ada.png", linked.PictureURL())
	})

	t.Run("unknown email returns a new account", func(t *testing.T) {
		resp := b.post(t, server.RouteAuthGoogle, map[string]string{"accessToken": "unknown"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode(t, resp)
		require.Nil(t, body["accessToken"])
		newAccount := body["newAccount"].(map[string]interface{})
		require.Equal(t, "new@example.com", newAccount["email"])
		require.Equal(t, "g-2", newAccount["sub"])
	})

	t.Run("rejected provider token", func(t *testing.T) {
		resp := b.post(t, server.RouteAuthGoogle, map[string]string{"accessToken": "forged"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestCorsMiddleware(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://app.example.com")
	b := newTestBackend(t)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, b.srv.URL+server.RouteAuthLogin, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := preflight("https://app.example.com")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")

	resp = preflight("https://evil.example.com")
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRequestIDEchoed(t *testing.T) {
	b := newTestBackend(t)
	req, err := http.NewRequest(http.MethodPost, b.srv.URL+server.RouteAuthLogin, bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	req.Header.Set(pipeline.HeaderRequestID, "req-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "req-123", resp.Header.Get(pipeline.HeaderRequestID))
}

func TestSessionAgainstBackend(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	store := credentials.NewStore(memstore.New())

	svc, err := session.New(ctx, store, b.srv.URL)
	require.NoError(t, err)
	require.NoError(t, svc.LoginWithPassword(ctx, testEmail, testPassword, ""))
	require.True(t, svc.IsLogged())

	profile, err := svc.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, testEmail, profile.Email)

	before := store.Read(ctx)
	require.True(t, svc.RefreshAuth(ctx))
	after := store.Read(ctx)
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)
	require.True(t, svc.IsLogged())

	require.NoError(t, svc.Logout(ctx))
	require.False(t, svc.IsLogged())
	require.False(t, store.Read(ctx).Authenticated())
}
