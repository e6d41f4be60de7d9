// Package api is a typed client for the authentication backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-client/credentials"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/users"
	"golang.org/x/oauth2"
)

const maxErrorBody = 4 << 10

// Client calls the backend. Requests go through httpClient, which is expected
// to carry the request pipeline.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type loginRequest struct {
	Authenticator string `json:"authenticator"`
	Pass          string `json:"pass"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type googleRequest struct {
	AccessToken string `json:"accessToken"`
}

// GoogleResult is either a full session or a partial profile for an account
// that does not exist yet.
type GoogleResult struct {
	credentials.TokenPair
	User       *users.User       `json:"user,omitempty"`
	NewAccount *users.NewAccount `json:"newAccount,omitempty"`
}

// IsNewAccount reports the profile-completion branch.
func (r GoogleResult) IsNewAccount() bool {
	return r.NewAccount != nil && !r.Complete()
}

// Login exchanges a password for a token pair.
func (c *Client) Login(ctx context.Context, authenticator, pass string) (credentials.TokenPair, error) {
	var pair credentials.TokenPair
	if err := c.do(ctx, http.MethodPost, RouteLogin, "", loginRequest{authenticator, pass}, &pair); err != nil {
		return credentials.TokenPair{}, err
	}
	if !pair.Complete() {
		return credentials.TokenPair{}, fmt.Errorf("%w: login returned an incomplete token pair", sessionerrors.ErrUnexpectedResponse)
	}
	return pair, nil
}

// RefreshToken exchanges a refresh token for a new pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (credentials.TokenPair, error) {
	var pair credentials.TokenPair
	if err := c.do(ctx, http.MethodPost, RouteRefreshToken, "", refreshRequest{refreshToken}, &pair); err != nil {
		return credentials.TokenPair{}, err
	}
	if !pair.Complete() {
		return credentials.TokenPair{}, fmt.Errorf("%w: refresh returned an incomplete token pair", sessionerrors.ErrUnexpectedResponse)
	}
	return pair, nil
}

// Google exchanges an identity provider token. Any response that is neither a
// full session nor a new account is ErrUnexpectedResponse.
func (c *Client) Google(ctx context.Context, providerToken string) (GoogleResult, error) {
	var res GoogleResult
	if err := c.do(ctx, http.MethodPost, RouteGoogle, "", googleRequest{providerToken}, &res); err != nil {
		return GoogleResult{}, err
	}
	switch {
	case res.Complete() && res.User != nil && res.User.ID != "":
		return res, nil
	case res.IsNewAccount():
		return res, nil
	default:
		return GoogleResult{}, fmt.Errorf("%w: google exchange returned neither a session nor a new account", sessionerrors.ErrUnexpectedResponse)
	}
}

// Profile returns the authenticated user.
func (c *Client) Profile(ctx context.Context) (users.User, error) {
	var user users.User
	if err := c.do(ctx, http.MethodGet, RouteProfile, "", nil, &user); err != nil {
		return users.User{}, err
	}
	return user, nil
}

// ProfileWithToken reads the profile with an explicit bearer, for a token
// pair that is not stored yet.
func (c *Client) ProfileWithToken(ctx context.Context, accessToken string) (users.User, error) {
	var user users.User
	if err := c.do(ctx, http.MethodGet, RouteProfile, accessToken, nil, &user); err != nil {
		return users.User{}, err
	}
	return user, nil
}

// UpdateProfile patches the authenticated user and returns the result.
func (c *Client) UpdateProfile(ctx context.Context, patch users.ProfilePatch) (users.User, error) {
	var user users.User
	if err := c.do(ctx, http.MethodPatch, RouteProfile, "", patch, &user); err != nil {
		return users.User{}, err
	}
	return user, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[Client.do] encode %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("[Client.do] build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.httpClient
	if bearer != "" {
		(&oauth2.Token{AccessToken: bearer}).SetAuthHeader(req)
		httpClient = c.plainClient()
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("[Client.do] %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", sessionerrors.ErrUnexpectedResponse, path, err)
	}
	return nil
}

// plainClient skips the pipeline so an explicit bearer is not replaced by the
// stored one.
func (c *Client) plainClient() *http.Client {
	plain := *c.httpClient
	if t, ok := plain.Transport.(interface{ Base() http.RoundTripper }); ok {
		plain.Transport = t.Base()
	}
	return &plain
}
