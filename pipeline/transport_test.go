package pipeline_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/pipeline"
	"github.com/stretchr/testify/require"
)

type tokenBox struct {
	mu     sync.Mutex
	token  string
	userID string
}

func (b *tokenBox) CurrentToken(context.Context) (string, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token, b.userID
}

func (b *tokenBox) set(tok string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = tok
}

// switchUser replaces the whole session, as a logout followed by a login does.
func (b *tokenBox) switchUser(tok, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token, b.userID = tok, userID
}

type seen struct {
	auth      string
	requestID string
	body      string
}

// backend accepts only bearer tokens listed in valid and records every request.
type backend struct {
	mu       sync.Mutex
	valid    map[string]bool
	status   int
	requests []seen
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.requests = append(b.requests, seen{
		auth:      r.Header.Get("Authorization"),
		requestID: r.Header.Get(pipeline.HeaderRequestID),
		body:      string(body),
	})
	status, valid := b.status, b.valid
	b.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !valid[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func (b *backend) recorded() []seen {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]seen(nil), b.requests...)
}

func newClient(tokens pipeline.TokenSource, fresh pipeline.FreshTokenFunc) *http.Client {
	return &http.Client{Transport: pipeline.New(nil, tokens, fresh, "/auth/refreshToken", "/auth/login")}
}

func noRefresh(t *testing.T) pipeline.FreshTokenFunc {
	return func(context.Context) (string, error) {
		t.Fatal("refresh must not be called")
		return "", nil
	}
}

func TestTransport_InjectsBearer(t *testing.T) {
	be := &backend{valid: map[string]bool{"A1": true}}
	srv := httptest.NewServer(be)
	defer srv.Close()

	t.Run("authenticated", func(t *testing.T) {
		client := newClient(&tokenBox{token: "A1"}, noRefresh(t))
		resp, err := client.Get(srv.URL + "/auth/profile")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		last := be.recorded()[len(be.recorded())-1]
		require.Equal(t, "Bearer A1", last.auth)
		require.NotEmpty(t, last.requestID)
	})

	t.Run("anonymous sends no header", func(t *testing.T) {
		client := newClient(&tokenBox{}, noRefresh(t))
		resp, err := client.Post(srv.URL+"/auth/login", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		last := be.recorded()[len(be.recorded())-1]
		require.Empty(t, last.auth)
	})

	t.Run("token is read at send time", func(t *testing.T) {
		box := &tokenBox{token: "A0"}
		client := newClient(box, noRefresh(t))
		box.set("A1")
		resp, err := client.Get(srv.URL + "/auth/profile")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestTransport_RefreshesAndReplaysOnce(t *testing.T) {
	be := &backend{valid: map[string]bool{"A2": true}}
	srv := httptest.NewServer(be)
	defer srv.Close()

	box := &tokenBox{token: "A1"}
	var refreshes atomic.Int32
	client := newClient(box, func(context.Context) (string, error) {
		refreshes.Add(1)
		box.set("A2")
		return "A2", nil
	})

	req, err := http.NewRequest(http.MethodPatch, srv.URL+"/auth/profile", strings.NewReader(`{"name":"Bea"}`))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, int32(1), refreshes.Load())
	requests := be.recorded()
	require.Len(t, requests, 2)
	require.Equal(t, "Bearer A1", requests[0].auth)
	require.Equal(t, "Bearer A2", requests[1].auth)
	require.Equal(t, requests[0].requestID, requests[1].requestID)
	require.Equal(t, `{"name":"Bea"}`, requests[1].body)
}

func TestTransport_RetryOnceBound(t *testing.T) {
	be := &backend{valid: map[string]bool{}}
	srv := httptest.NewServer(be)
	defer srv.Close()

	var refreshes atomic.Int32
	client := newClient(&tokenBox{token: "A1"}, func(context.Context) (string, error) {
		refreshes.Add(1)
		return "A2", nil
	})

	resp, err := client.Get(srv.URL + "/auth/profile")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(1), refreshes.Load())
	require.Len(t, be.recorded(), 2)
}

func TestTransport_RefreshEndpointNeverRecurses(t *testing.T) {
	be := &backend{valid: map[string]bool{}}
	srv := httptest.NewServer(be)
	defer srv.Close()

	client := newClient(&tokenBox{token: "A1"}, noRefresh(t))
	resp, err := client.Post(srv.URL+"/auth/refreshToken", "application/json", strings.NewReader(`{"refreshToken":"R1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Len(t, be.recorded(), 1)
}

func TestTransport_PassesThroughOtherStatuses(t *testing.T) {
	for _, status := range []int{http.StatusPaymentRequired, http.StatusForbidden, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			be := &backend{status: status}
			srv := httptest.NewServer(be)
			defer srv.Close()

			client := newClient(&tokenBox{token: "A1"}, noRefresh(t))
			resp, err := client.Get(srv.URL + "/auth/profile")
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, status, resp.StatusCode)
			require.Len(t, be.recorded(), 1)
		})
	}
}

func TestTransport_ReusesTokenRefreshedConcurrently(t *testing.T) {
	box := &tokenBox{token: "A1"}
	be := &backend{valid: map[string]bool{"A2": true}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Another request's refresh lands while this one is on the wire.
		box.set("A2")
		be.ServeHTTP(w, r)
	}))
	defer srv.Close()

	client := newClient(box, noRefresh(t))
	resp, err := client.Get(srv.URL + "/auth/profile")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	requests := be.recorded()
	require.Len(t, requests, 2)
	require.Equal(t, "Bearer A2", requests[1].auth)
}

func TestTransport_RefreshErrorReachesCaller(t *testing.T) {
	be := &backend{valid: map[string]bool{}}
	srv := httptest.NewServer(be)
	defer srv.Close()

	client := newClient(&tokenBox{token: "A1"}, func(context.Context) (string, error) {
		return "", sessionerrors.ErrRefreshFailed
	})

	resp, err := client.Get(srv.URL + "/auth/profile")
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	require.True(t, errors.Is(err, sessionerrors.ErrRefreshFailed))
	require.Len(t, be.recorded(), 1)
}

func TestTransport_UnreplayableBodyReturns401(t *testing.T) {
	be := &backend{valid: map[string]bool{}}
	srv := httptest.NewServer(be)
	defer srv.Close()

	client := newClient(&tokenBox{token: "A1"}, noRefresh(t))
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/profile", io.NopCloser(strings.NewReader("x")))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTransport_NeverReplaysAsAnotherUser(t *testing.T) {
	t.Run("user switched while request was on the wire", func(t *testing.T) {
		box := &tokenBox{token: "A1", userID: "ada"}
		be := &backend{valid: map[string]bool{"B1": true}}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Ada logs out and Bob logs in before Ada's request is answered.
			box.switchUser("B1", "bob")
			be.ServeHTTP(w, r)
		}))
		defer srv.Close()

		client := newClient(box, noRefresh(t))
		req, err := http.NewRequest(http.MethodPatch, srv.URL+"/auth/profile", strings.NewReader(`{"name":"Ada"}`))
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		requests := be.recorded()
		require.Len(t, requests, 1)
		require.Equal(t, "Bearer A1", requests[0].auth)
	})

	t.Run("session ended while request was on the wire", func(t *testing.T) {
		box := &tokenBox{token: "A1", userID: "ada"}
		be := &backend{valid: map[string]bool{}}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			box.switchUser("", "")
			be.ServeHTTP(w, r)
		}))
		defer srv.Close()

		client := newClient(box, noRefresh(t))
		resp, err := client.Get(srv.URL + "/auth/profile")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Len(t, be.recorded(), 1)
	})

	t.Run("login lands during the refresh", func(t *testing.T) {
		box := &tokenBox{token: "A1", userID: "ada"}
		be := &backend{valid: map[string]bool{"A2": true, "B1": true}}
		srv := httptest.NewServer(be)
		defer srv.Close()

		client := newClient(box, func(context.Context) (string, error) {
			box.switchUser("B1", "bob")
			return "A2", nil
		})
		resp, err := client.Get(srv.URL + "/auth/profile")
		if resp != nil {
			resp.Body.Close()
		}
		require.ErrorIs(t, err, sessionerrors.ErrIdentityChanged)
		require.Len(t, be.recorded(), 1)
	})
}
