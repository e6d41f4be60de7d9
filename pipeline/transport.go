// Package pipeline dispatches API requests with the current access token and
// recovers once from an expired token.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// HeaderRequestID correlates an original attempt with its replay.
const HeaderRequestID = "X-Request-ID"

// TokenSource reads the session's credentials at send time.
type TokenSource interface {
	// CurrentToken returns the stored access token and the id of the user it
	// was issued to. Both are "" when anonymous.
	CurrentToken(ctx context.Context) (token, userID string)
}

// FreshTokenFunc obtains a new access token after a 401.
type FreshTokenFunc func(ctx context.Context) (string, error)

// Transport is an http.RoundTripper that injects the bearer token on every
// attempt and replays a request at most once after a 401.
type Transport struct {
	base   http.RoundTripper
	tokens TokenSource
	fresh  FreshTokenFunc
	bypass []string
}

// New returns a Transport. A 401 on a request whose path ends with one of
// bypassPaths is returned as-is; use it for the refresh endpoint and for
// endpoints that never carry a bearer.
func New(base http.RoundTripper, tokens TokenSource, fresh FreshTokenFunc, bypassPaths ...string) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:   base,
		tokens: tokens,
		fresh:  fresh,
		bypass: bypassPaths,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	token, userID := t.tokens.CurrentToken(req.Context())
	return t.send(req, attempt{token: token, userID: userID}, requestID)
}

// attempt is the credential one try was sent with.
type attempt struct {
	n      int
	token  string
	userID string
}

// send performs one attempt. a.n is 0 for the original request and 1 for
// the single replay.
func (t *Transport) send(req *http.Request, a attempt, requestID string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if a.n > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("[Transport.send] rewind body: %w", err)
		}
		out.Body = body
	}
	out.Header.Set(HeaderRequestID, requestID)
	out.Header.Del("Authorization")
	if a.token != "" {
		(&oauth2.Token{AccessToken: a.token}).SetAuthHeader(out)
	}

	log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("request_id", requestID).
		Int("attempt", a.n).
		Bool("bearer", a.token != "").
		Msg("api request")

	resp, err := t.base.RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if a.n > 0 || t.bypassed(req.URL.Path) {
		return resp, nil
	}
	return t.recover(req, resp, a, requestID)
}

// recover replays req once. The replay is only ever sent for the identity the
// original attempt carried; a 401 that races a logout or a switch of user is
// returned unchanged.
func (t *Transport) recover(req *http.Request, resp *http.Response, used attempt, requestID string) (*http.Response, error) {
	ctx := req.Context()

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		metrics.PipelineReplaysTotal.WithLabelValues("not_replayable").Inc()
		log.Warn().Str("path", req.URL.Path).Msg("401 on a request whose body cannot be replayed")
		return resp, nil
	}

	stored, storedUserID := t.tokens.CurrentToken(ctx)
	if storedUserID != used.userID || (used.token != "" && stored == "") {
		metrics.PipelineReplaysTotal.WithLabelValues("identity_changed").Inc()
		log.Debug().Str("path", req.URL.Path).Str("request_id", requestID).Msg("session changed while request was in flight, not replaying")
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	token, outcome := stored, "reused"
	if stored == used.token {
		var err error
		token, err = t.fresh(ctx)
		if err != nil {
			metrics.PipelineReplaysTotal.WithLabelValues("refresh_error").Inc()
			return nil, fmt.Errorf("[Transport.recover] %s %s: %w", req.Method, req.URL.Path, err)
		}
		// The refreshed pair is only stored for the session that asked for it,
		// but a new login can land before the replay goes out.
		if _, current := t.tokens.CurrentToken(ctx); current != used.userID {
			metrics.PipelineReplaysTotal.WithLabelValues("identity_changed").Inc()
			return nil, fmt.Errorf("[Transport.recover] %s %s: %w", req.Method, req.URL.Path, sessionerrors.ErrIdentityChanged)
		}
		outcome = "refreshed"
	}

	metrics.PipelineReplaysTotal.WithLabelValues(outcome).Inc()
	log.Debug().Str("path", req.URL.Path).Str("request_id", requestID).Str("outcome", outcome).Msg("replaying after 401")
	return t.send(req, attempt{n: 1, token: token, userID: used.userID}, requestID)
}

func (t *Transport) bypassed(path string) bool {
	for _, p := range t.bypass {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// Base returns the wrapped transport.
func (t *Transport) Base() http.RoundTripper {
	return t.base
}
