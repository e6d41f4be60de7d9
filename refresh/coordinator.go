// Package refresh collapses concurrent demand for a new access token into a
// single call to the refresh endpoint.
package refresh

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jrsteele09/go-session-client/credentials"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const flightKey = "refresh"

// Endpoint exchanges a refresh token for a new pair.
type Endpoint interface {
	RefreshToken(ctx context.Context, refreshToken string) (credentials.TokenPair, error)
}

// Owner is the single writer of session state. The coordinator reads the
// refresh token from it and hands results back instead of writing the store itself.
type Owner interface {
	// RefreshToken returns the current refresh token, "" when anonymous.
	RefreshToken() string
	// Rotate stores pair if the session still holds usedRefreshToken,
	// otherwise returns ErrIdentityChanged.
	Rotate(ctx context.Context, usedRefreshToken string, pair credentials.TokenPair) error
	// Expire logs the session out unless it has moved on from usedRefreshToken.
	Expire(ctx context.Context, usedRefreshToken string)
}

type Coordinator struct {
	owner    Owner
	endpoint Endpoint
	group    singleflight.Group
	inFlight atomic.Bool
	calls    atomic.Int64
}

func New(owner Owner, endpoint Endpoint) *Coordinator {
	return &Coordinator{owner: owner, endpoint: endpoint}
}

// ObtainFreshToken returns a new access token. Callers arriving while a
// refresh is in flight wait for it and observe the same result.
// Cancelling ctx abandons the wait only; the refresh itself keeps running for
// the other waiters.
func (c *Coordinator) ObtainFreshToken(ctx context.Context) (string, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		return c.refresh(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RefreshSharedTotal.Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// InFlight reports whether a refresh call is active.
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

// Calls is the number of refresh endpoint calls made so far.
func (c *Coordinator) Calls() int64 {
	return c.calls.Load()
}

func (c *Coordinator) refresh(ctx context.Context) (string, error) {
	c.inFlight.Store(true)
	defer c.inFlight.Store(false)

	used := c.owner.RefreshToken()
	if used == "" {
		metrics.RefreshTotal.WithLabelValues("no_token").Inc()
		log.Warn().Msg("refresh requested without a refresh token, ending session")
		c.owner.Expire(ctx, "")
		return "", sessionerrors.ErrNoRefreshToken
	}

	c.calls.Add(1)
	pair, err := c.endpoint.RefreshToken(ctx, used)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("failure").Inc()
		log.Warn().Err(err).Msg("token refresh rejected, ending session")
		c.owner.Expire(ctx, used)
		return "", fmt.Errorf("%w: %w", sessionerrors.ErrRefreshFailed, err)
	}

	if err := c.owner.Rotate(ctx, used, pair); err != nil {
		metrics.RefreshTotal.WithLabelValues("failure").Inc()
		if !sessionerrors.Is(err, sessionerrors.ErrIdentityChanged) {
			log.Error().Err(err).Msg("refreshed tokens could not be stored, ending session")
			c.owner.Expire(ctx, used)
		}
		return "", fmt.Errorf("%w: %w", sessionerrors.ErrRefreshFailed, err)
	}

	metrics.RefreshTotal.WithLabelValues("success").Inc()
	log.Debug().Msg("access token refreshed")
	return pair.AccessToken, nil
}
