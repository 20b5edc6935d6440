package apiclient

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/jrsteele09/go-opportuci/internal/errors"
	"github.com/jrsteele09/go-opportuci/internal/metrics"
)

type refreshResult struct {
	token string
	err   error
}

// refreshState coalesces concurrent refreshes. While refreshing is true no
// second refresh is started; callers append a waiter instead. Waiters are
// resolved in enqueue order once the in-flight refresh settles. generation
// is bumped by every Logout; a refresh that started under an older generation
// must not write its tokens back.
type refreshState struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
	generation uint64
}

// errSessionEnded is returned by a refresh whose session was logged out while
// the refresh call was on the wire.
var errSessionEnded = apperrors.Wrapf(ErrNoSession, "logged out during refresh")

func (st *refreshState) currentGeneration() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.generation
}

func (st *refreshState) endSession() {
	st.mu.Lock()
	st.generation++
	st.mu.Unlock()
}

// recoverToken returns an access token to replay with after stale was
// rejected. If the stored token already differs from stale, a refresh has
// completed since the request was sent and the stored token is returned
// directly. Otherwise the caller joins (or starts) the single in-flight refresh.
func (c *Client) recoverToken(ctx context.Context, stale string) (string, error) {
	return c.awaitRefresh(ctx, stale, false)
}

// awaitRefresh blocks until the in-flight refresh settles, starting one if
// none is running. A cancelled ctx releases this caller only; the refresh
// itself runs to completion for the remaining waiters.
func (c *Client) awaitRefresh(ctx context.Context, stale string, force bool) (string, error) {
	st := &c.refresh
	ch := make(chan refreshResult, 1)

	st.mu.Lock()
	if !st.refreshing && !force {
		if current, ok := c.rotatedSince(ctx, stale); ok {
			st.mu.Unlock()
			return current, nil
		}
	}
	st.waiters = append(st.waiters, ch)
	starter := !st.refreshing
	st.refreshing = true
	queued := len(st.waiters)
	st.mu.Unlock()

	if starter {
		c.logger.Debug().Msg("starting token refresh")
		go c.settleRefresh(context.WithoutCancel(ctx), stale)
	} else {
		c.metrics.ObserveRefreshWaiter()
		c.logger.Debug().Int("position", queued).Msg("waiting on in-flight token refresh")
	}

	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// rotatedSince reports the stored access token when it is no longer stale.
// Called with refresh.mu held.
func (c *Client) rotatedSince(ctx context.Context, stale string) (string, bool) {
	if stale == "" {
		return "", false
	}
	s, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("reading session before refresh")
		return "", false
	}
	if s.AccessToken != "" && s.AccessToken != stale {
		return s.AccessToken, true
	}
	return "", false
}

// settleRefresh performs the refresh and drains the waiter queue with its
// outcome. refreshing is cleared in the same critical section that takes the
// queue, so a caller arriving afterwards sees the new token in the store.
func (c *Client) settleRefresh(ctx context.Context, stale string) {
	token, err := c.runRefresh(ctx, stale)

	st := &c.refresh
	st.mu.Lock()
	waiters := st.waiters
	st.waiters = nil
	st.refreshing = false
	st.mu.Unlock()

	event := c.logger.Info()
	if err != nil {
		event = c.logger.Warn().Err(err)
	}
	event.Int("waiters", len(waiters)).Bool("ok", err == nil).Msg("token refresh settled")

	for _, w := range waiters {
		w <- refreshResult{token: token, err: err}
	}
}

// runRefresh bounds the refresh by the refresh timeout and, with a locker
// configured, serialises it against other clients sharing the store. Any
// failure logs the session out.
func (c *Client) runRefresh(ctx context.Context, stale string) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	token, shared, err := c.lockedRefresh(rctx, stale)
	if err != nil {
		if errors.Is(rctx.Err(), context.DeadlineExceeded) {
			err = apperrors.Wrapf(ErrRefreshTimeout, "after %s: %v", c.refreshTimeout, err)
		}
		c.metrics.ObserveRefresh(metrics.OutcomeFailure)
		// A session ended mid-refresh has already been logged out.
		if !errors.Is(err, errSessionEnded) {
			c.Logout(ctx)
		}
		return "", &RefreshError{Cause: err}
	}

	if shared {
		c.metrics.ObserveRefresh(metrics.OutcomeShared)
	} else {
		c.metrics.ObserveRefresh(metrics.OutcomeSuccess)
	}
	return token, nil
}

func (c *Client) lockedRefresh(ctx context.Context, stale string) (string, bool, error) {
	if c.locker == nil {
		token, err := c.exchangeRefreshToken(ctx)
		return token, false, err
	}

	unlock, err := c.locker.Lock(ctx)
	if err != nil {
		return "", false, err
	}
	defer unlock()

	// Another process may have refreshed while this one waited for the lock.
	if s, err := c.store.Load(ctx); err == nil && s.AccessToken != "" && stale != "" && s.AccessToken != stale {
		c.logger.Debug().Msg("token already refreshed by another client")
		return s.AccessToken, true, nil
	}

	token, err := c.exchangeRefreshToken(ctx)
	return token, false, err
}
