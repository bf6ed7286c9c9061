package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/botfx/botauth"
	"github.com/botfx/botauth/internal/retry"
	"github.com/botfx/botauth/tokenstore"
)

const (
	// acquireWaitTimeout bounds how long a caller waits for the in-flight
	// acquisition before giving up with a throttle signal.
	acquireWaitTimeout = 10 * time.Second

	// refreshMargin refreshes tokens this far ahead of expiry so callers
	// never send a token that dies in flight.
	refreshMargin = 5 * time.Minute
)

// exchanger is the strategy-specific network exchange: one call, one
// token. Implementations surface provider errors as *oauth2.RetrieveError
// so the acquirer can classify them.
type exchanger interface {
	exchange(ctx context.Context) (botauth.Token, error)
}

// TokenAcquirer caches and refreshes one access token for one credential
// identity. Acquisitions are linearized: a 1-slot semaphore admits at most
// one network exchange at a time, and contenders that cannot enter the
// critical section within the wait timeout raise a throttle signal rather
// than hitting the provider themselves.
//
// The throttle hint is written only inside the critical section (set on a
// 429, cleared on success) so a reader never observes a hint from a
// refresh it was not synchronized with.
type TokenAcquirer struct {
	ex    exchanger
	store tokenstore.Store
	key   string

	sem         chan struct{}
	waitTimeout time.Duration

	mu     sync.Mutex
	hint   time.Duration
	closed bool
}

func newAcquirer(ex exchanger, store tokenstore.Store, key string) *TokenAcquirer {
	return &TokenAcquirer{
		ex:          ex,
		store:       store,
		key:         key,
		sem:         make(chan struct{}, 1),
		waitTimeout: acquireWaitTimeout,
	}
}

// GetToken returns a valid token, acquiring one when the cache is empty,
// expired, or forceRefresh is set. Acquisition failures are retried per
// the shared policy; on exhaustion the error aggregates every attempt.
func (a *TokenAcquirer) GetToken(ctx context.Context, forceRefresh bool) (botauth.Token, error) {
	if a.isClosed() {
		return botauth.Token{}, ErrClosed
	}

	if forceRefresh {
		if err := a.store.Delete(ctx, a.key); err != nil {
			slog.WarnContext(ctx, "token cache delete failed", slog.String("err", err.Error()))
		}
	} else if tok, ok := a.cached(ctx); ok {
		return tok, nil
	}

	return retry.Run(ctx, func() (botauth.Token, error) {
		return a.acquireOnce(ctx, forceRefresh)
	})
}

// Close tears the acquirer down; subsequent GetToken calls fail with
// ErrClosed immediately.
func (a *TokenAcquirer) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}

func (a *TokenAcquirer) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *TokenAcquirer) cached(ctx context.Context) (botauth.Token, bool) {
	entry, err := a.store.Get(ctx, a.key)
	if err != nil {
		slog.WarnContext(ctx, "token cache read failed", slog.String("err", err.Error()))
		return botauth.Token{}, false
	}
	if entry == nil {
		return botauth.Token{}, false
	}
	tok := botauth.Token{AccessToken: entry.AccessToken, ExpiresOn: entry.ExpiresOn}
	if tok.Expired(time.Now(), refreshMargin) {
		return botauth.Token{}, false
	}
	return tok, true
}

func (a *TokenAcquirer) acquireOnce(ctx context.Context, forceRefresh bool) (botauth.Token, error) {
	timer := time.NewTimer(a.waitTimeout)
	defer timer.Stop()

	select {
	case a.sem <- struct{}{}:
	case <-timer.C:
		hint := a.throttleHint()
		terr := &ThrottleError{
			RetryAfter: hint,
			Err:        errors.New("timed out waiting for in-flight token acquisition"),
		}
		return botauth.Token{}, retry.After(hint, terr)
	case <-ctx.Done():
		return botauth.Token{}, retry.Permanent(ctx.Err())
	}
	defer func() { <-a.sem }()

	if a.isClosed() {
		return botauth.Token{}, retry.Permanent(ErrClosed)
	}

	// Another flight may have refreshed while we waited on the slot.
	if !forceRefresh {
		if tok, ok := a.cached(ctx); ok {
			return tok, nil
		}
	}

	tok, err := a.ex.exchange(ctx)
	if err != nil {
		return botauth.Token{}, a.classify(ctx, err)
	}

	a.clearThrottleHint()
	if err := a.store.Put(ctx, a.key, tokenstore.Entry{
		AccessToken: tok.AccessToken,
		ExpiresOn:   tok.ExpiresOn,
	}); err != nil {
		slog.WarnContext(ctx, "token cache write failed", slog.String("err", err.Error()))
	}
	return tok, nil
}

// classify maps a provider error onto the retry policy: throttling is
// retryable with the server's hint, any other 4xx can never succeed and
// stops immediately, everything else gets the default backoff.
func (a *TokenAcquirer) classify(ctx context.Context, err error) error {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) || rerr.Response == nil {
		return err
	}

	status := rerr.Response.StatusCode
	if status == http.StatusTooManyRequests || rerr.ErrorCode == "temporarily_unavailable" {
		delta, at := parseRetryAfter(rerr.Response)
		state := retry.FromServerHint(delta, at)
		a.setThrottleHint(state.After)
		slog.DebugContext(ctx, "identity provider throttled token acquisition",
			slog.Duration("retry_after", state.After))
		return retry.After(state.After, &ThrottleError{RetryAfter: state.After, Err: err})
	}
	if status >= 400 && status < 500 {
		return retry.Permanent(fmt.Errorf("token request rejected: %w", err))
	}
	return err
}

func (a *TokenAcquirer) throttleHint() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hint > 0 {
		return a.hint
	}
	return retry.DefaultInterval
}

// setThrottleHint and clearThrottleHint are only called while the caller
// holds the acquisition slot.
func (a *TokenAcquirer) setThrottleHint(d time.Duration) {
	a.mu.Lock()
	a.hint = d
	a.mu.Unlock()
}

func (a *TokenAcquirer) clearThrottleHint() {
	a.mu.Lock()
	a.hint = 0
	a.mu.Unlock()
}

func parseRetryAfter(resp *http.Response) (time.Duration, time.Time) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, time.Time{}
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, time.Time{}
	}
	if at, err := http.ParseTime(v); err == nil {
		return 0, at
	}
	return 0, time.Time{}
}
