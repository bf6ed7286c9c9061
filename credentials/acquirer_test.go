package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/botfx/botauth"
	"github.com/botfx/botauth/internal/retry"
	"github.com/botfx/botauth/tokenstore/memory"
)

// scriptedExchanger counts exchanges and delegates to fn, optionally
// holding the acquisition slot open for a while first.
type scriptedExchanger struct {
	calls atomic.Int32
	delay time.Duration
	fn    func(call int32) (botauth.Token, error)
}

func (e *scriptedExchanger) exchange(context.Context) (botauth.Token, error) {
	call := e.calls.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	return e.fn(call)
}

func freshToken(value string) botauth.Token {
	return botauth.Token{AccessToken: value, ExpiresOn: time.Now().Add(time.Hour)}
}

// retrieveError fabricates the provider error shape the OAuth2 flows
// surface, wrapped the way exchangeClientCredentials wraps it.
func retrieveError(status int, retryAfter string) error {
	resp := &http.Response{StatusCode: status, Header: http.Header{}}
	if retryAfter != "" {
		resp.Header.Set("Retry-After", retryAfter)
	}
	return fmt.Errorf("client credentials exchange: %w", &oauth2.RetrieveError{Response: resp})
}

func TestGetTokenSingleFlight(t *testing.T) {
	ex := &scriptedExchanger{
		delay: 30 * time.Millisecond,
		fn:    func(int32) (botauth.Token, error) { return freshToken("shared"), nil },
	}
	a := newAcquirer(ex, memory.New(), "k")

	var wg sync.WaitGroup
	tokens := make([]botauth.Token, 100)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := a.GetToken(context.Background(), false)
			if err != nil {
				t.Errorf("GetToken: %v", err)
				return
			}
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	if calls := ex.calls.Load(); calls != 1 {
		t.Fatalf("exchanged %d times for 100 concurrent callers, want 1", calls)
	}
	for i, tok := range tokens {
		if tok.AccessToken != "shared" {
			t.Fatalf("caller %d got token %q", i, tok.AccessToken)
		}
	}
}

func TestGetTokenServesCached(t *testing.T) {
	ex := &scriptedExchanger{fn: func(int32) (botauth.Token, error) { return freshToken("one"), nil }}
	a := newAcquirer(ex, memory.New(), "k")

	for i := 0; i < 3; i++ {
		if _, err := a.GetToken(context.Background(), false); err != nil {
			t.Fatalf("GetToken %d: %v", i, err)
		}
	}
	if calls := ex.calls.Load(); calls != 1 {
		t.Fatalf("exchanged %d times, want 1", calls)
	}
}

func TestGetTokenForceRefresh(t *testing.T) {
	ex := &scriptedExchanger{fn: func(call int32) (botauth.Token, error) {
		return freshToken(fmt.Sprintf("token-%d", call)), nil
	}}
	a := newAcquirer(ex, memory.New(), "k")

	first, err := a.GetToken(context.Background(), false)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	second, err := a.GetToken(context.Background(), true)
	if err != nil {
		t.Fatalf("GetToken force: %v", err)
	}
	if first.AccessToken == second.AccessToken {
		t.Fatal("force refresh returned the cached token")
	}
	if calls := ex.calls.Load(); calls != 2 {
		t.Fatalf("exchanged %d times, want 2", calls)
	}
}

func TestGetTokenRejectionIsNotRetried(t *testing.T) {
	ex := &scriptedExchanger{fn: func(int32) (botauth.Token, error) {
		return botauth.Token{}, retrieveError(http.StatusBadRequest, "")
	}}
	a := newAcquirer(ex, memory.New(), "k")

	_, err := a.GetToken(context.Background(), false)
	if err == nil {
		t.Fatal("expected error")
	}
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		t.Fatalf("provider error not surfaced: %v", err)
	}
	if calls := ex.calls.Load(); calls != 1 {
		t.Fatalf("a rejected request was retried %d times", calls-1)
	}
}

func TestGetTokenRetriesTransientFailures(t *testing.T) {
	ex := &scriptedExchanger{fn: func(call int32) (botauth.Token, error) {
		if call < 3 {
			return botauth.Token{}, retrieveError(http.StatusInternalServerError, "")
		}
		return freshToken("eventually"), nil
	}}
	a := newAcquirer(ex, memory.New(), "k")

	tok, err := a.GetToken(context.Background(), false)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.AccessToken != "eventually" {
		t.Fatalf("token = %q", tok.AccessToken)
	}
	if calls := ex.calls.Load(); calls != 3 {
		t.Fatalf("exchanged %d times, want 3", calls)
	}
}

func TestGetTokenExhaustionAggregatesAttempts(t *testing.T) {
	ex := &scriptedExchanger{fn: func(int32) (botauth.Token, error) {
		return botauth.Token{}, retrieveError(http.StatusInternalServerError, "")
	}}
	a := newAcquirer(ex, memory.New(), "k")

	_, err := a.GetToken(context.Background(), false)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls := ex.calls.Load(); calls != retry.MaxAttempts {
		t.Fatalf("exchanged %d times, want %d", calls, retry.MaxAttempts)
	}
}

func TestGetTokenAfterClose(t *testing.T) {
	ex := &scriptedExchanger{fn: func(int32) (botauth.Token, error) { return freshToken("t"), nil }}
	a := newAcquirer(ex, memory.New(), "k")

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := a.GetToken(context.Background(), false); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if calls := ex.calls.Load(); calls != 0 {
		t.Fatal("closed acquirer still exchanged")
	}
}

func TestAcquireTimeoutRaisesThrottle(t *testing.T) {
	ex := &scriptedExchanger{fn: func(int32) (botauth.Token, error) { return freshToken("t"), nil }}
	a := newAcquirer(ex, memory.New(), "k")
	a.waitTimeout = 5 * time.Millisecond

	// Occupy the acquisition slot so the caller times out waiting.
	a.sem <- struct{}{}
	defer func() { <-a.sem }()

	t.Run("default hint", func(t *testing.T) {
		_, err := a.acquireOnce(context.Background(), false)
		var terr *ThrottleError
		if !errors.As(err, &terr) {
			t.Fatalf("err = %v, want ThrottleError", err)
		}
		if terr.RetryAfter != retry.DefaultInterval {
			t.Fatalf("retry after = %s, want default interval", terr.RetryAfter)
		}
	})

	t.Run("propagates last server hint", func(t *testing.T) {
		a.setThrottleHint(3 * time.Second)
		defer a.clearThrottleHint()

		_, err := a.acquireOnce(context.Background(), false)
		var terr *ThrottleError
		if !errors.As(err, &terr) {
			t.Fatalf("err = %v, want ThrottleError", err)
		}
		if terr.RetryAfter != 3*time.Second {
			t.Fatalf("retry after = %s, want 3s", terr.RetryAfter)
		}
	})
}

func TestAcquireCanceledContext(t *testing.T) {
	ex := &scriptedExchanger{fn: func(int32) (botauth.Token, error) { return freshToken("t"), nil }}
	a := newAcquirer(ex, memory.New(), "k")

	a.sem <- struct{}{}
	defer func() { <-a.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.acquireOnce(ctx, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestClassifyThrottling(t *testing.T) {
	newTestAcquirer := func() *TokenAcquirer {
		ex := &scriptedExchanger{fn: func(int32) (botauth.Token, error) { return freshToken("t"), nil }}
		return newAcquirer(ex, memory.New(), "k")
	}

	t.Run("retry-after seconds", func(t *testing.T) {
		a := newTestAcquirer()
		err := a.classify(context.Background(), retrieveError(http.StatusTooManyRequests, "3"))
		var terr *ThrottleError
		if !errors.As(err, &terr) {
			t.Fatalf("err = %v, want ThrottleError", err)
		}
		if terr.RetryAfter != 3*time.Second {
			t.Fatalf("retry after = %s, want 3s", terr.RetryAfter)
		}
		if hint := a.throttleHint(); hint != 3*time.Second {
			t.Fatalf("stored hint = %s, want 3s", hint)
		}
	})

	t.Run("oversized hint clamped", func(t *testing.T) {
		a := newTestAcquirer()
		err := a.classify(context.Background(), retrieveError(http.StatusTooManyRequests, "3600"))
		var terr *ThrottleError
		if !errors.As(err, &terr) {
			t.Fatalf("err = %v, want ThrottleError", err)
		}
		if terr.RetryAfter != retry.MaxServerHint {
			t.Fatalf("retry after = %s, want clamp %s", terr.RetryAfter, retry.MaxServerHint)
		}
	})

	t.Run("http date hint", func(t *testing.T) {
		a := newTestAcquirer()
		at := time.Now().Add(5 * time.Second).UTC().Format(http.TimeFormat)
		err := a.classify(context.Background(), retrieveError(http.StatusTooManyRequests, at))
		var terr *ThrottleError
		if !errors.As(err, &terr) {
			t.Fatalf("err = %v, want ThrottleError", err)
		}
		if terr.RetryAfter <= 0 || terr.RetryAfter > retry.MaxServerHint {
			t.Fatalf("retry after = %s", terr.RetryAfter)
		}
	})

	t.Run("throttled without hint uses default", func(t *testing.T) {
		a := newTestAcquirer()
		err := a.classify(context.Background(), retrieveError(http.StatusTooManyRequests, ""))
		var terr *ThrottleError
		if !errors.As(err, &terr) {
			t.Fatalf("err = %v, want ThrottleError", err)
		}
		if terr.RetryAfter != retry.DefaultInterval {
			t.Fatalf("retry after = %s, want default interval", terr.RetryAfter)
		}
	})

	t.Run("server error passes through", func(t *testing.T) {
		a := newTestAcquirer()
		err := a.classify(context.Background(), retrieveError(http.StatusInternalServerError, ""))
		var terr *ThrottleError
		if errors.As(err, &terr) {
			t.Fatal("5xx classified as throttle")
		}
	})
}

func TestThrottleHintClearedOnSuccess(t *testing.T) {
	ex := &scriptedExchanger{fn: func(int32) (botauth.Token, error) { return freshToken("t"), nil }}
	a := newAcquirer(ex, memory.New(), "k")

	a.setThrottleHint(7 * time.Second)
	if _, err := a.GetToken(context.Background(), false); err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if hint := a.throttleHint(); hint != retry.DefaultInterval {
		t.Fatalf("hint after success = %s, want reset to default", hint)
	}
}
