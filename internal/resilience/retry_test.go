package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sells-group/invoice-cli/internal/model"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func unavailable() error {
	return model.NewKindError(model.KindServiceUnavailable, "test", errors.New("503"))
}

func TestDoVal_RetriesOnceOnServiceUnavailable(t *testing.T) {
	var calls int
	v, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", unavailable()
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "ok" || calls != 2 {
		t.Errorf("got %q after %d calls, want ok after 2", v, calls)
	}
}

func TestDoVal_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int
	var retried []int
	cfg := fastRetry(2)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	_, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		return 0, unavailable()
	})
	if !model.IsKind(err, model.KindServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if len(retried) != 1 || retried[0] != 1 {
		t.Errorf("expected one OnRetry(1), got %v", retried)
	}
}

func TestDoVal_NoRetryOnPermanentKinds(t *testing.T) {
	for _, kind := range []model.ErrorKind{model.KindMalformedResponse, model.KindRefused, model.KindTimeout, model.KindQuotaExceeded} {
		var calls int
		_, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (int, error) {
			calls++
			return 0, model.NewKindError(kind, "test", nil)
		})
		if !model.IsKind(err, kind) {
			t.Errorf("%s: unexpected error %v", kind, err)
		}
		if calls != 1 {
			t.Errorf("%s: expected 1 call, got %d", kind, calls)
		}
	}
}

func TestDoVal_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	_, err := DoVal(ctx, RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour}, func(_ context.Context) (int, error) {
		calls++
		cancel()
		return 0, unavailable()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestComputeBackoff_Capped(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, Multiplier: 10})
	if d := computeBackoff(0, cfg); d != time.Second {
		t.Errorf("attempt 0: got %s", d)
	}
	if d := computeBackoff(5, cfg); d != 3*time.Second {
		t.Errorf("attempt 5: got %s", d)
	}
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(0, 100, 0, 0)
	if cfg.MaxAttempts != 2 {
		t.Errorf("expected default 2 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 100*time.Millisecond {
		t.Errorf("got initial backoff %s", cfg.InitialBackoff)
	}
	if cfg.JitterFraction != 0 {
		t.Errorf("got jitter %v", cfg.JitterFraction)
	}

	cb := FromCircuitConfig(2, 10)
	if cb.FailureThreshold != 2 || cb.ResetTimeout != 10*time.Second {
		t.Errorf("unexpected circuit config %+v", cb)
	}
}
