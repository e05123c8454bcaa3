package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/invoice-cli/internal/model"
)

func TestCall_TimeoutBecomesKind(t *testing.T) {
	g := Guard{Service: "agent.header", Timeout: 10 * time.Millisecond, Retry: fastRetry(2)}

	var calls int
	_, err := Call(context.Background(), g, func(ctx context.Context) (string, error) {
		calls++
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !model.IsKind(err, model.KindTimeout) {
		t.Fatalf("expected Timeout, got %v", err)
	}
	if calls != 1 {
		t.Errorf("timeouts are not retried, got %d calls", calls)
	}
}

func TestCall_RetryThenSuccess(t *testing.T) {
	sb := NewServiceBreakers(DefaultCircuitBreakerConfig())
	g := NewGuard("ocr", time.Second, fastRetry(2), sb)

	var calls int
	v, err := Call(context.Background(), g, func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, unavailable()
		}
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("got %d, %v", v, err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestCall_OpenCircuitNotRetried(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	g := NewGuard("ocr", 0, fastRetry(3), sb)

	var calls int
	_, err := Call(context.Background(), g, func(_ context.Context) (int, error) {
		calls++
		return 0, unavailable()
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after the breaker tripped, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestClassify(t *testing.T) {
	if Classify("x", nil) != nil {
		t.Error("nil stays nil")
	}
	if !model.IsKind(Classify("x", context.DeadlineExceeded), model.KindTimeout) {
		t.Error("deadline should be Timeout")
	}
	plain := errors.New("boom")
	if Classify("x", plain) != plain {
		t.Error("unclassified errors pass through")
	}
	if !model.IsKind(Classify("x", errors.New("read: connection reset by peer")), model.KindServiceUnavailable) {
		t.Error("network fault should be ServiceUnavailable")
	}
}

func TestKindForStatus(t *testing.T) {
	cases := map[int]model.ErrorKind{
		429: model.KindQuotaExceeded,
		400: model.KindMalformedInput,
		415: model.KindMalformedInput,
		504: model.KindTimeout,
		500: model.KindServiceUnavailable,
		503: model.KindServiceUnavailable,
		529: model.KindServiceUnavailable,
	}
	for status, want := range cases {
		if got := KindForStatus(status); got != want {
			t.Errorf("%d: got %s, want %s", status, got, want)
		}
	}
}

func TestCall_RetryIsLoggedWithInvoice(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	defer zap.ReplaceGlobals(zap.New(core))()

	g := NewGuard("agent.lineitems", time.Second, fastRetry(2), nil)
	ctx := WithInvoice(context.Background(), "2025-0042")

	var calls int
	_, err := Call(ctx, g, func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, unavailable()
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.FilterMessage("resilience: retrying boundary call").All()
	if len(entries) != 1 {
		t.Fatalf("expected one retry log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["service"] != "agent.lineitems" || fields["invoice"] != "2025-0042" {
		t.Errorf("unexpected fields %v", fields)
	}
	if fields["attempt"] != int64(1) {
		t.Errorf("expected attempt 1, got %v", fields["attempt"])
	}
}

func TestCall_CustomOnRetryKept(t *testing.T) {
	retry := fastRetry(2)
	var attempts []int
	retry.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }
	g := NewGuard("ocr", time.Second, retry, nil)

	_, err := Call(context.Background(), g, func(_ context.Context) (int, error) {
		return 0, unavailable()
	})
	if err == nil {
		t.Fatal("expected error after the retry")
	}
	if len(attempts) != 1 || attempts[0] != 1 {
		t.Errorf("expected one OnRetry call for attempt 1, got %v", attempts)
	}
}
