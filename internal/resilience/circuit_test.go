package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sells-group/invoice-cli/internal/model"
)

func fail(cb *CircuitBreaker, err error) error {
	_, got := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) {
		return 0, err
	})
	return got
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for range 3 {
		_ = fail(cb, unavailable())
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	_, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) {
		t.Error("should not be called when circuit is open")
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if !model.IsKind(err, model.KindServiceUnavailable) {
		t.Errorf("open circuit should read as ServiceUnavailable, got %q", model.KindOf(err))
	}
}

func TestCircuitBreaker_IgnoresNonServiceFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	_ = fail(cb, model.NewKindError(model.KindMalformedResponse, "test", nil))
	_ = fail(cb, model.NewKindError(model.KindRefused, "test", nil))
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}

	_ = fail(cb, model.NewKindError(model.KindTimeout, "test", nil))
	if cb.State() != CircuitOpen {
		t.Errorf("timeout should trip, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.nowFunc = func() time.Time { return now }

	_ = fail(cb, unavailable())
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	now = now.Add(2 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}

	if err := fail(cb, nil); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.nowFunc = func() time.Time { return now }

	_ = fail(cb, unavailable())
	now = now.Add(2 * time.Second)
	_ = fail(cb, unavailable())
	if cb.State() != CircuitOpen {
		t.Errorf("expected open, got %s", cb.State())
	}
}

func TestServiceBreakers(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	if sb.Get("ocr") != sb.Get("ocr") {
		t.Error("expected the same breaker for the same service")
	}
	_ = fail(sb.Get("ocr"), unavailable())

	states := sb.States()
	if states["ocr"] != CircuitOpen {
		t.Errorf("ocr: got %s", states["ocr"])
	}
	if sb.Get("agent.header").State() != CircuitClosed {
		t.Error("breakers should be independent")
	}
}
