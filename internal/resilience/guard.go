package resilience

import (
	"context"
	"time"
)

type invoiceKey struct{}

// WithInvoice tags ctx with the invoice a boundary call works for. Retry log
// lines carry the tag.
func WithInvoice(ctx context.Context, invoiceID string) context.Context {
	return context.WithValue(ctx, invoiceKey{}, invoiceID)
}

func invoiceFrom(ctx context.Context) string {
	id, _ := ctx.Value(invoiceKey{}).(string)
	return id
}

// Guard bounds one kind of boundary call.
type Guard struct {
	Service string
	Timeout time.Duration
	Retry   RetryConfig
	Breaker *CircuitBreaker
}

// NewGuard builds a guard for service using its breaker from breakers.
// A nil breakers disables circuit breaking.
func NewGuard(service string, timeout time.Duration, retry RetryConfig, breakers *ServiceBreakers) Guard {
	g := Guard{Service: service, Timeout: timeout, Retry: retry}
	if breakers != nil {
		g.Breaker = breakers.Get(service)
	}
	return g
}

// Call runs fn with a per-attempt timeout, inside the circuit breaker and the
// retry loop. Errors leave with a kind: a timed-out attempt is Timeout, an
// open circuit ServiceUnavailable. Without an OnRetry hook every retry is
// logged through RetryLogger.
func Call[T any](ctx context.Context, g Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	retry := g.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = RetryLogger(g.Service, invoiceFrom(ctx))
	}

	attempt := func(ctx context.Context) (T, error) {
		actx := ctx
		if g.Timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, g.Timeout)
			defer cancel()
		}
		v, err := fn(actx)
		return v, Classify(g.Service, err)
	}

	guarded := attempt
	if g.Breaker != nil {
		guarded = func(ctx context.Context) (T, error) {
			return ExecuteVal(ctx, g.Breaker, attempt)
		}
	}
	return DoVal(ctx, retry, guarded)
}
