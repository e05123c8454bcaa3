package agent

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/invoice-cli/internal/model"
)

// Limited throttles a Completer to rps requests per second.
type Limited struct {
	next    Completer
	limiter *rate.Limiter
}

// NewLimited wraps next. A non-positive rps disables throttling.
func NewLimited(next Completer, rps float64, burst int) Completer {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Name implements Completer.
func (l *Limited) Name() string { return l.next.Name() }

// Complete waits for a token and then delegates.
func (l *Limited) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, model.NewKindError(model.KindTimeout, "agent: rate limit", eris.Wrap(err, "wait"))
	}
	return l.next.Complete(ctx, p)
}
