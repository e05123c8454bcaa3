package agent

import (
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/resilience"
)

// statusError gives an API failure its kind. Rate limiting and overload are
// both ServiceUnavailable so they get the single retry. A zero status leaves
// err to the caller's classification.
func statusError(op string, status int, err error) error {
	if status == 0 {
		return err
	}
	kind := resilience.KindForStatus(status)
	if status == http.StatusTooManyRequests {
		kind = model.KindServiceUnavailable
	}
	return model.NewKindError(kind, op, err)
}

func refused(op, reason string) error {
	return model.NewKindError(model.KindRefused, op, eris.Errorf("model declined: %s", reason))
}

func malformed(op string, err error) error {
	return model.NewKindError(model.KindMalformedResponse, op, err)
}
