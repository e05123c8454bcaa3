package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/sells-group/invoice-cli/internal/model"
)

// IsTransient reports whether err is worth a retry: a ServiceUnavailable
// boundary failure or a network-level fault. An open circuit is not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if model.IsKind(err, model.KindServiceUnavailable) {
		return true
	}
	if model.KindOf(err) != "" {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// KindForStatus maps an HTTP status from a boundary service to an error kind.
// 529 is the overloaded status some inference APIs use.
func KindForStatus(status int) model.ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return model.KindQuotaExceeded
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return model.KindMalformedInput
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return model.KindTimeout
	default:
		return model.KindServiceUnavailable
	}
}

// Classify gives err a kind when it has none: deadline overruns become
// Timeout, network faults ServiceUnavailable. Kinded errors pass through.
func Classify(op string, err error) error {
	if err == nil || model.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewKindError(model.KindTimeout, op, err)
	}
	if IsTransient(err) {
		return model.NewKindError(model.KindServiceUnavailable, op, err)
	}
	return err
}
