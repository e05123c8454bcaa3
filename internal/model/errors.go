package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures at the pipeline boundaries.
type ErrorKind string

const (
	KindInputUnreadable    ErrorKind = "InputUnreadable"
	KindServiceUnavailable ErrorKind = "ServiceUnavailable"
	KindMalformedResponse  ErrorKind = "MalformedResponse"
	KindRegistryViolation  ErrorKind = "RegistryViolation"
	KindOutOfDomain        ErrorKind = "OutOfDomain"
	KindTimeout            ErrorKind = "Timeout"
	KindRefused            ErrorKind = "Refused"
	KindQuotaExceeded      ErrorKind = "QuotaExceeded"
	KindMalformedInput     ErrorKind = "MalformedInput"
)

// KindError attaches an ErrorKind to an error.
type KindError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// NewKindError wraps err with kind for operation op.
func NewKindError(kind ErrorKind, op string, err error) *KindError {
	return &KindError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the first ErrorKind found in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
