// Package apperr defines the closed set of failure kinds the gateway reports
// to clients. Adapters wrap their causes in an *Error so the HTTP layer can
// translate every failure through a single function.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation              Kind = "ValidationError"
	KindInvalidAmount           Kind = "InvalidAmount"
	KindOverflow                Kind = "Overflow"
	KindAccountResolutionFailed Kind = "AccountResolutionFailed"
	KindNoAccountsAvailable     Kind = "NoAccountsAvailable"
	KindProductUnavailable      Kind = "ProductUnavailable"
	KindLedgerCallReverted      Kind = "LedgerCallReverted"
	KindLedgerRPC               Kind = "LedgerRPCError"
	KindLedgerTimeout           Kind = "LedgerTimeout"
	KindNotFound                Kind = "NotFound"
	KindRateLimited             Kind = "RateLimited"
	KindUnknown                 Kind = "Unknown"
)

// Error is a classified failure. Reason is only set for reverted ledger calls.
type Error struct {
	Kind    Kind
	Message string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperr.New(KindOverflow, ""))
// works as a kind test.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind wrapping err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Reverted returns a KindLedgerCallReverted error carrying the revert reason.
func Reverted(method, reason string, cause error) *Error {
	msg := fmt.Sprintf("%s reverted", method)
	if reason != "" {
		msg = fmt.Sprintf("%s reverted: %s", method, reason)
	}
	return &Error{Kind: KindLedgerCallReverted, Message: msg, Reason: reason, Err: cause}
}

// KindOf reports the kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf returns the revert reason carried by err, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
