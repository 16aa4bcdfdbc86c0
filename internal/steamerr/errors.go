// Package steamerr defines the error kinds surfaced by the session and confirmation layers.
package steamerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure so callers can decide whether to retry, re-authenticate or give up.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidSecret
	KindInvalidCredentials
	KindCaptchaRequired
	KindTooManyRequests
	KindRateLimited
	KindLoginRequired
	KindLoginFailed
	KindConfirmationNotFound
	KindConfirmationRejected
	KindServerError
	KindInvalidResponse
	KindTradeHold
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindInvalidSecret:        "invalid_secret",
	KindInvalidCredentials:   "invalid_credentials",
	KindCaptchaRequired:      "captcha_required",
	KindTooManyRequests:      "too_many_requests",
	KindRateLimited:          "rate_limited",
	KindLoginRequired:        "login_required",
	KindLoginFailed:          "login_failed",
	KindConfirmationNotFound: "confirmation_not_found",
	KindConfirmationRejected: "confirmation_rejected",
	KindServerError:          "server_error",
	KindInvalidResponse:      "invalid_response",
	KindTradeHold:            "trade_hold",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrInvalidSecret        = &Error{kind: KindInvalidSecret, msg: "invalid secret"}
	ErrInvalidCredentials   = &Error{kind: KindInvalidCredentials, msg: "invalid credentials"}
	ErrCaptchaRequired      = &Error{kind: KindCaptchaRequired, msg: "captcha required"}
	ErrTooManyRequests      = &Error{kind: KindTooManyRequests, msg: "too many requests"}
	ErrRateLimited          = &Error{kind: KindRateLimited, msg: "rate limited"}
	ErrLoginRequired        = &Error{kind: KindLoginRequired, msg: "login required"}
	ErrLoginFailed          = &Error{kind: KindLoginFailed, msg: "login failed"}
	ErrConfirmationNotFound = &Error{kind: KindConfirmationNotFound, msg: "confirmation not found"}
	ErrConfirmationRejected = &Error{kind: KindConfirmationRejected, msg: "confirmation rejected"}
	ErrServerError          = &Error{kind: KindServerError, msg: "server error"}
	ErrInvalidResponse      = &Error{kind: KindInvalidResponse, msg: "invalid response"}
	ErrTradeHold            = &Error{kind: KindTradeHold, msg: "trade hold"}
)

// Error is a classified failure. The cause, if any, keeps the original error for diagnostics.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New returns an error of the given kind.
func New(kind Kind, msg string) error {
	return errors.WithStack(&Error{kind: kind, msg: msg})
}

// Newf returns an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{kind: kind, msg: fmt.Sprintf(format, args...)})
}

// Wrap classifies cause under kind. A nil cause yields nil.
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, cause: errors.WithStack(cause)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	return Wrap(kind, cause, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.kind == e.kind
}

// Kind returns the kind of the error.
func (e *Error) Kind() Kind {
	return e.kind
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the caller may retry after backing off.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTooManyRequests, KindRateLimited, KindConfirmationNotFound, KindServerError:
		return true
	default:
		return false
	}
}
