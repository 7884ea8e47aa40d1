package errors

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can branch on the category of a
// failure instead of parsing messages.
type Kind string

const (
	KindLogin        Kind = "login"
	KindQRTimeout    Kind = "qrcode_timeout"
	KindTokenExpired Kind = "token_expired"
	KindRateLimit    Kind = "rate_limit"
	KindNetwork      Kind = "network"
	KindFetch        Kind = "fetch"
	KindBrowser      Kind = "browser"
)

// Error carries a failure kind alongside the message and, for platform-level
// failures, the HTTP status or base_resp return code that produced it.
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message while keeping it reachable
// through errors.Unwrap.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Wrapf annotates err with a kind and a formatted message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithCode creates an error that records a status or platform return code.
func WithCode(kind Kind, code int, message string) *Error {
	return &Error{Kind: kind, Message: message, Code: code}
}

// KindOf returns the kind of err, or the empty kind when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is of the given kind. A QR code timeout is a
// login failure whose bounded wait elapsed unconfirmed, so it also satisfies
// KindLogin.
func IsKind(err error, kind Kind) bool {
	k := KindOf(err)
	if k == kind {
		return true
	}
	return kind == KindLogin && k == KindQRTimeout
}

// IsRetryable reports whether the failure is transient at the transport
// level. Auth and throttle failures are never retried automatically; the
// caller decides what to do with them.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork:
		return true
	default:
		return false
	}
}
