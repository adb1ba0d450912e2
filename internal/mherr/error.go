// Package mherr defines the error taxonomy shared by every mihomo-rs
// component: a small set of kinds, a retryability predicate consulted
// by internal/retry, and constructors that carry an operation tag.
package mherr

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure. Retryable(err) is derived solely from Kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindServiceUnavailable
	KindAuth
	KindNotFound
	KindInvalidParameter
	KindConfig
	KindDataProcessing
	KindService
	KindSystem
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "Network"
	case KindTimeout:
		return "Timeout"
	case KindServiceUnavailable:
		return "ServiceUnavailable"
	case KindAuth:
		return "Auth"
	case KindNotFound:
		return "NotFound"
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindConfig:
		return "Config"
	case KindDataProcessing:
		return "DataProcessing"
	case KindService:
		return "Service"
	case KindSystem:
		return "System"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across every package in this
// module. Op names the component/operation that raised it (e.g.
// "proxymgr.SwitchProxy"), mirroring the context tag described in
// spec.md §4.1.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Op != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Constructors. Each takes an operation tag, a human message, and an
// optional wrapped cause (pass nil if there is none).

func Network(op, message string, cause error) *Error {
	return newErr(KindNetwork, op, message, cause)
}

func Timeout(op, message string, cause error) *Error {
	return newErr(KindTimeout, op, message, cause)
}

func ServiceUnavailable(op, message string, cause error) *Error {
	return newErr(KindServiceUnavailable, op, message, cause)
}

func Auth(op, message string) *Error {
	return newErr(KindAuth, op, message, nil)
}

func NotFound(op, message string) *Error {
	return newErr(KindNotFound, op, message, nil)
}

func InvalidParameter(op, message string) *Error {
	return newErr(KindInvalidParameter, op, message, nil)
}

func Config(op, message string, cause error) *Error {
	return newErr(KindConfig, op, message, cause)
}

func DataProcessing(op, message string, cause error) *Error {
	return newErr(KindDataProcessing, op, message, cause)
}

func Service(op, message string) *Error {
	return newErr(KindService, op, message, nil)
}

func System(op, message string, cause error) *Error {
	return newErr(KindSystem, op, message, cause)
}

func Internal(op, message string) *Error {
	return newErr(KindInternal, op, message, nil)
}

// Retryable implements spec.md §4.1/§7: true iff the error's category is
// Network, Timeout, or ServiceUnavailable. Everything else, including
// errors this package did not produce, is treated as non-retryable.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindNetwork, KindTimeout, KindServiceUnavailable:
		return true
	default:
		return false
	}
}

// FromStatus maps an HTTP status code onto the taxonomy, per spec.md
// §4.3/§6.1: 401/403 -> Auth, 404 -> NotFound, 5xx -> ServiceUnavailable,
// everything else non-2xx -> Service carrying the status and body.
func FromStatus(op string, status int, body string) error {
	switch {
	case status == 401 || status == 403:
		return Auth(op, fmt.Sprintf("unauthorized (status %d)", status))
	case status == 404:
		return NotFound(op, "resource not found")
	case status >= 500:
		return ServiceUnavailable(op, fmt.Sprintf("engine returned %d: %s", status, body), nil)
	default:
		return Service(op, fmt.Sprintf("engine returned %d: %s", status, body))
	}
}
