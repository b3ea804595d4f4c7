// Package errs carries the error taxonomy shared by every upstream-facing
// component. Callers branch on Kind: Auth means re-enter credentials,
// Network/Timeout are transient and safe to retry, Parse means the provider
// feed itself needs investigation.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	Network  Kind = "network"
	Timeout  Kind = "timeout"
	Server   Kind = "server"
	Auth     Kind = "auth"
	NotFound Kind = "not_found"
	Parse    Kind = "parse"
	Unknown  Kind = "unknown"
)

// Error is a tagged failure. StatusCode is set only for Server errors.
type Error struct {
	Kind       Kind
	StatusCode int
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Kind == Server && e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. A nil err returns nil.
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Status builds a Server error preserving the upstream status code, except
// 401/403 which are Auth and 404 which is NotFound.
func Status(code int, msg string) *Error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Kind: Auth, StatusCode: code, Msg: msg}
	case http.StatusNotFound:
		return &Error{Kind: NotFound, StatusCode: code, Msg: msg}
	default:
		return &Error{Kind: Server, StatusCode: code, Msg: msg}
	}
}

// KindOf extracts the taxonomy kind from any error chain. Transport errors
// from net/http are classified here so callers never see a bare *url.Error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return Timeout
		}
		return Network
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Network
	}
	return Unknown
}

// FromTransport tags an http.Client error as Timeout or Network.
func FromTransport(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	if kind != Timeout {
		kind = Network
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
