package bridge

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies bridge failures so callers can react to the category
// without parsing messages.
type Kind int

const (
	// KindConnection covers transport and session failures, including
	// "not established" and mid-operation channel loss.
	KindConnection Kind = iota
	// KindAuthentication covers rejected passwords or keys.
	KindAuthentication
	// KindTimeout covers command or elevation deadline expiry.
	KindTimeout
	// KindInvalidParams covers malformed input caught before any remote call.
	KindInvalidParams
	// KindElevationFailed covers an su handshake that could not complete.
	KindElevationFailed
	// KindKeyParse covers malformed private key material.
	KindKeyParse
)

// Error is the typed error returned by all bridge operations.
type Error struct {
	kind    Kind
	msg     string
	cause   error
	elapsed int64 // milliseconds, timeout errors only
}

func (e *Error) Error() string {
	msg := e.msg
	if e.cause != nil {
		if msg != "" {
			msg = msg + ": " + e.cause.Error()
		} else {
			msg = e.cause.Error()
		}
	}
	switch e.kind {
	case KindConnection:
		return "SSH connection error: " + msg
	case KindAuthentication:
		return "Authentication failed: " + msg
	case KindTimeout:
		return fmt.Sprintf("Command timeout after %dms", e.elapsed)
	case KindInvalidParams:
		return "Invalid parameters: " + msg
	case KindElevationFailed:
		return "Elevation failed: " + msg
	case KindKeyParse:
		return "SSH key error: " + msg
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Kind reports the error category.
func (e *Error) Kind() Kind { return e.kind }

// ElapsedMs reports the elapsed milliseconds for timeout errors, 0 otherwise.
func (e *Error) ElapsedMs() int64 { return e.elapsed }

func newConnectionError(format string, args ...interface{}) *Error {
	return &Error{kind: KindConnection, msg: fmt.Sprintf(format, args...)}
}

func wrapConnectionError(cause error, format string, args ...interface{}) *Error {
	return &Error{kind: KindConnection, msg: fmt.Sprintf(format, args...), cause: cause}
}

func newAuthError(format string, args ...interface{}) *Error {
	return &Error{kind: KindAuthentication, msg: fmt.Sprintf(format, args...)}
}

func wrapAuthError(cause error, format string, args ...interface{}) *Error {
	return &Error{kind: KindAuthentication, msg: fmt.Sprintf(format, args...), cause: cause}
}

func newTimeoutError(elapsedMs int64) *Error {
	return &Error{kind: KindTimeout, elapsed: elapsedMs}
}

func newInvalidParamsError(format string, args ...interface{}) *Error {
	return &Error{kind: KindInvalidParams, msg: fmt.Sprintf(format, args...)}
}

func newElevationError(format string, args ...interface{}) *Error {
	return &Error{kind: KindElevationFailed, msg: fmt.Sprintf(format, args...)}
}

func wrapElevationError(cause error, format string, args ...interface{}) *Error {
	return &Error{kind: KindElevationFailed, msg: fmt.Sprintf(format, args...), cause: cause}
}

func wrapKeyParseError(cause error, format string, args ...interface{}) *Error {
	return &Error{kind: KindKeyParse, msg: fmt.Sprintf(format, args...), cause: cause}
}

func isKind(err error, kind Kind) bool {
	var e *Error
	if pkgerrors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

// IsConnection reports whether err is a transport or session failure.
func IsConnection(err error) bool { return isKind(err, KindConnection) }

// IsAuthentication reports whether err is a rejected credential.
func IsAuthentication(err error) bool { return isKind(err, KindAuthentication) }

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool { return isKind(err, KindTimeout) }

// IsInvalidParams reports whether err is a local input validation failure.
func IsInvalidParams(err error) bool { return isKind(err, KindInvalidParams) }

// IsElevationFailed reports whether err is a failed su handshake.
func IsElevationFailed(err error) bool { return isKind(err, KindElevationFailed) }

// IsKeyParse reports whether err is malformed private key material.
func IsKeyParse(err error) bool { return isKind(err, KindKeyParse) }
