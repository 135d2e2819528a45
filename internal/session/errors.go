package session

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes request failures.
type ErrorCode string

const (
	// ErrCodeConfig indicates a missing credential or invalid map id.
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeUsage indicates a request that was rejected before any I/O,
	// such as blocking with callbacks.
	ErrCodeUsage ErrorCode = "USAGE"

	// ErrCodeTransport indicates the server could not be reached.
	ErrCodeTransport ErrorCode = "TRANSPORT"

	// ErrCodeStatus indicates a non-200 HTTP status.
	ErrCodeStatus ErrorCode = "STATUS"

	// ErrCodeNotOK indicates a 200 response whose status field was not "ok".
	ErrCodeNotOK ErrorCode = "NOT_OK"

	// ErrCodeDecode indicates an undecodable response body.
	ErrCodeDecode ErrorCode = "DECODE"

	// ErrCodeDenied indicates the server permanently refused the session.
	ErrCodeDenied ErrorCode = "DENIED"

	// ErrCodeAmbiguousCoords indicates a geometry mixing swapped and valid
	// points, which cannot be repaired safely.
	ErrCodeAmbiguousCoords ErrorCode = "AMBIGUOUS_COORDS"

	// ErrCodeClosed indicates the session's map has been closed.
	ErrCodeClosed ErrorCode = "CLOSED"
)

// RequestError is the error type returned by the session's public API.
type RequestError struct {
	Code    ErrorCode
	Message string
	Method  string
	Path    string
	Status  int
	Err     error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Method != "" {
		msg = fmt.Sprintf("%s (%s %s)", msg, e.Method, e.Path)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s [http %d]", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, msg string, err error) *RequestError {
	return &RequestError{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of a wrapped RequestError, or "".
func CodeOf(err error) ErrorCode {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsUsageError reports whether err was rejected before any I/O.
func IsUsageError(err error) bool { return CodeOf(err) == ErrCodeUsage }

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool { return CodeOf(err) == ErrCodeConfig }

// IsDeniedError reports whether the server permanently refused the session.
func IsDeniedError(err error) bool { return CodeOf(err) == ErrCodeDenied }

// IsAmbiguousCoordsError reports whether a send was aborted by coordinate
// validation.
func IsAmbiguousCoordsError(err error) bool { return CodeOf(err) == ErrCodeAmbiguousCoords }

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case ErrCodeTransport, ErrCodeStatus:
		return true
	}
	return false
}
