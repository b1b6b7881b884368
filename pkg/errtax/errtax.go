// Package errtax defines the stable error taxonomy returned inline in
// Certificate and AttestedX509Certificate responses, and used to select a
// transport-level gRPC status for the RegisterKey/RegisterU2fKey
// endpoints.
package errtax

import "fmt"

// Code is a stable integer error code. Values are part of the wire
// contract and must never be renumbered once shipped.
type Code int64

const (
	Success Code = iota
	BadRequest
	BadChallenge
	TimeExpired
	BadCertOptions
	NotAuthorized
	Unknown
)

func (c Code) String() string {
	switch c {
	case Success:
		return "Success"
	case BadRequest:
		return "BadRequest"
	case BadChallenge:
		return "BadChallenge"
	case TimeExpired:
		return "TimeExpired"
	case BadCertOptions:
		return "BadCertOptions"
	case NotAuthorized:
		return "NotAuthorized"
	case Unknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Code(%d)", int64(c))
	}
}

// Error wraps a Code so it can travel through normal Go error-handling
// while still carrying the taxonomy value callers need to populate
// error_code in a response.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an *Error for the given code with an optional detail message.
// Message is included verbatim in Error() for server-side logs; callers
// populating a response's error field should still prefer the coarse
// Code for anything a caller might act on programmatically.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf extracts the taxonomy code from err, defaulting to Unknown for any
// error that didn't originate from this package.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
		return e.Code
	}
	return Unknown
}
