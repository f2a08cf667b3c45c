package model

import (
	"errors"
	"fmt"
)

// Routing and codec error codes.
const (
	ErrMalformedIdentifier = "MALFORMED_IDENTIFIER"
	ErrIdentifierTooLong   = "IDENTIFIER_TOO_LONG"
	ErrEncoding            = "ENCODING_ERROR"
	ErrInvalidPage         = "INVALID_PAGE"
	ErrConfiguration       = "CONFIGURATION_ERROR"
	ErrInvalidOperation    = "INVALID_OPERATION"
)

// Standard error codes.
const (
	ErrBadRequest    = "BAD_REQUEST"
	ErrUnauthorized  = "UNAUTHORIZED"
	ErrForbidden     = "FORBIDDEN"
	ErrNotFound      = "NOT_FOUND"
	ErrConflict      = "CONFLICT"
	ErrDomain        = "DOMAIN_ERROR"
	ErrRateLimited   = "RATE_LIMITED"
	ErrInternalError = "INTERNAL_ERROR"
)

// ErrorEnvelope is the error type shared by every layer of the console.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the code of the first ErrorEnvelope in err's chain, or
// ErrInternalError when there is none.
func CodeOf(err error) string {
	var ee *ErrorEnvelope
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ErrInternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// NewMalformedIdentifierError returns a MALFORMED_IDENTIFIER error.
func NewMalformedIdentifierError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrMalformedIdentifier, Message: msg}
}

// NewIdentifierTooLongError returns an IDENTIFIER_TOO_LONG error.
func NewIdentifierTooLongError(length, limit int) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrIdentifierTooLong,
		Message: fmt.Sprintf("identifier is %d characters, limit is %d", length, limit),
	}
}

// NewEncodingError returns an ENCODING_ERROR.
func NewEncodingError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrEncoding, Message: msg}
}

// NewInvalidPageError returns an INVALID_PAGE error.
func NewInvalidPageError(raw string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInvalidPage,
		Message: fmt.Sprintf("page %q is not a non-negative integer", raw),
	}
}

// NewConfigurationError returns a CONFIGURATION_ERROR.
func NewConfigurationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConfiguration, Message: msg}
}

// NewInvalidOperationError returns an INVALID_OPERATION error.
func NewInvalidOperationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidOperation, Message: msg}
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewDomainError returns a DOMAIN_ERROR. The message is shown to the
// requester verbatim.
func NewDomainError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrDomain, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewRateLimitedError returns a RATE_LIMITED error.
func NewRateLimitedError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrRateLimited,
		Message: "Rate limit exceeded. Please try again later.",
	}
}
