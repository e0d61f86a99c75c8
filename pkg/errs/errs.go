// Package errs holds the error classes shared by every payment component.
// Domain packages derive their own sentinels from these with Wrap so that
// callers can match either the specific error or its class with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not_found")
	ErrAuthorizationDenied = errors.New("authorization_denied")
	ErrAuthentication      = errors.New("authentication_failed")
	ErrGateway             = errors.New("gateway_error")
	ErrIntegrityViolation  = errors.New("integrity_violation")
	ErrInsufficientFunds   = errors.New("insufficient_funds")
	ErrConflict            = errors.New("conflict")
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrDuplicateEvent      = errors.New("duplicate_event")
)

type classError struct {
	class error
	code  string
}

func (e *classError) Error() string { return e.code }

func (e *classError) Unwrap() error { return e.class }

// Wrap returns a sentinel identified by code that also matches class.
func Wrap(class error, code string) error {
	return &classError{class: class, code: code}
}

// GatewayError reports a failed call to the payment processor.
type GatewayError struct {
	Op        string
	Err       error
	Ambiguous bool
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gateway %s failed", e.Op)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	return []error{ErrGateway, e.Err}
}

// NewGatewayError wraps err as a definitive gateway failure.
func NewGatewayError(op string, err error) error {
	return &GatewayError{Op: op, Err: err}
}

// NewAmbiguousGatewayError wraps err as a failure whose outcome at the
// gateway is unknown (timeout, connection reset, 5xx).
func NewAmbiguousGatewayError(op string, err error) error {
	return &GatewayError{Op: op, Err: err, Ambiguous: true}
}

// IsAmbiguous reports whether err is a gateway failure with unknown outcome.
func IsAmbiguous(err error) bool {
	var gErr *GatewayError
	if errors.As(err, &gErr) && gErr != nil {
		return gErr.Ambiguous
	}
	return false
}

// Class returns the taxonomy sentinel err belongs to, or nil.
func Class(err error) error {
	for _, class := range []error{
		ErrDuplicateEvent,
		ErrIntegrityViolation,
		ErrAuthentication,
		ErrAuthorizationDenied,
		ErrInsufficientFunds,
		ErrGateway,
		ErrNotFound,
		ErrConflict,
		ErrInvalidRequest,
	} {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}

// Code returns the code of the most specific sentinel in err's chain, or "".
func Code(err error) string {
	var cErr *classError
	if errors.As(err, &cErr) && cErr != nil {
		return cErr.code
	}
	return ""
}
