// Package protocol holds the request parsing, validation and delivery
// logic shared by the issuance and presentation flows.
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrIssuerResolution is returned when no registered issuer matches the request.
	ErrIssuerResolution = errors.New("issuer could not be resolved")
	// ErrValidation is returned for malformed authorization requests.
	ErrValidation = errors.New("invalid authorization request")
	// ErrParamMismatch is returned when the request object disagrees with the query.
	ErrParamMismatch = errors.New("request object parameter mismatch")
	// ErrNoPresentationDefinition is returned when a request carries no presentation definition.
	ErrNoPresentationDefinition = errors.New("no presentation definition")
	// ErrMissingCode is returned when an authorization response carries no code.
	ErrMissingCode = errors.New("authorization response has no code")
	// ErrTokenExchange is returned when the token endpoint rejects or cannot be reached.
	ErrTokenExchange = errors.New("token exchange failed")
	// ErrNoConformantCredential is returned when no held credential satisfies any descriptor.
	ErrNoConformantCredential = errors.New("no conformant credential")
	// ErrSubmissionMismatch is returned when a presentation does not satisfy its definition.
	ErrSubmissionMismatch = errors.New("presentation does not satisfy definition")
	// ErrDelivery is returned when a direct post yields no redirect target.
	ErrDelivery = errors.New("direct post delivery failed")
	// ErrState is returned when an operation runs without its prerequisite session.
	ErrState = errors.New("no matching protocol session")
)

// ValidationError names the offending authorization request parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ParamMismatchError reports a request object claim that differs from the
// top-level query parameter of the same name.
type ParamMismatchError struct {
	Param    string
	Query    string
	Override string
}

func (e *ParamMismatchError) Error() string {
	return fmt.Sprintf("request object %s %q does not match %q", e.Param, e.Override, e.Query)
}

// Is matches ErrParamMismatch and ErrValidation.
func (e *ParamMismatchError) Is(target error) bool {
	return target == ErrParamMismatch || target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
