// Package errors provides domain-specific error types for fedctl.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string

const (
	// CodePrecondition indicates a missing precondition, such as no usable
	// certificate source (not recoverable without changing the invocation).
	CodePrecondition ErrorCode = "PreconditionError"
	// CodeAuthentication indicates the tenant session could not be established.
	CodeAuthentication ErrorCode = "AuthenticationError"
	// CodeVerificationPending indicates the DNS TXT ownership proof is not
	// yet visible; recoverable by the caller publishing the record and
	// re-running, never by an immediate retry.
	CodeVerificationPending ErrorCode = "VerificationPendingError"
	// CodeDirectory indicates a directory API failure.
	CodeDirectory ErrorCode = "DirectoryError"
	// CodeValidation indicates invalid caller input.
	CodeValidation ErrorCode = "ValidationError"
	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NotFoundError"
	// CodeInternal indicates an unexpected internal error.
	CodeInternal ErrorCode = "InternalError"
)

// callerRecoverableCodes contains the codes a caller can clear by acting
// outside the tool (e.g. publishing a DNS record) and re-running.
var callerRecoverableCodes = map[ErrorCode]bool{
	CodeVerificationPending: true,
}

// FedError is the base error type for all fedctl errors.
type FedError struct {
	Code      ErrorCode
	Component string
	Message   string
	Err       error
}

func (e *FedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

func (e *FedError) Unwrap() error {
	return e.Err
}

// New creates a new FedError.
func New(code ErrorCode, component, message string, err error) *FedError {
	return &FedError{
		Code:      code,
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// --- Constructors for each error category ---

// NewPreconditionError creates a precondition error.
func NewPreconditionError(component, message string, err error) *FedError {
	return New(CodePrecondition, component, message, err)
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(component, message string, err error) *FedError {
	return New(CodeAuthentication, component, message, err)
}

// NewVerificationPendingError creates a verification-pending error.
func NewVerificationPendingError(component, message string, err error) *FedError {
	return New(CodeVerificationPending, component, message, err)
}

// NewDirectoryError creates a directory API error.
func NewDirectoryError(component, message string, err error) *FedError {
	return New(CodeDirectory, component, message, err)
}

// NewValidationError creates a validation error.
func NewValidationError(component, message string, err error) *FedError {
	return New(CodeValidation, component, message, err)
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(component, message string, err error) *FedError {
	return New(CodeNotFound, component, message, err)
}

// NewInternalError creates an internal error.
func NewInternalError(component, message string, err error) *FedError {
	return New(CodeInternal, component, message, err)
}

// --- Type checking helpers ---

// AsFedError extracts a FedError from the error chain.
func AsFedError(err error) (*FedError, bool) {
	var fErr *FedError
	if errors.As(err, &fErr) {
		return fErr, true
	}
	return nil, false
}

// IsCode checks if an error in the chain has the given error code.
func IsCode(err error, code ErrorCode) bool {
	fErr, ok := AsFedError(err)
	if !ok {
		return false
	}
	return fErr.Code == code
}

// IsPreconditionError checks if the error is a precondition error.
func IsPreconditionError(err error) bool { return IsCode(err, CodePrecondition) }

// IsAuthenticationError checks if the error is an authentication error.
func IsAuthenticationError(err error) bool { return IsCode(err, CodeAuthentication) }

// IsVerificationPendingError checks if the error is a verification-pending error.
func IsVerificationPendingError(err error) bool { return IsCode(err, CodeVerificationPending) }

// IsDirectoryError checks if the error is a directory API error.
func IsDirectoryError(err error) bool { return IsCode(err, CodeDirectory) }

// IsValidationError checks if the error is a validation error.
func IsValidationError(err error) bool { return IsCode(err, CodeValidation) }

// IsNotFoundError checks if the error is a not-found error.
func IsNotFoundError(err error) bool { return IsCode(err, CodeNotFound) }

// IsCallerRecoverable checks if the caller can clear the error by acting
// outside the tool and re-running.
func IsCallerRecoverable(err error) bool {
	fErr, ok := AsFedError(err)
	if !ok {
		return false
	}
	return callerRecoverableCodes[fErr.Code]
}

// GetCode returns the error code, or empty string if not a FedError.
func GetCode(err error) ErrorCode {
	fErr, ok := AsFedError(err)
	if !ok {
		return ""
	}
	return fErr.Code
}

// GetComponent returns the component name, or empty string if not a FedError.
func GetComponent(err error) string {
	fErr, ok := AsFedError(err)
	if !ok {
		return ""
	}
	return fErr.Component
}
