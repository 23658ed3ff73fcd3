package domain

import "fmt"

// DomainError represents a domain-specific error.
type DomainError struct {
	Type    string
	Message string
	Code    string
}

func (e DomainError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// ValidationError represents malformed input (bad phone number, missing
// required field).
type ValidationError struct {
	DomainError
}

// NewValidationError creates a new validation error.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		DomainError: DomainError{
			Type:    "VALIDATION_ERROR",
			Message: message,
			Code:    "INVALID_INPUT",
		},
	}
}

// NotFoundError represents a missing instance/token/user.
type NotFoundError struct {
	DomainError
	Resource string
	ID       string
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		DomainError: DomainError{
			Type:    "NOT_FOUND_ERROR",
			Message: fmt.Sprintf("%s with ID '%s' not found", resource, id),
			Code:    "RESOURCE_NOT_FOUND",
		},
		Resource: resource,
		ID:       id,
	}
}

// ForbiddenError represents an actor touching a resource it does not own.
type ForbiddenError struct {
	DomainError
}

// NewForbiddenError creates a new forbidden error.
func NewForbiddenError(message string) *ForbiddenError {
	return &ForbiddenError{
		DomainError: DomainError{
			Type:    "FORBIDDEN_ERROR",
			Message: message,
			Code:    "FORBIDDEN",
		},
	}
}

// NotConnectedError represents an operation that requires a live session
// when none is live.
type NotConnectedError struct {
	DomainError
	InstanceID InstanceID
}

// NewNotConnectedError creates a new not connected error.
func NewNotConnectedError(id InstanceID) *NotConnectedError {
	return &NotConnectedError{
		DomainError: DomainError{
			Type:    "NOT_CONNECTED_ERROR",
			Message: fmt.Sprintf("instance %s is not connected", id),
			Code:    "NOT_CONNECTED",
		},
		InstanceID: id,
	}
}

// UpstreamError represents a protocol-layer failure that survived local
// retries.
type UpstreamError struct {
	DomainError
	Err error
}

// NewUpstreamError creates a new upstream error wrapping the cause.
func NewUpstreamError(message string, err error) *UpstreamError {
	return &UpstreamError{
		DomainError: DomainError{
			Type:    "UPSTREAM_ERROR",
			Message: message,
			Code:    "UPSTREAM_CHECK_FAILED",
		},
		Err: err,
	}
}

// Unwrap returns the wrapped cause.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// QuotaExceededError represents an API token over its request ceiling.
type QuotaExceededError struct {
	DomainError
}

// NewQuotaExceededError creates a new quota exceeded error.
func NewQuotaExceededError(limit int) *QuotaExceededError {
	return &QuotaExceededError{
		DomainError: DomainError{
			Type:    "QUOTA_EXCEEDED_ERROR",
			Message: fmt.Sprintf("request limit of %d exceeded", limit),
			Code:    "QUOTA_EXCEEDED",
		},
	}
}

// ConflictError represents a concurrent-operation invariant violation.
type ConflictError struct {
	DomainError
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{
		DomainError: DomainError{
			Type:    "CONFLICT_ERROR",
			Message: message,
			Code:    "CONFLICT",
		},
	}
}

// AlreadyExistsError represents a uniqueness violation on create.
type AlreadyExistsError struct {
	DomainError
	Resource string
	Field    string
	Value    string
}

// NewAlreadyExistsError creates a new already exists error.
func NewAlreadyExistsError(resource, field, value string) *AlreadyExistsError {
	return &AlreadyExistsError{
		DomainError: DomainError{
			Type:    "ALREADY_EXISTS_ERROR",
			Message: fmt.Sprintf("%s with %s '%s' already exists", resource, field, value),
			Code:    "RESOURCE_ALREADY_EXISTS",
		},
		Resource: resource,
		Field:    field,
		Value:    value,
	}
}

// Instance-specific errors.

func ErrInstanceNotFound(id InstanceID) error {
	return NewNotFoundError("Instance", id.String())
}

func ErrInstanceNotOwned(id InstanceID) error {
	return NewForbiddenError(fmt.Sprintf("instance %s does not belong to the requesting user", id))
}

func ErrNoInstanceBound() error {
	return NewValidationError("API token has no WhatsApp instance bound")
}

func ErrInvalidPhone(input string) error {
	return NewValidationError(fmt.Sprintf("invalid phone number: %q", input))
}
