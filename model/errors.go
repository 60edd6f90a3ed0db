package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrStorageUnavailable = "STORAGE_UNAVAILABLE"
)

// Workflow-specific error codes.
const (
	ErrWorkflowNotFound = "WORKFLOW_NOT_FOUND"
	ErrWorkflowInactive = "WORKFLOW_INACTIVE"
	ErrInvalidStep      = "INVALID_STEP"
	ErrNotAssigned      = "NOT_ASSIGNED"
)

// ErrorEnvelope is the error type returned across the engine boundary and
// rendered by the HTTP layer. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a missing or malformed request field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewMissingFieldsError returns a BAD_REQUEST error listing required fields
// that were absent.
func NewMissingFieldsError(fields ...string) *ErrorEnvelope {
	details := make([]FieldError, 0, len(fields))
	for _, f := range fields {
		details = append(details, FieldError{Field: f, Code: "REQUIRED", Message: f + " is required"})
	}
	return &ErrorEnvelope{
		Code:    ErrBadRequest,
		Message: "Missing required fields",
		Details: details,
	}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewWorkflowNotFoundError is returned when an instance references a
// definition that is no longer in the registry.
func NewWorkflowNotFoundError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrWorkflowNotFound, Message: "Workflow not found"}
}

// NewWorkflowInactiveError returns a WORKFLOW_INACTIVE error.
func NewWorkflowInactiveError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrWorkflowInactive, Message: "Workflow is not active"}
}

// NewInvalidStepError returns an INVALID_STEP error.
func NewInvalidStepError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidStep, Message: msg}
}

// NewNotAssignedError returns a NOT_ASSIGNED error.
func NewNotAssignedError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotAssigned, Message: "User not assigned to this step"}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewStorageUnavailableError returns a STORAGE_UNAVAILABLE error. The
// underlying storage error is never exposed to callers.
func NewStorageUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrStorageUnavailable,
		Message: "Workflow storage is temporarily unavailable",
	}
}

// ErrorCode returns the envelope code of err, or "" when err is not an
// ErrorEnvelope.
func ErrorCode(err error) string {
	if env, ok := err.(*ErrorEnvelope); ok {
		return env.Code
	}
	return ""
}
