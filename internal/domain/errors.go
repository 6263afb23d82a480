package domain

import "fmt"

// Error codes carried by DomainError. The API layer maps these to HTTP
// statuses.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// DomainError is the error type services return. Code classifies the
// failure, Message is safe to show callers, and Err keeps the cause for
// logs.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError builds a DomainError with no underlying cause.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithCause builds a DomainError wrapping err.
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Sentinel errors for conditions callers branch on.
var (
	ErrInvalidItemType      = NewDomainError(ErrCodeValidation, "invalid item type")
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "search query is required")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")

	ErrItemNotFound         = NewDomainError(ErrCodeNotFound, "item not found")
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
	ErrMessageNotFound      = NewDomainError(ErrCodeNotFound, "message not found")
	ErrWorkspaceNotFound    = NewDomainError(ErrCodeNotFound, "workspace not found")
	ErrAPIKeyNotFound       = NewDomainError(ErrCodeNotFound, "api key not found")
	ErrFileUploadNotFound   = NewDomainError(ErrCodeNotFound, "pending file upload not found")

	ErrItemAlreadyExists      = NewDomainError(ErrCodeAlreadyExists, "item already exists")
	ErrWorkspaceAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "workspace already exists")
	ErrAPIKeyAlreadyExists    = NewDomainError(ErrCodeAlreadyExists, "api key already exists")

	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")

	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
