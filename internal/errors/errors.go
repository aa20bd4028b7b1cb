package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Resource
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Authorization
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// Lifecycle preconditions
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"
	ErrCodeSessionClosed   ErrorCode = "SESSION_CLOSED"
	ErrCodeAlreadyJoined   ErrorCode = "ALREADY_JOINED"
	ErrCodeSessionFull     ErrorCode = "SESSION_FULL"
	ErrCodeNotAMember      ErrorCode = "NOT_A_MEMBER"
	ErrCodeNoPrompt        ErrorCode = "NO_PROMPT"
	ErrCodeDuplicateAnswer ErrorCode = "DUPLICATE_ANSWER"
	ErrCodeAlreadyVoted    ErrorCode = "ALREADY_VOTED"
	ErrCodeSelfVote        ErrorCode = "SELF_VOTE"
	ErrCodeTooManyTargets  ErrorCode = "TOO_MANY_TARGETS"
	ErrCodeUnknownTarget   ErrorCode = "UNKNOWN_TARGET"
	ErrCodeTooFewAnswers   ErrorCode = "TOO_FEW_ANSWERS"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorage  ErrorCode = "STORAGE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func AlreadyExists(resource string) *AppError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", resource))
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func InvalidState(operation string, current string) *AppError {
	return New(ErrCodeInvalidState,
		fmt.Sprintf("%s is not valid while the session is in %s", operation, current))
}

func SessionClosed() *AppError {
	return New(ErrCodeSessionClosed, "Session is closed")
}

func AlreadyJoined() *AppError {
	return New(ErrCodeAlreadyJoined, "Participant already joined this session")
}

func SessionFull(max int) *AppError {
	return New(ErrCodeSessionFull, fmt.Sprintf("Session is full (max %d participants)", max))
}

func NotAMember() *AppError {
	return New(ErrCodeNotAMember, "Participant has not joined this session")
}

func NoPrompt() *AppError {
	return New(ErrCodeNoPrompt, "No prompt has been set for this session")
}

func DuplicateAnswer() *AppError {
	return New(ErrCodeDuplicateAnswer, "Participant already submitted an answer")
}

func AlreadyVoted() *AppError {
	return New(ErrCodeAlreadyVoted, "Participant already voted")
}

func SelfVote() *AppError {
	return New(ErrCodeSelfVote, "Voting for your own answer is not allowed")
}

func TooManyTargets(max int) *AppError {
	return New(ErrCodeTooManyTargets, fmt.Sprintf("A ballot may name at most %d answers", max))
}

func UnknownTarget(id string) *AppError {
	return New(ErrCodeUnknownTarget, fmt.Sprintf("No answer from participant %s", id))
}

func TooFewAnswers(min int) *AppError {
	return New(ErrCodeTooFewAnswers, fmt.Sprintf("Voting needs at least %d answers", min))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Storage(cause error) *AppError {
	return Wrap(ErrCodeStorage, "Storage error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
