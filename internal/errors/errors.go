package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable code sent to API clients.
type ErrorCode string

const (
	// Caller identity
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	ErrCodeNotConfigured    ErrorCode = "NOT_CONFIGURED"

	// Request shape
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"
	ErrCodeMalformedInput  ErrorCode = "MALFORMED_INPUT"

	// Ledger
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists   ErrorCode = "ALREADY_EXISTS"
	ErrCodeAlreadyUsed     ErrorCode = "ALREADY_USED"
	ErrCodeProductMismatch ErrorCode = "PRODUCT_MISMATCH"

	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Server side
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorage  ErrorCode = "STORAGE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError carries a client-safe code and message. The cause is kept for
// logs and errors.Is/As but never serialized.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func InvalidSignature() *AppError {
	return New(ErrCodeInvalidSignature, "Invalid webhook signature")
}

func NotConfigured(feature string) *AppError {
	return New(ErrCodeNotConfigured, feature+" not configured")
}

func InvalidInput(field, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, field+" is required")
}

func MalformedInput(field string) *AppError {
	return New(ErrCodeMalformedInput, "Malformed "+field)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, resource+" not found")
}

func AlreadyExists(resource string) *AppError {
	return New(ErrCodeAlreadyExists, resource+" already exists")
}

func AlreadyUsed() *AppError {
	return New(ErrCodeAlreadyUsed, "Code has already been used")
}

// ProductMismatch reports a code scoped to a product other than the one
// being unlocked.
func ProductMismatch(product string) *AppError {
	if product == "" {
		return New(ErrCodeProductMismatch, "Code is not valid for this product")
	}
	return New(ErrCodeProductMismatch, "Code is not valid for "+product)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// Storage wraps a ledger persistence failure. These are the only failures
// the redeem and issue paths surface as 5xx.
func Storage(cause error) *AppError {
	return New(ErrCodeStorage, "Storage error").WithCause(cause)
}

func External(service string, cause error) *AppError {
	return New(ErrCodeExternal, "External service error: "+service).WithCause(cause)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode falls back to ErrCodeInternal for errors that are not AppErrors.
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
