package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Code not found")
		assert.Equal(t, "NOT_FOUND: Code not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("disk full")
		err := Storage(cause)
		assert.Contains(t, err.Error(), "STORAGE_ERROR")
		assert.Contains(t, err.Error(), "Storage error")
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "code", "reason": "too short"}
		err := New(ErrCodeInvalidInput, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"InvalidSignature", func() *AppError { return InvalidSignature() }, ErrCodeInvalidSignature},
		{"NotConfigured", func() *AppError { return NotConfigured("Admin") }, ErrCodeNotConfigured},
		{"NotFound", func() *AppError { return NotFound("Code") }, ErrCodeNotFound},
		{"AlreadyExists", func() *AppError { return AlreadyExists("Code") }, ErrCodeAlreadyExists},
		{"InvalidInput", func() *AppError { return InvalidInput("code", "invalid") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("code") }, ErrCodeMissingRequired},
		{"MalformedInput", func() *AppError { return MalformedInput("code") }, ErrCodeMalformedInput},
		{"AlreadyUsed", func() *AppError { return AlreadyUsed() }, ErrCodeAlreadyUsed},
		{"ProductMismatch", func() *AppError { return ProductMismatch("linkpage") }, ErrCodeProductMismatch},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestStorage(t *testing.T) {
	t.Run("wraps storage error", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := Storage(cause)
		assert.Equal(t, ErrCodeStorage, err.Code)
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestExternal(t *testing.T) {
	t.Run("wraps external service error", func(t *testing.T) {
		cause := errors.New("timeout")
		err := External("Brevo", cause)
		assert.Equal(t, ErrCodeExternal, err.Code)
		assert.Contains(t, err.Message, "Brevo")
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestIsAppError(t *testing.T) {
	t.Run("returns true for AppError", func(t *testing.T) {
		err := New(ErrCodeNotFound, "test")
		assert.True(t, IsAppError(err))
	})

	t.Run("returns false for standard error", func(t *testing.T) {
		err := errors.New("standard error")
		assert.False(t, IsAppError(err))
	})

	t.Run("returns true for error wrapped with %w", func(t *testing.T) {
		appErr := New(ErrCodeNotFound, "test")
		wrapped := fmt.Errorf("lookup: %w", appErr)
		assert.True(t, IsAppError(wrapped))
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts AppError", func(t *testing.T) {
		original := New(ErrCodeNotFound, "Code not found")
		extracted, ok := AsAppError(original)
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		err := errors.New("standard error")
		extracted, ok := AsAppError(err)
		assert.False(t, ok)
		assert.Nil(t, extracted)
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		err := New(ErrCodeAlreadyUsed, "test")
		assert.Equal(t, ErrCodeAlreadyUsed, GetCode(err))
	})

	t.Run("returns ErrCodeInternal for standard error", func(t *testing.T) {
		err := errors.New("standard error")
		assert.Equal(t, ErrCodeInternal, GetCode(err))
	})
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "Code not found", NotFound("Code").Message)
	assert.Equal(t, "code is required", MissingRequired("code").Message)
	assert.Equal(t, "Code is not valid for linkpage", ProductMismatch("linkpage").Message)
	assert.Equal(t, "Code is not valid for this product", ProductMismatch("").Message)
}
