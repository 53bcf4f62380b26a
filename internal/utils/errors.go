package utils

import (
	"errors"
	"fmt"

	"github.com/hmrc/bintray-backup-restore/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired = 10
	// Local errors (20-29)
	ExitConfiguration = 20
	ExitLocalIO       = 21
	// Network errors (30-39)
	ExitNetworkError  = 30
	ExitRemoteRequest = 31
	ExitRateLimited   = 32
	ExitTransfer      = 33
	// Validation errors (40-49)
	ExitInvalidArgument = 40
	// Batch errors
	ExitBatchPartialFailure = 60
	// Interrupted
	ExitCancelled = 130
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired        = "AUTH_REQUIRED"
	ErrCodeConfiguration       = "CONFIGURATION_ERROR"
	ErrCodeLocalIO             = "LOCAL_IO_ERROR"
	ErrCodeNetworkError        = "NETWORK_ERROR"
	ErrCodeRemoteRequest       = "REMOTE_REQUEST_ERROR"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeTransfer            = "TRANSFER_ERROR"
	ErrCodeInvalidArgument     = "INVALID_ARGUMENT"
	ErrCodeBatchPartialFailure = "BATCH_PARTIAL_FAILURE"
	ErrCodeCancelled           = "CANCELLED"
	ErrCodeUnknown             = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:        ExitAuthRequired,
		ErrCodeConfiguration:       ExitConfiguration,
		ErrCodeLocalIO:             ExitLocalIO,
		ErrCodeNetworkError:        ExitNetworkError,
		ErrCodeRemoteRequest:       ExitRemoteRequest,
		ErrCodeRateLimited:         ExitRateLimited,
		ErrCodeTransfer:            ExitTransfer,
		ErrCodeInvalidArgument:     ExitInvalidArgument,
		ErrCodeBatchPartialFailure: ExitBatchPartialFailure,
		ErrCodeCancelled:           ExitCancelled,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

// Unwrap returns the underlying cause, if any
func (e *AppError) Unwrap() error {
	return e.cause
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that keeps cause reachable through errors.Is/As
func WrapAppError(cliErr types.CLIError, cause error) *AppError {
	return &AppError{CLIError: cliErr, cause: cause}
}

// ErrorCode returns the CLI error code carried by err, or ErrCodeUnknown
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Code
	}
	return ErrCodeUnknown
}

// IsRetryable reports whether err carries a retryable CLI error
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Retryable
	}
	return false
}

// NewConfigurationError reports a local precondition that stops a run before any remote call
func NewConfigurationError(message string) *AppError {
	return NewAppError(NewCLIError(ErrCodeConfiguration, message).Build())
}

// NewLocalIOError reports a local file that could not be read or written
func NewLocalIOError(path string, cause error) *AppError {
	return WrapAppError(NewCLIError(ErrCodeLocalIO, cause.Error()).
		WithContext("path", path).
		Build(), cause)
}
