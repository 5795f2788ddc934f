package utils

import (
	"errors"
	"fmt"
)

// Code is a stable, tool-owned status code. Every task completes with
// exactly one Code; the coordinator maps codes to service-state
// transitions.
type Code string

const (
	CodeOK                 Code = "OK"
	CodeNoChange           Code = "NO_CHANGE"
	CodeSyncDisabled       Code = "SYNC_DISABLED"
	CodeAuthRequired       Code = "AUTH_REQUIRED"
	CodeNetworkError       Code = "NETWORK_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeQuotaExceeded      Code = "QUOTA_EXCEEDED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeUnknownOrigin      Code = "UNKNOWN_ORIGIN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeIndexCorrupt       Code = "INDEX_CORRUPT"
	CodeIndexIO            Code = "INDEX_IO"
	CodeNotInitialized     Code = "NOT_INITIALIZED"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeAborted            Code = "ABORTED"
	CodeFailed             Code = "FAILED"
)

// Exit codes for the CLI surface
const (
	ExitSuccess            = 0
	ExitSyncDisabled       = 10
	ExitAuthRequired       = 11
	ExitNetworkError       = 30
	ExitServiceUnavailable = 31
	ExitRateLimited        = 32
	ExitQuotaExceeded      = 33
	ExitNotFound           = 20
	ExitUnknownOrigin      = 21
	ExitConflict           = 22
	ExitIndexCorrupt       = 40
	ExitIndexIO            = 41
	ExitNotInitialized     = 42
	ExitInvalidArgument    = 50
	ExitUnknown            = 99
)

// IsRetryable reports whether a code represents a transient failure
// that leaves the pending change dirty for a later attempt.
func (c Code) IsRetryable() bool {
	switch c {
	case CodeNetworkError, CodeServiceUnavailable, CodeQuotaExceeded, CodeRateLimited:
		return true
	}
	return false
}

// IsFatal reports whether a code disables the service until an
// explicit reset.
func (c Code) IsFatal() bool {
	return c == CodeIndexCorrupt || c == CodeIndexIO
}

// IsSuccess reports whether a code represents successful completion.
func (c Code) IsSuccess() bool {
	return c == CodeOK || c == CodeNoChange
}

// GetExitCode maps a status code to a process exit code
func GetExitCode(code Code) int {
	mapping := map[Code]int{
		CodeOK:                 ExitSuccess,
		CodeNoChange:           ExitSuccess,
		CodeSyncDisabled:       ExitSyncDisabled,
		CodeAuthRequired:       ExitAuthRequired,
		CodeNetworkError:       ExitNetworkError,
		CodeServiceUnavailable: ExitServiceUnavailable,
		CodeRateLimited:        ExitRateLimited,
		CodeQuotaExceeded:      ExitQuotaExceeded,
		CodeNotFound:           ExitNotFound,
		CodeUnknownOrigin:      ExitUnknownOrigin,
		CodeConflict:           ExitConflict,
		CodeIndexCorrupt:       ExitIndexCorrupt,
		CodeIndexIO:            ExitIndexIO,
		CodeNotInitialized:     ExitNotInitialized,
		CodeInvalidArgument:    ExitInvalidArgument,
	}
	if exit, ok := mapping[code]; ok {
		return exit
	}
	return ExitUnknown
}

// SyncError carries a status code plus diagnostic context across a
// task boundary.
type SyncError struct {
	Code      Code
	Message   string
	Retryable bool
	Context   map[string]interface{}
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// SyncErrorBuilder helps construct SyncError instances
type SyncErrorBuilder struct {
	err SyncError
}

// NewSyncError creates a new error builder
func NewSyncError(code Code, message string) *SyncErrorBuilder {
	return &SyncErrorBuilder{
		err: SyncError{
			Code:      code,
			Message:   message,
			Retryable: code.IsRetryable(),
		},
	}
}

func (b *SyncErrorBuilder) WithRetryable(retryable bool) *SyncErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *SyncErrorBuilder) WithContext(key string, value interface{}) *SyncErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *SyncErrorBuilder) Build() *SyncError {
	return &b.err
}

// CodeOf extracts the status code from an error. Plain errors map to
// CodeFailed; nil maps to CodeOK.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code
	}
	return CodeFailed
}

// IsRetryableErr reports whether an error is transient
func IsRetryableErr(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}
