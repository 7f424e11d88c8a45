// Package errors provides centralized error definitions and error handling utilities
// for wdpool. It defines sentinel errors, typed errors for each failure mode of the
// driver pool, and classification helpers.
//
// # Error Types
//
// Pool lifecycle errors:
//   - SpawnError: a driver executable could not be found or exec failed
//   - DriverStartTimeoutError: a driver never answered /status within its retry budget
//   - SessionCreationError: POST /session failed, optionally with a WebDriver error code
//   - PoolClosedError: Acquire was called on, or blocked in, a closed pool
//   - ProcessTerminationError: a process group could not be signalled during teardown
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewSpawnError("chromedriver", cause)
//	err := errors.NewSessionCreationError("session not created", "Chrome failed to start").
//		WithEndpoint("localhost:9515")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrPoolClosed) { ... }
//
//	var sce *errors.SessionCreationError
//	if errors.As(err, &sce) { log.Println(sce.Code) }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Pool sentinel errors
var (
	// ErrPoolClosed indicates that the pool was closed before or while acquiring.
	ErrPoolClosed = New("pool closed")
)

// Driver sentinel errors
var (
	// ErrSpawnFailed indicates that a driver process could not be started.
	ErrSpawnFailed = New("spawn failed")
	// ErrDriverStartTimeout indicates that a driver never became ready.
	ErrDriverStartTimeout = New("driver did not become ready")
	// ErrDriverUnhealthy indicates that a driver can no longer serve sessions.
	ErrDriverUnhealthy = New("driver unhealthy")
	// ErrDriverClosed indicates an operation against a closed driver.
	ErrDriverClosed = New("driver closed")
	// ErrProcessTermination indicates that a process group could not be terminated.
	ErrProcessTermination = New("process termination failed")
)

// Session sentinel errors
var (
	// ErrSessionCreation indicates that POST /session failed.
	ErrSessionCreation = New("session creation failed")
	// ErrSessionReleased indicates use of a session handle after it was returned to the pool.
	ErrSessionReleased = New("session already released")
)

// Bridge sentinel errors
var (
	// ErrUnsupportedBridge indicates that no usable bridge was found or the named one is unknown.
	ErrUnsupportedBridge = New("unsupported bridge")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// PoolError is the base interface for all wdpool errors.
type PoolError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// format renders "prefix [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.message != "" {
		prefix = prefix + ": " + e.message
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return prefix
}

// -----------------------------------------------------------------------------
// Driver Errors
// -----------------------------------------------------------------------------

// SpawnError reports that a driver executable was missing or could not be executed.
// It is fatal to the acquire attempt that triggered it; the pool stays usable.
type SpawnError struct {
	baseError
	Path string
}

// NewSpawnError creates a new SpawnError for the executable at path.
func NewSpawnError(path string, cause error) *SpawnError {
	return &SpawnError{
		baseError: baseError{
			message:  "could not start driver executable",
			cause:    cause,
			severity: SeverityError,
		},
		Path: path,
	}
}

// Error returns the formatted error message.
func (e *SpawnError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.format("spawn error", parts)
}

// Is reports whether target is a SpawnError or ErrSpawnFailed.
func (e *SpawnError) Is(target error) bool {
	if _, ok := target.(*SpawnError); ok {
		return true
	}
	return target == ErrSpawnFailed
}

// DriverStartTimeoutError reports that a driver never answered GET /status
// successfully within its retry budget.
type DriverStartTimeoutError struct {
	baseError
	Endpoint string
	Attempts int
}

// NewDriverStartTimeoutError creates a new DriverStartTimeoutError.
func NewDriverStartTimeoutError(endpoint string, attempts int, cause error) *DriverStartTimeoutError {
	return &DriverStartTimeoutError{
		baseError: baseError{
			message:   fmt.Sprintf("not ready after %d attempts", attempts),
			cause:     cause,
			severity:  SeverityError,
			retryable: true,
		},
		Endpoint: endpoint,
		Attempts: attempts,
	}
}

// Error returns the formatted error message.
func (e *DriverStartTimeoutError) Error() string {
	var parts []string
	if e.Endpoint != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", e.Endpoint))
	}
	return e.format("driver start timeout", parts)
}

// Is reports whether target is a DriverStartTimeoutError or ErrDriverStartTimeout.
func (e *DriverStartTimeoutError) Is(target error) bool {
	if _, ok := target.(*DriverStartTimeoutError); ok {
		return true
	}
	return target == ErrDriverStartTimeout
}

// ProcessTerminationError reports a failure to signal or reap a process group.
// It is logged, never retried: a group that survives SIGKILL is treated as reaped.
type ProcessTerminationError struct {
	baseError
	Pgid   int
	Signal string
}

// NewProcessTerminationError creates a new ProcessTerminationError.
func NewProcessTerminationError(pgid int, signal string, cause error) *ProcessTerminationError {
	return &ProcessTerminationError{
		baseError: baseError{
			message:  "could not signal process group",
			cause:    cause,
			severity: SeverityWarning,
		},
		Pgid:   pgid,
		Signal: signal,
	}
}

// Error returns the formatted error message.
func (e *ProcessTerminationError) Error() string {
	parts := []string{fmt.Sprintf("pgid=%d", e.Pgid)}
	if e.Signal != "" {
		parts = append(parts, fmt.Sprintf("signal=%s", e.Signal))
	}
	return e.format("process termination error", parts)
}

// Is reports whether target is a ProcessTerminationError or ErrProcessTermination.
func (e *ProcessTerminationError) Is(target error) bool {
	if _, ok := target.(*ProcessTerminationError); ok {
		return true
	}
	return target == ErrProcessTermination
}

// -----------------------------------------------------------------------------
// Session Errors
// -----------------------------------------------------------------------------

// SessionCreationError wraps a failed POST /session. Code and Message carry
// the decoded WebDriver error when the driver returned one.
type SessionCreationError struct {
	baseError
	Code     string
	Message  string
	Endpoint string
}

// NewSessionCreationError creates a SessionCreationError from a WebDriver
// error code and message.
func NewSessionCreationError(code, message string) *SessionCreationError {
	return &SessionCreationError{
		baseError: baseError{
			severity: SeverityError,
		},
		Code:    code,
		Message: message,
	}
}

// WithCause sets the underlying error.
func (e *SessionCreationError) WithCause(cause error) *SessionCreationError {
	e.cause = cause
	return e
}

// WithEndpoint adds the driver endpoint to the error context.
func (e *SessionCreationError) WithEndpoint(endpoint string) *SessionCreationError {
	e.Endpoint = endpoint
	return e
}

// Error returns the formatted error message.
func (e *SessionCreationError) Error() string {
	var parts []string
	if e.Endpoint != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", e.Endpoint))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	prefix := "session creation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	switch {
	case e.Message != "" && e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return prefix
}

// Is reports whether target is a SessionCreationError or ErrSessionCreation,
// falling through to the wrapped cause.
func (e *SessionCreationError) Is(target error) bool {
	if _, ok := target.(*SessionCreationError); ok {
		return true
	}
	if target == ErrSessionCreation {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// Pool Errors
// -----------------------------------------------------------------------------

// PoolClosedError is returned to callers that acquire on a closed pool or
// that were blocked in Acquire when Close ran.
type PoolClosedError struct {
	baseError
	Pool string
}

// NewPoolClosedError creates a new PoolClosedError.
func NewPoolClosedError(pool string) *PoolClosedError {
	return &PoolClosedError{
		baseError: baseError{
			severity: SeverityInfo,
		},
		Pool: pool,
	}
}

// Error returns the formatted error message.
func (e *PoolClosedError) Error() string {
	if e.Pool != "" {
		return fmt.Sprintf("pool closed [pool=%s]", e.Pool)
	}
	return "pool closed"
}

// Is reports whether target is a PoolClosedError or ErrPoolClosed.
func (e *PoolClosedError) Is(target error) bool {
	if _, ok := target.(*PoolClosedError); ok {
		return true
	}
	return target == ErrPoolClosed
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error is transient and the operation may
// succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var poolErr PoolError
	if As(err, &poolErr) {
		return poolErr.IsRetryable()
	}

	return false
}

// GetSeverity returns the severity of err, defaulting to SeverityError for
// errors that do not carry one.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var poolErr PoolError
	if As(err, &poolErr) {
		return poolErr.Severity()
	}

	return SeverityError
}
