// Package errors provides centralized error definitions and error handling utilities
// for the DAACS codebase. It defines domain-specific errors, semantic error types,
// and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - GenerationError: a track's code generation attempt produced nothing usable
//   - ExecutorError: an external assistant CLI or API call failed
//   - PlanningError: the planning or judgment model returned no usable answer
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
//	err := errors.NewExecutorError("codex exited non-zero", errors.ErrExecutorFailed).
//	    WithClient("backend").WithExitCode(1)
//
//	if errors.IsRetryable(err) { ... }
//
// # Propagation
//
// Workflow nodes never return these errors to their caller. They are rendered
// into track logs and failure summaries instead, so the graph always reaches
// delivery. Only CLI commands surface errors to the user.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
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

// Generation-related sentinel errors
var (
	// ErrNoFilesGenerated indicates that a track produced no files.
	ErrNoFilesGenerated = New("no files generated")
	// ErrEmptyResponse indicates that the generator returned no text.
	ErrEmptyResponse = New("empty response")
)

// Executor-related sentinel errors
var (
	// ErrExecutorFailed indicates that an assistant process exited with an error.
	ErrExecutorFailed = New("executor failed")
	// ErrExecutorNotFound indicates that the assistant binary is not installed.
	ErrExecutorNotFound = New("executor not found")
	// ErrPermissionDenied indicates a sandbox or filesystem permission failure.
	ErrPermissionDenied = New("permission denied")
	// ErrUnknownSource indicates an unsupported LLM source or provider.
	ErrUnknownSource = New("unknown llm source")
	// ErrMissingAPIKey indicates that an API provider has no credentials.
	ErrMissingAPIKey = New("missing api key")
)

// Planning-related sentinel errors
var (
	// ErrInvalidJSON indicates that a structured response could not be parsed.
	ErrInvalidJSON = New("invalid json response")
	// ErrSchemaMismatch indicates that a structured response failed schema validation.
	ErrSchemaMismatch = New("response does not match schema")
	// ErrEmptyPlan indicates that a plan contained no actions.
	ErrEmptyPlan = New("plan has no actions")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrNotFound indicates that a resource does not exist.
	ErrNotFound = New("not found")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// DAACSError is the base interface for all DAACS errors.
type DAACSError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

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

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }

func (e *baseError) IsRetryable() bool { return e.retryable }

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// GenerationError represents a failed code generation attempt for one track.
//
// Example:
//
//	err := errors.NewGenerationError("backend generation failed", errors.ErrNoFilesGenerated).
//	    WithTrack("backend").WithIteration(2)
//	fmt.Println(err) // "generation error [track=backend, iteration=2]: backend generation failed: no files generated"
type GenerationError struct {
	baseError
	Track     string
	Iteration int
}

// NewGenerationError creates a new GenerationError. Generation failures are
// retryable: the subgraph rework loop reattempts until its ceiling.
func NewGenerationError(message string, cause error) *GenerationError {
	return &GenerationError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityError,
			retryable: true,
		},
	}
}

// WithTrack adds the track name to the error context.
func (e *GenerationError) WithTrack(track string) *GenerationError {
	e.Track = track
	return e
}

// WithIteration adds the subgraph iteration to the error context.
func (e *GenerationError) WithIteration(n int) *GenerationError {
	e.Iteration = n
	return e
}

// Error returns the formatted error message.
func (e *GenerationError) Error() string {
	var parts []string
	if e.Track != "" {
		parts = append(parts, fmt.Sprintf("track=%s", e.Track))
	}
	if e.Iteration > 0 {
		parts = append(parts, fmt.Sprintf("iteration=%d", e.Iteration))
	}
	return e.format("generation error", parts)
}

// Is checks if this error matches the target.
func (e *GenerationError) Is(target error) bool {
	if _, ok := target.(*GenerationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ExecutorError represents a failed invocation of an external assistant.
//
// Example:
//
//	err := errors.NewExecutorError("codex exited non-zero", errors.ErrExecutorFailed).
//	    WithClient("frontend").WithCLI("codex").WithExitCode(2)
type ExecutorError struct {
	baseError
	Client   string
	CLI      string
	ExitCode int
	Output   string
}

// NewExecutorError creates a new ExecutorError. Executor failures are
// retryable unless they wrap ErrPermissionDenied, ErrExecutorNotFound or
// ErrEmptyResponse. An assistant that printed nothing may still have
// written files, so it is not rerun.
func NewExecutorError(message string, cause error) *ExecutorError {
	retryable := !errors.Is(cause, ErrPermissionDenied) &&
		!errors.Is(cause, ErrExecutorNotFound) &&
		!errors.Is(cause, ErrEmptyResponse)
	return &ExecutorError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityError,
			retryable: retryable,
		},
	}
}

// WithClient adds the client role (backend, frontend, orchestrator).
func (e *ExecutorError) WithClient(client string) *ExecutorError {
	e.Client = client
	return e
}

// WithCLI adds the assistant type.
func (e *ExecutorError) WithCLI(cli string) *ExecutorError {
	e.CLI = cli
	return e
}

// WithExitCode adds the process exit code.
func (e *ExecutorError) WithExitCode(code int) *ExecutorError {
	e.ExitCode = code
	return e
}

// WithOutput attaches captured stderr/stdout.
func (e *ExecutorError) WithOutput(output string) *ExecutorError {
	e.Output = output
	return e
}

// Error returns the formatted error message.
func (e *ExecutorError) Error() string {
	var parts []string
	if e.Client != "" {
		parts = append(parts, fmt.Sprintf("client=%s", e.Client))
	}
	if e.CLI != "" {
		parts = append(parts, fmt.Sprintf("cli=%s", e.CLI))
	}
	if e.ExitCode != 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	return e.format("executor error", parts)
}

// Is checks if this error matches the target.
func (e *ExecutorError) Is(target error) bool {
	if _, ok := target.(*ExecutorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PlanningError represents a planning or judgment call that yielded nothing usable.
type PlanningError struct {
	baseError
	Role string
}

// NewPlanningError creates a new PlanningError.
func NewPlanningError(message string, cause error) *PlanningError {
	return &PlanningError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityWarning,
			retryable: false,
		},
	}
}

// WithRole adds the role whose call failed.
func (e *PlanningError) WithRole(role string) *PlanningError {
	e.Role = role
	return e
}

// Error returns the formatted error message.
func (e *PlanningError) Error() string {
	var parts []string
	if e.Role != "" {
		parts = append(parts, fmt.Sprintf("role=%s", e.Role))
	}
	return e.format("planning error", parts)
}

// Is checks if this error matches the target.
func (e *PlanningError) Is(target error) bool {
	if _, ok := target.(*PlanningError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a missing resource.
//
// Example:
//
//	err := errors.NewNotFoundError("summary", "logs/summary.json")
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:  fmt.Sprintf("%s not found: %s", resourceType, resourceID),
			severity: SeverityWarning,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if errors.Is(target, ErrNotFound) {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("unknown action type").WithField("type").WithValue("compile")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("codex exec", 240*time.Second)
//	fmt.Println(err) // "timeout error: codex exec (timeout: 4m0s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			severity:  SeverityWarning,
			retryable: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var daacsErr DAACSError
	if As(err, &daacsErr) {
		return daacsErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement DAACSError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var daacsErr DAACSError
	if As(err, &daacsErr) {
		return daacsErr.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
