package domain

import (
	"errors"
	"fmt"
)

var (
	// Error classes surfaced by the job pipeline. Typed errors below wrap them.
	ErrValidation      = errors.New("validation failed")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrToolFailure     = errors.New("external tool failed")
	ErrIntegrity       = errors.New("output not found")
	ErrFilesystem      = errors.New("workspace unavailable")
	ErrBusy            = errors.New("server busy")
	ErrPayloadTooLarge = errors.New("upload too large")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ValidationError carries a user-facing message for a rejected request.
type ValidationError struct {
	Msg string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ToolFailure is returned when an external executable exits non-zero,
// cannot be started, or overruns its deadline.
type ToolFailure struct {
	Tool       string
	ExitCode   int
	Diagnostic string
	TimedOut   bool
	Err        error
}

func (e *ToolFailure) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("%s timed out", e.Tool)
	case e.Diagnostic != "":
		return fmt.Sprintf("%s failed: %s", e.Tool, e.Diagnostic)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	default:
		return fmt.Sprintf("%s failed with exit code %d", e.Tool, e.ExitCode)
	}
}

func (e *ToolFailure) Is(target error) bool { return target == ErrToolFailure }

func (e *ToolFailure) Unwrap() error { return e.Err }

// IntegrityError reports an output that is missing after a step claimed success.
type IntegrityError struct {
	Path string
}

func (e *IntegrityError) Error() string { return ErrIntegrity.Error() }

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }
