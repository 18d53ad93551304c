// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
)

// ErrorCode classifies every failure the engine reports.
type ErrorCode string

const (
	// ErrCodeConfig marks invalid configuration, rejected synchronously
	// before any state change.
	ErrCodeConfig ErrorCode = "config"

	// ErrCodeResource marks failures acquiring or releasing capture
	// resources (device open, stream start, output files).
	ErrCodeResource ErrorCode = "resource"

	// ErrCodeRuntime marks failures inside a running session. Fatal
	// runtime errors (device disconnect) stop the session and reach
	// error subscribers; ring overflow is recoverable and only counted.
	ErrCodeRuntime ErrorCode = "runtime"

	// ErrCodeState marks operations called in a state that does not
	// permit them. The engine's state and configuration are unchanged.
	ErrCodeState ErrorCode = "state"
)

// EngineError is the error type behind every engine failure, carrying
// the failing operation and classification alongside the message.
type EngineError struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// IsCode reports whether err is or wraps an *EngineError with the given
// code.
func IsCode(err error, code ErrorCode) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == code
}

func errConfig(op, format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeConfig, Op: op, Message: fmt.Sprintf(format, args...)}
}

func errResource(op string, cause error, format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeResource, Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func errRuntime(op string, cause error, format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeRuntime, Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func errState(op, format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeState, Op: op, Message: fmt.Sprintf(format, args...)}
}
