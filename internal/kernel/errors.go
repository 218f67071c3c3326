package kernel

import (
	"errors"
	"fmt"

	"github.com/Prajjawalk/ipc/abi"
)

// SyscallError is a recoverable failure returned to the guest as an errno.
type SyscallError struct {
	Cause   error
	Message string
	Number  abi.ErrorNumber
}

func (e *SyscallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("syscall error %d (%s): %s: %v", e.Number, e.Number, e.Message, e.Cause)
	}
	return fmt.Sprintf("syscall error %d (%s): %s", e.Number, e.Number, e.Message)
}

func (e *SyscallError) Unwrap() error {
	return e.Cause
}

// NewSyscallError creates a new syscall error.
func NewSyscallError(number abi.ErrorNumber, message string) *SyscallError {
	return &SyscallError{Number: number, Message: message}
}

// Syscallf creates a syscall error with a formatted message.
func Syscallf(number abi.ErrorNumber, format string, args ...any) *SyscallError {
	return &SyscallError{Number: number, Message: fmt.Sprintf(format, args...)}
}

// WrapSyscallError creates a syscall error carrying its cause.
func WrapSyscallError(number abi.ErrorNumber, message string, cause error) *SyscallError {
	return &SyscallError{Number: number, Message: message, Cause: cause}
}

// FatalError is an unrecoverable host failure. It aborts the whole message.
type FatalError struct {
	Cause   error
	Message string
}

func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Message, e.Cause)
	}
	return "fatal: " + e.Message
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// NewFatalError creates a new fatal error.
func NewFatalError(message string, cause error) *FatalError {
	return &FatalError{Message: message, Cause: cause}
}

// ErrorNumberOf extracts the errno carried by err, if any.
func ErrorNumberOf(err error) (abi.ErrorNumber, bool) {
	var se *SyscallError
	if errors.As(err, &se) {
		return se.Number, true
	}
	return 0, false
}

// AbortError ends one invocation with a system exit code, for example when
// a guest traps. Unlike FatalError it does not abort the message; the caller
// of the invocation sees Code.
type AbortError struct {
	Cause   error
	Message string
	Code    abi.ExitCode
}

func (e *AbortError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invocation aborted with %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("invocation aborted with %s: %s", e.Code, e.Message)
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// NewAbortError creates a new abort error.
func NewAbortError(code abi.ExitCode, message string, cause error) *AbortError {
	return &AbortError{Code: code, Message: message, Cause: cause}
}
