package customkernel

import (
	"fmt"

	"github.com/Prajjawalk/ipc/abi"
)

// AuthorizationError is returned when the calling actor is not on the
// allow-list. Nothing has been read or charged when it is returned.
type AuthorizationError struct {
	Allowed []abi.ActorID
	Caller  abi.ActorID
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("caller %d is not allowed to call %s (allowed: %v)", e.Caller, SyscallName, e.Allowed)
}

// NewAuthorizationError creates a new authorization error.
func NewAuthorizationError(caller abi.ActorID, allowed []abi.ActorID) *AuthorizationError {
	return &AuthorizationError{Caller: caller, Allowed: allowed}
}

// EncodingError reports parameters or a result that do not fit the fixed
// syscall layout.
type EncodingError struct {
	Cause error
	Field string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %s: %v", e.Field, e.Cause)
}

func (e *EncodingError) Unwrap() error {
	return e.Cause
}

// NewEncodingError creates a new encoding error.
func NewEncodingError(field string, cause error) *EncodingError {
	return &EncodingError{Field: field, Cause: cause}
}

// CapabilityExecutionError reports a failed payload call.
type CapabilityExecutionError struct {
	Cause   error
	Payload string
}

func (e *CapabilityExecutionError) Error() string {
	return fmt.Sprintf("payload %s failed: %v", e.Payload, e.Cause)
}

func (e *CapabilityExecutionError) Unwrap() error {
	return e.Cause
}

// NewCapabilityExecutionError creates a new capability execution error.
func NewCapabilityExecutionError(payload string, cause error) *CapabilityExecutionError {
	return &CapabilityExecutionError{Payload: payload, Cause: cause}
}
