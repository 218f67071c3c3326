// Package sdk is the guest-side runtime used by actors, both when compiled
// to wasm and when run in process.
package sdk

import (
	"errors"
	"fmt"

	"github.com/Prajjawalk/ipc/abi"
)

// Message identifies the invocation an actor is serving.
type Message struct {
	Caller   abi.ActorID
	Receiver abi.ActorID
	Method   abi.MethodNum
}

// Runtime is what an actor method may ask of its environment.
type Runtime interface {
	Message() Message
	// ValidateImmediateCallerIs fails with UsrForbidden unless the caller is
	// one of allowed.
	ValidateImmediateCallerIs(allowed ...abi.ActorID) error
	Log(msg string)
}

type runtime struct {
	msg Message
	log func(string)
}

// NewRuntime returns a Runtime for msg. log may be nil.
func NewRuntime(msg Message, log func(string)) Runtime {
	return &runtime{msg: msg, log: log}
}

func (r *runtime) Message() Message { return r.msg }

func (r *runtime) ValidateImmediateCallerIs(allowed ...abi.ActorID) error {
	for _, id := range allowed {
		if r.msg.Caller == id {
			return nil
		}
	}
	return NewActorError(abi.UsrForbidden, "caller %d is not one of %v", r.msg.Caller, allowed)
}

func (r *runtime) Log(msg string) {
	if r.log != nil {
		r.log(msg)
	}
}

// ActorError aborts an actor method with an exit code.
type ActorError struct {
	Message string
	Code    abi.ExitCode
}

func (e *ActorError) Error() string {
	return fmt.Sprintf("actor error %d (%s): %s", uint32(e.Code), e.Code, e.Message)
}

// NewActorError creates a new actor error.
func NewActorError(code abi.ExitCode, format string, args ...any) *ActorError {
	return &ActorError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ExitCodeOf returns the exit code carried by err.
func ExitCodeOf(err error) abi.ExitCode {
	if err == nil {
		return abi.ExitOK
	}
	var ae *ActorError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return abi.UsrUnspecified
}

// Result converts a method outcome into the value handed back to the host.
// Actors may not claim system exit codes; those are remapped.
func Result(data []byte, err error) abi.Return {
	if err == nil {
		return abi.Return{ExitCode: abi.ExitOK, Data: data}
	}
	code := ExitCodeOf(err)
	if code.IsSuccess() || code.IsSystemError() {
		code = abi.UsrUnspecified
	}
	return abi.Return{ExitCode: code, Message: err.Error()}
}
