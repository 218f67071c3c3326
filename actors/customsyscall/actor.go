// Package customsyscall is the guest actor that exposes the recommendation
// syscall to messages sent by the system actor.
package customsyscall

import (
	"fmt"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/sdk"
)

// ActorName is the name the actor is registered under.
const ActorName = "customsyscall"

// MethodInvoke is the FRC-42 number of the Invoke method.
var MethodInvoke = abi.MustMethodHash("Invoke")

// InvokeParams are the arguments of Invoke. Every field has a fixed size so
// the whole record fits the guest/host transfer buffer.
type InvokeParams struct {
	_                  struct{} `cbor:",toarray"`
	UserIndex          int64
	UserActivityMatrix abi.MatrixBuffer
	K                  int64
	Users              uint32
	Items              uint32
}

// Syscalls is the host surface the actor depends on.
type Syscalls interface {
	MyCustomSyscall(userIndex int64, users, items uint32, matrix *abi.MatrixBuffer, k int64) (abi.FixedResult, abi.ErrorNumber)
}

// Actor dispatches messages for the customsyscall actor.
type Actor struct {
	sys Syscalls
}

// New returns an Actor backed by sys.
func New(sys Syscalls) *Actor {
	return &Actor{sys: sys}
}

// Dispatch runs method with CBOR-encoded params and returns the encoded result.
// The caller is checked before params are decoded.
func (a *Actor) Dispatch(rt sdk.Runtime, method abi.MethodNum, params []byte) ([]byte, error) {
	switch method {
	case MethodInvoke:
		if err := rt.ValidateImmediateCallerIs(abi.SystemActorID); err != nil {
			return nil, err
		}
		var p InvokeParams
		if err := abi.Unmarshal(params, &p); err != nil {
			return nil, sdk.NewActorError(abi.UsrSerialization, "decoding Invoke params: %v", err)
		}
		out, err := a.Invoke(rt, &p)
		if err != nil {
			return nil, err
		}
		encoded, err := abi.Marshal(out)
		if err != nil {
			return nil, sdk.NewActorError(abi.UsrSerialization, "encoding Invoke result: %v", err)
		}
		return encoded, nil
	default:
		return nil, sdk.NewActorError(abi.UsrUnhandledMessage, "unhandled method %d", method)
	}
}

// Invoke asks the host for the top p.K recommendations for p.UserIndex.
func (a *Actor) Invoke(rt sdk.Runtime, p *InvokeParams) ([][]int64, error) {
	if err := abi.ValidateShape(p.Users, p.Items); err != nil {
		return nil, sdk.NewActorError(abi.UsrIllegalArgument, "%v", err)
	}
	res, errno := a.sys.MyCustomSyscall(p.UserIndex, p.Users, p.Items, &p.UserActivityMatrix, p.K)
	if errno != abi.ErrOK {
		return nil, sdk.NewActorError(abi.ExitCodeForErrno(errno), "my_custom_syscall: %s", errno)
	}
	payload, err := res.Payload()
	if err != nil {
		return nil, sdk.NewActorError(abi.UsrSerialization, "syscall result: %v", err)
	}
	var out [][]int64
	if err := abi.Unmarshal(payload, &out); err != nil {
		return nil, sdk.NewActorError(abi.UsrSerialization, "decoding recommendations: %v", err)
	}
	rt.Log(fmt.Sprintf("customsyscall: %d recommendations for user %d", len(out), p.UserIndex))
	return out, nil
}
