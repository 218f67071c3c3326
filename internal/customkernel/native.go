package customkernel

import (
	"context"
	"fmt"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/actors/customsyscall"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/Prajjawalk/ipc/internal/syscalls"
	"github.com/Prajjawalk/ipc/sdk"
)

// Scratch memory layout for in-process syscalls.
const (
	scratchMatrix = 0
	scratchResult = scratchMatrix + abi.MatrixBufferSize
	scratchSize   = scratchResult + abi.FixedResultSize
)

// abortSignal unwinds an in-process actor the way a trap unwinds a wasm one.
type abortSignal struct {
	err error
}

// NativeActor runs the customsyscall actor in process. Its syscalls go
// through the same table a wasm build of the actor links against.
type NativeActor struct {
	table *syscalls.Table[CustomKernel]
}

// NewNativeActor returns an invoker for the customsyscall actor.
func NewNativeActor(table *syscalls.Table[CustomKernel]) *NativeActor {
	return &NativeActor{table: table}
}

// Invoke dispatches method to the actor under k.
func (n *NativeActor) Invoke(ctx context.Context, k CustomKernel, method abi.MethodNum, params *kernel.Block) (ret abi.Return, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(abortSignal)
			if !ok {
				panic(r)
			}
			ret, err = abi.Return{}, sig.err
		}
	}()

	msg := k.MsgContext()
	rt := sdk.NewRuntime(sdk.Message{Caller: msg.Caller, Receiver: msg.Receiver, Method: method}, k.Log)
	sys := &nativeSyscalls{
		ctx:   ctx,
		table: n.table,
		frame: &syscalls.Context[CustomKernel]{Kernel: k, Memory: syscalls.NewBuffer(scratchSize)},
	}
	var data []byte
	if params != nil {
		data = params.Data
	}
	out, aerr := customsyscall.New(sys).Dispatch(rt, method, data)
	return sdk.Result(out, aerr), nil
}

type nativeSyscalls struct {
	ctx   context.Context
	table *syscalls.Table[CustomKernel]
	frame *syscalls.Context[CustomKernel]
}

func (s *nativeSyscalls) MyCustomSyscall(userIndex int64, users, items uint32, matrix *abi.MatrixBuffer, k int64) (abi.FixedResult, abi.ErrorNumber) {
	var res abi.FixedResult
	if err := s.frame.Write(scratchMatrix, matrix[:]); err != nil {
		panic(abortSignal{err: kernel.NewFatalError("staging activity matrix", err)})
	}
	errno, err := s.table.Call(s.ctx, s.frame, Module, SyscallName,
		uint64(scratchResult),
		uint64(userIndex), //nolint:gosec // i64 argument
		uint64(users),
		uint64(items),
		uint64(scratchMatrix),
		uint64(abi.MatrixBufferSize),
		uint64(k), //nolint:gosec // i64 argument
	)
	if err != nil {
		panic(abortSignal{err: err})
	}
	if errno != abi.ErrOK {
		return res, errno
	}
	raw, err := s.frame.Read(scratchResult, abi.FixedResultSize)
	if err != nil {
		panic(abortSignal{err: kernel.NewFatalError("reading fixed result", err)})
	}
	if err := res.UnmarshalBinary(raw); err != nil {
		panic(abortSignal{err: kernel.NewFatalError(fmt.Sprintf("%s returned a malformed result", SyscallName), err)})
	}
	return res, abi.ErrOK
}
