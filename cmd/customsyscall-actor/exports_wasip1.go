//go:build wasip1

package main

import (
	"unsafe"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/actors/customsyscall"
	"github.com/Prajjawalk/ipc/sdk"
)

// live keeps buffers handed to the host reachable. The instance is
// discarded after one invocation.
var live [][]byte

var version = []byte(ABIConstraint)

func keep(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	live = append(live, b)
	return abi.PackPtrLen(uint32(uintptr(unsafe.Pointer(&b[0]))), uint32(len(b)))
}

//go:wasmexport allocate
func allocate(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	b := make([]byte, size)
	live = append(live, b)
	return uint32(uintptr(unsafe.Pointer(&b[0])))
}

//go:wasmexport abi_version
func abiVersion() uint64 {
	return keep(version)
}

//go:wasmexport invoke
func invoke(method, caller uint64, paramsPtr, paramsLen uint32) uint64 {
	var params []byte
	if paramsLen > 0 {
		params = unsafe.Slice((*byte)(unsafe.Pointer(uintptr(paramsPtr))), paramsLen)
	}
	m := abi.MethodNum(method)
	rt := sdk.NewRuntime(sdk.Message{Caller: abi.ActorID(caller), Method: m}, sdk.DebugLog)
	out, err := customsyscall.New(customsyscall.HostSyscalls{}).Dispatch(rt, m, params)

	encoded, merr := abi.Marshal(sdk.Result(out, err))
	if merr != nil {
		panic(merr)
	}
	return keep(encoded)
}
