//go:build wasip1

package customsyscall

import (
	"unsafe"

	"github.com/Prajjawalk/ipc/abi"
)

//go:wasmimport my_custom_kernel my_custom_syscall
func myCustomSyscall(retPtr uint32, userIndex int64, users, items, matrixPtr, matrixLen uint32, k int64) uint32

// HostSyscalls calls the host kernel through wasm imports.
type HostSyscalls struct{}

func (HostSyscalls) MyCustomSyscall(userIndex int64, users, items uint32, matrix *abi.MatrixBuffer, k int64) (abi.FixedResult, abi.ErrorNumber) {
	var out [abi.FixedResultSize]byte
	errno := abi.ErrorNumber(myCustomSyscall(
		uint32(uintptr(unsafe.Pointer(&out[0]))),
		userIndex, users, items,
		uint32(uintptr(unsafe.Pointer(&matrix[0]))), abi.MatrixBufferSize,
		k,
	))
	var res abi.FixedResult
	if errno != abi.ErrOK {
		return res, errno
	}
	if err := res.UnmarshalBinary(out[:]); err != nil {
		return res, abi.ErrSerialization
	}
	return res, abi.ErrOK
}
