package customkernel

import (
	"context"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/Prajjawalk/ipc/internal/syscalls"
	"github.com/tetratelabs/wazero/api"
)

// Syscall linkage names.
const (
	Module      = "my_custom_kernel"
	SyscallName = "my_custom_syscall"
)

// Params is the my_custom_syscall signature:
// (ret_ptr, user_index, users, items, matrix_ptr, matrix_len, k).
var Params = []api.ValueType{
	api.ValueTypeI32,
	api.ValueTypeI64,
	api.ValueTypeI32,
	api.ValueTypeI32,
	api.ValueTypeI32,
	api.ValueTypeI32,
	api.ValueTypeI64,
}

// LinkSyscalls links every base syscall and then my_custom_syscall.
func LinkSyscalls(l *syscalls.Linker[CustomKernel]) error {
	if err := syscalls.LinkBase(l); err != nil {
		return err
	}
	return l.Link(Module, SyscallName, Params, myCustomSyscall)
}

// NewTable links and builds the syscall table for CustomKernel.
func NewTable(opts ...syscalls.TableOption) (*syscalls.Table[CustomKernel], error) {
	l := syscalls.NewLinker[CustomKernel]()
	if err := LinkSyscalls(l); err != nil {
		return nil, err
	}
	return l.Build(opts...)
}

func myCustomSyscall(ctx context.Context, c *syscalls.Context[CustomKernel], args []uint64) error {
	ret := syscalls.U32(args[0])
	userIndex := int64(args[1]) //nolint:gosec // i64 argument
	users := syscalls.U32(args[2])
	items := syscalls.U32(args[3])
	matrixPtr := syscalls.U32(args[4])
	matrixLen := syscalls.U32(args[5])
	k := int64(args[6]) //nolint:gosec // i64 argument

	if err := c.Kernel.Authorize(); err != nil {
		return err
	}
	if matrixLen != abi.MatrixBufferSize {
		return kernel.WrapSyscallError(abi.ErrIllegalArgument, "activity matrix",
			NewEncodingError("activity matrix", &abi.SizeError{What: "activity matrix", Got: int(matrixLen), Max: abi.MatrixBufferSize}))
	}
	// The result slot is checked before the payload runs.
	if _, err := c.Read(ret, abi.FixedResultSize); err != nil {
		return err
	}
	raw, err := c.Read(matrixPtr, matrixLen)
	if err != nil {
		return err
	}
	var matrix abi.MatrixBuffer
	copy(matrix[:], raw)

	res, err := c.Kernel.MyCustomSyscall(ctx, Args{
		Matrix:    &matrix,
		UserIndex: userIndex,
		K:         k,
		Users:     users,
		Items:     items,
	})
	if err != nil {
		return err
	}
	out, err := res.MarshalBinary()
	if err != nil {
		return kernel.NewFatalError("encoding fixed result", err)
	}
	return c.Write(ret, out)
}
