package syscalls

import (
	"context"
	"encoding/binary"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/ipfs/go-cid"
)

// Context is what a syscall implementation sees: the kernel serving the
// current invocation and the caller's memory.
type Context[K any] struct {
	Kernel K
	Memory Memory
}

// Read copies n bytes at ptr out of guest memory.
func (c *Context[K]) Read(ptr, n uint32) ([]byte, error) {
	if c.Memory == nil {
		return nil, kernel.NewSyscallError(abi.ErrIllegalOperation, "caller has no memory")
	}
	b, ok := c.Memory.Read(ptr, n)
	if !ok {
		return nil, kernel.Syscallf(abi.ErrIllegalArgument, "buffer [%d, +%d) out of bounds", ptr, n)
	}
	return append([]byte(nil), b...), nil
}

// Write copies b into guest memory at ptr.
func (c *Context[K]) Write(ptr uint32, b []byte) error {
	if c.Memory == nil {
		return kernel.NewSyscallError(abi.ErrIllegalOperation, "caller has no memory")
	}
	if !c.Memory.Write(ptr, b) {
		return kernel.Syscallf(abi.ErrIllegalArgument, "buffer [%d, +%d) out of bounds", ptr, len(b))
	}
	return nil
}

// WriteBounded writes b into a caller buffer of capacity n and returns the
// written length.
func (c *Context[K]) WriteBounded(ptr, n uint32, b []byte) (uint32, error) {
	if uint64(len(b)) > uint64(n) {
		return 0, kernel.Syscallf(abi.ErrBufferTooSmall, "need %d bytes, buffer holds %d", len(b), n)
	}
	if err := c.Write(ptr, b); err != nil {
		return 0, err
	}
	return uint32(len(b)), nil //nolint:gosec // bounded by n
}

// WriteUint32 writes v little-endian at ptr.
func (c *Context[K]) WriteUint32(ptr, v uint32) error {
	return c.Write(ptr, binary.LittleEndian.AppendUint32(nil, v))
}

// WriteUint64 writes v little-endian at ptr.
func (c *Context[K]) WriteUint64(ptr uint32, v uint64) error {
	return c.Write(ptr, binary.LittleEndian.AppendUint64(nil, v))
}

// ReadCid parses a CID from guest memory.
func (c *Context[K]) ReadCid(ptr, n uint32) (cid.Cid, error) {
	b, err := c.Read(ptr, n)
	if err != nil {
		return cid.Undef, err
	}
	parsed, err := cid.Cast(b)
	if err != nil {
		return cid.Undef, kernel.WrapSyscallError(abi.ErrIllegalCid, "malformed cid", err)
	}
	return parsed, nil
}

// ReadAddress parses an address from guest memory.
func (c *Context[K]) ReadAddress(ptr, n uint32) (abi.Address, error) {
	b, err := c.Read(ptr, n)
	if err != nil {
		return abi.Undef, err
	}
	addr, err := abi.AddressFromBytes(b)
	if err != nil {
		return abi.Undef, kernel.WrapSyscallError(abi.ErrIllegalArgument, "malformed address", err)
	}
	return addr, nil
}

type contextKey struct {
	name string
}

var frameKey = &contextKey{name: "syscall_frame"}

// frame binds a kernel to one invocation and records why it aborted.
type frame struct {
	kernel any
	abort  error
}

// WithKernel binds k to ctx for the syscalls an invocation makes.
func WithKernel[K any](ctx context.Context, k K) context.Context {
	return context.WithValue(ctx, frameKey, &frame{kernel: k})
}

// KernelFrom returns the kernel bound by WithKernel.
func KernelFrom[K any](ctx context.Context) (K, bool) {
	var zero K
	f, ok := ctx.Value(frameKey).(*frame)
	if !ok {
		return zero, false
	}
	k, ok := f.kernel.(K)
	return k, ok
}

// Aborted returns the error that aborted the invocation bound to ctx, if any.
// A wasm trap surfaces from the engine as its own error; the recorded abort
// keeps the original cause intact.
func Aborted(ctx context.Context) error {
	if f, ok := ctx.Value(frameKey).(*frame); ok {
		return f.abort
	}
	return nil
}

func recordAbort(ctx context.Context, err error) {
	if f, ok := ctx.Value(frameKey).(*frame); ok && f.abort == nil {
		f.abort = err
	}
}

// le appends fixed-width little-endian values for result structs.
type le []byte

func (b le) u32(v uint32) le { return binary.LittleEndian.AppendUint32(b, v) }
func (b le) u64(v uint64) le { return binary.LittleEndian.AppendUint64(b, v) }
func (b le) raw(v []byte) le { return append(b, v...) }
