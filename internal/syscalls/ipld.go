package syscalls

import (
	"context"

	"github.com/Prajjawalk/ipc/internal/kernel"
)

// block_open(ret, cid_ptr, cid_len) -> ret {id u32, codec u64, size u32}
func blockOpen[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	root, err := c.ReadCid(U32(args[1]), U32(args[2]))
	if err != nil {
		return err
	}
	id, stat, err := c.Kernel.BlockOpen(root)
	if err != nil {
		return err
	}
	return c.Write(U32(args[0]), le(nil).u32(id).u64(stat.Codec).u32(stat.Size))
}

// block_create(ret, codec, data_ptr, data_len) -> ret {id u32}
func blockCreate[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	data, err := c.Read(U32(args[2]), U32(args[3]))
	if err != nil {
		return err
	}
	id, err := c.Kernel.BlockCreate(args[1], data)
	if err != nil {
		return err
	}
	return c.WriteUint32(U32(args[0]), id)
}

// block_read(ret, id, offset, buf_ptr, buf_len) -> ret {remaining i32}
func blockRead[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	bufPtr, bufLen := U32(args[3]), U32(args[4])
	// validate the destination before doing the work
	if _, err := c.Read(bufPtr, bufLen); err != nil {
		return err
	}
	buf := make([]byte, bufLen)
	remaining, err := c.Kernel.BlockRead(U32(args[1]), U32(args[2]), buf)
	if err != nil {
		return err
	}
	if err := c.Write(bufPtr, buf); err != nil {
		return err
	}
	return c.WriteUint32(U32(args[0]), uint32(remaining)) //nolint:gosec // two's complement on the wire
}

// block_stat(ret, id) -> ret {codec u64, size u32}
func blockStat[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	stat, err := c.Kernel.BlockStat(U32(args[1]))
	if err != nil {
		return err
	}
	return c.Write(U32(args[0]), le(nil).u64(stat.Codec).u32(stat.Size))
}

// block_link(ret, id, hash_fun, hash_len, cid_ptr, cid_len) -> ret {cid_len u32}
func blockLink[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	cidPtr, cidLen := U32(args[4]), U32(args[5])
	if _, err := c.Read(cidPtr, cidLen); err != nil {
		return err
	}
	linked, err := c.Kernel.BlockLink(U32(args[1]), args[2], U32(args[3]))
	if err != nil {
		return err
	}
	n, err := c.WriteBounded(cidPtr, cidLen, linked.Bytes())
	if err != nil {
		return err
	}
	return c.WriteUint32(U32(args[0]), n)
}
