package syscalls

import (
	"context"
	"math/big"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/kernel"
)

// root(ret, buf_ptr, buf_len) -> ret {len u32}
func selfRoot[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	root, err := c.Kernel.Root()
	if err != nil {
		return err
	}
	return writeCid(c, U32(args[0]), U32(args[1]), U32(args[2]), root)
}

// set_root(cid_ptr, cid_len)
func selfSetRoot[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	root, err := c.ReadCid(U32(args[0]), U32(args[1]))
	if err != nil {
		return err
	}
	return c.Kernel.SetRoot(root)
}

// current_balance(ret) -> ret {amount u128}
func selfCurrentBalance[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	balance, err := c.Kernel.CurrentBalance()
	if err != nil {
		return err
	}
	return writeTokenAmount(c, U32(args[0]), balance)
}

// self_destruct(burn_unspent)
func selfDestruct[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	return c.Kernel.SelfDestruct(U32(args[0]) != 0)
}

func writeTokenAmount[K any](c *Context[K], ptr uint32, v *big.Int) error {
	enc, err := abi.EncodeTokenAmount(v)
	if err != nil {
		return kernel.NewFatalError("encoding token amount", err)
	}
	return c.Write(ptr, enc[:])
}
