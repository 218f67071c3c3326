package syscalls

import (
	"context"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/ipfs/go-cid"
)

// resolve_address(ret, addr_ptr, addr_len) -> ret {id u64}
func resolveAddress[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	addr, err := c.ReadAddress(U32(args[1]), U32(args[2]))
	if err != nil {
		return err
	}
	id, err := c.Kernel.ResolveAddress(addr)
	if err != nil {
		return err
	}
	return c.WriteUint64(U32(args[0]), uint64(id))
}

// lookup_delegated_address(ret, actor_id, buf_ptr, buf_len) -> ret {len u32}; zero when absent
func lookupDelegatedAddress[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	addr, ok, err := c.Kernel.LookupDelegatedAddress(abi.ActorID(args[1]))
	if err != nil {
		return err
	}
	var n uint32
	if ok {
		if n, err = c.WriteBounded(U32(args[2]), U32(args[3]), addr.Bytes()); err != nil {
			return err
		}
	}
	return c.WriteUint32(U32(args[0]), n)
}

// get_actor_code_cid(ret, actor_id, buf_ptr, buf_len) -> ret {len u32}
func getActorCodeCID[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	code, err := c.Kernel.GetActorCodeCID(abi.ActorID(args[1]))
	if err != nil {
		return err
	}
	return writeCid(c, U32(args[0]), U32(args[2]), U32(args[3]), code)
}

// next_actor_address(ret, buf_ptr, buf_len) -> ret {len u32}
func nextActorAddress[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	addr, err := c.Kernel.NextActorAddress()
	if err != nil {
		return err
	}
	n, err := c.WriteBounded(U32(args[1]), U32(args[2]), addr.Bytes())
	if err != nil {
		return err
	}
	return c.WriteUint32(U32(args[0]), n)
}

// create_actor(actor_id, cid_ptr, cid_len, delegated_ptr, delegated_len)
func createActor[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	code, err := c.ReadCid(U32(args[1]), U32(args[2]))
	if err != nil {
		return err
	}
	delegated := abi.Undef
	if U32(args[4]) > 0 {
		if delegated, err = c.ReadAddress(U32(args[3]), U32(args[4])); err != nil {
			return err
		}
	}
	return c.Kernel.CreateActor(code, abi.ActorID(args[0]), delegated)
}

// get_builtin_actor_type(ret, cid_ptr, cid_len) -> ret {type u32}
func getBuiltinActorType[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	code, err := c.ReadCid(U32(args[1]), U32(args[2]))
	if err != nil {
		return err
	}
	typ, err := c.Kernel.GetBuiltinActorType(code)
	if err != nil {
		return err
	}
	return c.WriteUint32(U32(args[0]), typ)
}

// get_code_cid_for_type(ret, type, buf_ptr, buf_len) -> ret {len u32}
func getCodeCIDForType[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	code, err := c.Kernel.GetCodeCIDForType(U32(args[1]))
	if err != nil {
		return err
	}
	return writeCid(c, U32(args[0]), U32(args[2]), U32(args[3]), code)
}

// balance_of(ret, actor_id) -> ret {amount u128}
func balanceOf[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	balance, err := c.Kernel.BalanceOf(abi.ActorID(args[1]))
	if err != nil {
		return err
	}
	return writeTokenAmount(c, U32(args[0]), balance)
}

// upgrade_actor(ret, cid_ptr, cid_len, params_id) -> ret {send result}
func upgradeActor[K kernel.Kernel](ctx context.Context, c *Context[K], args []uint64) error {
	code, err := c.ReadCid(U32(args[1]), U32(args[2]))
	if err != nil {
		return err
	}
	res, err := c.Kernel.UpgradeActor(ctx, code, U32(args[3]))
	if err != nil {
		return err
	}
	return c.Write(U32(args[0]), encodeCallResult(res))
}

func writeCid[K any](c *Context[K], ret, ptr, n uint32, v cid.Cid) error {
	written, err := c.WriteBounded(ptr, n, v.Bytes())
	if err != nil {
		return err
	}
	return c.WriteUint32(ret, written)
}
