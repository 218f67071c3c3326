package syscalls

import (
	"context"
	"math"
	"math/big"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/Prajjawalk/ipc/internal/kernel"
)

// NoGasLimit is passed as gas_limit to inherit the caller's remaining gas.
const NoGasLimit = math.MaxUint64

// send(ret, recipient_ptr, recipient_len, method, params_id, value_lo, value_hi, gas_limit, flags)
// -> ret {exit_code u32, block_id u32, codec u64, size u32}
func send[K kernel.Kernel](ctx context.Context, c *Context[K], args []uint64) error {
	recipient, err := c.ReadAddress(U32(args[1]), U32(args[2]))
	if err != nil {
		return err
	}
	value := new(big.Int).SetUint64(args[6])
	value.Lsh(value, 64)
	value.Or(value, new(big.Int).SetUint64(args[5]))

	var limit *gas.Gas
	if args[7] != NoGasLimit {
		if args[7] > math.MaxInt64 {
			return kernel.NewSyscallError(abi.ErrIllegalArgument, "gas limit out of range")
		}
		l := gas.Gas(args[7])
		limit = &l
	}

	res, err := c.Kernel.Send(ctx, recipient, abi.MethodNum(args[3]), U32(args[4]), value, limit, kernel.SendFlags(args[8]))
	if err != nil {
		return err
	}
	return c.Write(U32(args[0]), encodeCallResult(res))
}

func encodeCallResult(res kernel.CallResult) []byte {
	return le(nil).u32(uint32(res.ExitCode)).u32(res.Block).u64(res.Stat.Codec).u32(res.Stat.Size)
}
