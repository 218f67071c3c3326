package kernel

import (
	"context"
	"math/big"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/ipfs/go-cid"
)

// Send invokes another actor and registers its return block, if any.
func (k *DefaultKernel) Send(ctx context.Context, recipient abi.Address, method abi.MethodNum, params BlockID, value *big.Int, gasLimit *gas.Gas, flags SendFlags) (CallResult, error) {
	readOnly := k.readOnly || flags&SendReadOnly != 0
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return CallResult{}, NewSyscallError(abi.ErrIllegalArgument, "negative value")
	}
	if readOnly && value.Sign() > 0 {
		return CallResult{}, NewSyscallError(abi.ErrReadOnly, "cannot transfer value in read-only mode")
	}

	var paramsBlock *Block
	if params != NoDataBlockID {
		b, err := k.blocks.Get(params)
		if err != nil {
			return CallResult{}, err
		}
		paramsBlock = &b
	}

	res, err := k.mgr.Send(ctx, k.actorID, recipient, method, paramsBlock, value, gasLimit, readOnly)
	if err != nil {
		return CallResult{}, err
	}
	return k.registerResult(res)
}

// UpgradeActor replaces the executing actor's code and runs its upgrade entry point.
func (k *DefaultKernel) UpgradeActor(ctx context.Context, newCode cid.Cid, params BlockID) (CallResult, error) {
	if err := k.requireWritable("upgrade actor"); err != nil {
		return CallResult{}, err
	}
	var paramsBlock *Block
	if params != NoDataBlockID {
		b, err := k.blocks.Get(params)
		if err != nil {
			return CallResult{}, err
		}
		paramsBlock = &b
	}
	res, err := k.mgr.Upgrade(ctx, k.actorID, newCode, paramsBlock)
	if err != nil {
		return CallResult{}, err
	}
	return k.registerResult(res)
}

func (k *DefaultKernel) registerResult(res InvocationResult) (CallResult, error) {
	out := CallResult{ExitCode: res.ExitCode}
	if res.Return == nil {
		return out, nil
	}
	id, err := k.blocks.Put(*res.Return)
	if err != nil {
		return CallResult{}, err
	}
	out.Block = id
	out.Stat, _ = k.blocks.Stat(id)
	return out, nil
}
