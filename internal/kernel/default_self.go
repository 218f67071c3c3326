package kernel

import (
	"math/big"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/ipfs/go-cid"
)

// Root returns the executing actor's state root.
func (k *DefaultKernel) Root() (cid.Cid, error) {
	act, err := k.self()
	if err != nil {
		return cid.Undef, err
	}
	return act.Head, nil
}

// SetRoot updates the executing actor's state root. The root must be linked.
func (k *DefaultKernel) SetRoot(root cid.Cid) error {
	if err := k.requireWritable("set root"); err != nil {
		return err
	}
	timer, err := k.charge(gas.OnSetRoot, gas.Vars{})
	if err != nil {
		return err
	}
	defer timer.Stop()

	ok, err := k.mgr.Blockstore().Has(root)
	if err != nil {
		return NewFatalError("blockstore read", err)
	}
	if !ok {
		return Syscallf(abi.ErrNotFound, "new root %s is not in the blockstore", root)
	}

	act, err := k.self()
	if err != nil {
		return err
	}
	act = act.Clone()
	act.Head = root
	if err := k.mgr.State().SetActor(k.actorID, act); err != nil {
		return NewFatalError("state tree write", err)
	}
	return nil
}

// CurrentBalance returns the executing actor's balance.
func (k *DefaultKernel) CurrentBalance() (*big.Int, error) {
	act, err := k.self()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(act.Balance), nil
}

// SelfDestruct deletes the executing actor. Unless burnUnspent is set the
// balance must already be zero.
func (k *DefaultKernel) SelfDestruct(burnUnspent bool) error {
	if err := k.requireWritable("self destruct"); err != nil {
		return err
	}
	timer, err := k.charge(gas.OnSelfDestruct, gas.Vars{})
	if err != nil {
		return err
	}
	defer timer.Stop()

	act, err := k.self()
	if err != nil {
		return err
	}
	if act.Balance.Sign() > 0 {
		if !burnUnspent {
			return NewSyscallError(abi.ErrIllegalOperation, "actor has a remaining balance")
		}
		burnt, err := k.getActor(abi.BurntFundsActorID)
		if err != nil {
			return err
		}
		burnt = burnt.Clone()
		burnt.Balance.Add(burnt.Balance, act.Balance)
		if err := k.mgr.State().SetActor(abi.BurntFundsActorID, burnt); err != nil {
			return NewFatalError("state tree write", err)
		}
	}
	if err := k.mgr.State().DeleteActor(k.actorID); err != nil {
		return NewFatalError("state tree delete", err)
	}
	return nil
}

func (k *DefaultKernel) self() (*ActorState, error) {
	act, err := k.mgr.State().GetActor(k.actorID)
	if err != nil {
		return nil, NewFatalError("state tree read", err)
	}
	if act == nil {
		return nil, NewSyscallError(abi.ErrIllegalOperation, "actor has been deleted")
	}
	return act, nil
}
