package kernel

import (
	"math/big"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/ipfs/go-cid"
)

func (k *DefaultKernel) lookup() (*gas.Timer, error) {
	return k.charge(gas.OnActorLookup, gas.Vars{})
}

func (k *DefaultKernel) getActor(id abi.ActorID) (*ActorState, error) {
	act, err := k.mgr.State().GetActor(id)
	if err != nil {
		return nil, NewFatalError("state tree read", err)
	}
	if act == nil {
		return nil, Syscallf(abi.ErrNotFound, "actor %d not found", id)
	}
	return act, nil
}

// ResolveAddress returns the actor id behind addr.
func (k *DefaultKernel) ResolveAddress(addr abi.Address) (abi.ActorID, error) {
	if addr.Protocol() == abi.ID && !addr.IsUndef() {
		return addr.ID()
	}
	timer, err := k.lookup()
	if err != nil {
		return 0, err
	}
	defer timer.Stop()

	id, ok, err := k.mgr.State().LookupID(addr)
	if err != nil {
		return 0, NewFatalError("address lookup", err)
	}
	if !ok {
		return 0, Syscallf(abi.ErrNotFound, "address %s not found", addr)
	}
	return id, nil
}

// LookupDelegatedAddress returns the delegated address of an actor, if it has one.
func (k *DefaultKernel) LookupDelegatedAddress(id abi.ActorID) (abi.Address, bool, error) {
	timer, err := k.lookup()
	if err != nil {
		return abi.Undef, false, err
	}
	defer timer.Stop()

	act, err := k.getActor(id)
	if err != nil {
		return abi.Undef, false, err
	}
	return act.DelegatedAddress, !act.DelegatedAddress.IsUndef(), nil
}

// GetActorCodeCID returns the code CID of an actor.
func (k *DefaultKernel) GetActorCodeCID(id abi.ActorID) (cid.Cid, error) {
	timer, err := k.lookup()
	if err != nil {
		return cid.Undef, err
	}
	defer timer.Stop()

	act, err := k.getActor(id)
	if err != nil {
		return cid.Undef, err
	}
	return act.Code, nil
}

// NextActorAddress returns the robust address the next created actor will get.
func (k *DefaultKernel) NextActorAddress() (abi.Address, error) {
	return k.mgr.NextActorAddress(), nil
}

// CreateActor installs a new actor. Only the system actor may create actors.
func (k *DefaultKernel) CreateActor(code cid.Cid, id abi.ActorID, delegated abi.Address) error {
	if err := k.requireWritable("create actor"); err != nil {
		return err
	}
	if k.actorID != abi.SystemActorID {
		return NewSyscallError(abi.ErrForbidden, "only the system actor may create actors")
	}
	timer, err := k.charge(gas.OnActorCreate, gas.Vars{})
	if err != nil {
		return err
	}
	defer timer.Stop()
	return k.mgr.CreateActor(code, id, delegated)
}

// GetBuiltinActorType returns the builtin type of a code CID, zero if not builtin.
func (k *DefaultKernel) GetBuiltinActorType(code cid.Cid) (uint32, error) {
	typ, _ := k.mgr.Builtins().TypeOf(code)
	return typ, nil
}

// GetCodeCIDForType returns the code CID of a builtin actor type.
func (k *DefaultKernel) GetCodeCIDForType(typ uint32) (cid.Cid, error) {
	c, ok := k.mgr.Builtins().CodeOf(typ)
	if !ok {
		return cid.Undef, Syscallf(abi.ErrIllegalArgument, "unknown builtin actor type %d", typ)
	}
	return c, nil
}

// BalanceOf returns the balance of an actor.
func (k *DefaultKernel) BalanceOf(id abi.ActorID) (*big.Int, error) {
	timer, err := k.lookup()
	if err != nil {
		return nil, err
	}
	defer timer.Stop()

	act, err := k.getActor(id)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(act.Balance), nil
}
