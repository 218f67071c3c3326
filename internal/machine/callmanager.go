package machine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/ipfs/go-cid"
)

// MaxCallDepth bounds nested sends within one message.
const MaxCallDepth = 1024

// MethodUpgrade is invoked on an actor after its code is replaced.
var MethodUpgrade = abi.MustMethodHash("Upgrade")

// callManager is the kernel.CallManager for one message.
type callManager[K kernel.Kernel] struct {
	m       *Machine[K]
	gas     *gas.Tracker
	state   *StateTree
	store   *BufferedBlockstore
	origin  abi.ActorID
	from    abi.Address
	nonce   uint64
	premium *big.Int
	events  []kernel.StampedEvent
	depth   int
	created uint64
}

var _ kernel.CallManager = (*callManager[*kernel.DefaultKernel])(nil)

func (cm *callManager[K]) Gas() *gas.Tracker                 { return cm.gas }
func (cm *callManager[K]) Prices() *gas.PriceList            { return cm.m.cfg.Prices }
func (cm *callManager[K]) State() kernel.StateTree           { return cm.state }
func (cm *callManager[K]) Blockstore() kernel.Blockstore     { return cm.store }
func (cm *callManager[K]) Externs() kernel.Externs           { return cm.m.cfg.Externs }
func (cm *callManager[K]) Builtins() kernel.Builtins         { return cm.m.cfg.Builtins }
func (cm *callManager[K]) Network() kernel.NetworkContext    { return cm.m.cfg.Network }
func (cm *callManager[K]) Debug() kernel.DebugSettings       { return cm.m.cfg.Debug }
func (cm *callManager[K]) Origin() abi.ActorID               { return cm.origin }
func (cm *callManager[K]) Nonce() uint64                     { return cm.nonce }
func (cm *callManager[K]) GasPremium() *big.Int              { return new(big.Int).Set(cm.premium) }
func (cm *callManager[K]) AppendEvent(e kernel.StampedEvent) { cm.events = append(cm.events, e) }

// NextActorAddress derives the robust address of the next actor created by
// this message from the origin, the nonce, and the number created so far.
func (cm *callManager[K]) NextActorAddress() abi.Address {
	seed := append([]byte(nil), cm.from.Bytes()...)
	seed = binary.BigEndian.AppendUint64(seed, cm.nonce)
	seed = binary.BigEndian.AppendUint64(seed, cm.created)
	return abi.NewActorAddress(seed)
}

func (cm *callManager[K]) CreateActor(code cid.Cid, id abi.ActorID, delegated abi.Address) error {
	if _, ok := cm.m.invoker(code); !ok {
		return kernel.Syscallf(abi.ErrNotFound, "no actor code %s", code)
	}
	existing, err := cm.state.GetActor(id)
	if err != nil {
		return kernel.NewFatalError("state tree read", err)
	}
	if existing != nil {
		return kernel.Syscallf(abi.ErrForbidden, "actor %d already exists", id)
	}
	if !delegated.IsUndef() {
		if err := cm.state.BindAddress(delegated, id); err != nil {
			return kernel.WrapSyscallError(abi.ErrIllegalArgument, "delegated address", err)
		}
	}
	if err := cm.state.BindAddress(cm.NextActorAddress(), id); err != nil {
		return kernel.NewFatalError("binding robust address", err)
	}
	cm.created++
	return cm.state.SetActor(id, &kernel.ActorState{
		Code:             code,
		Balance:          new(big.Int),
		DelegatedAddress: delegated,
	})
}

func (cm *callManager[K]) Send(ctx context.Context, from abi.ActorID, to abi.Address, method abi.MethodNum, params *kernel.Block, value *big.Int, gasLimit *gas.Gas, readOnly bool) (kernel.InvocationResult, error) {
	if cm.depth >= MaxCallDepth {
		return kernel.InvocationResult{}, kernel.Syscallf(abi.ErrLimitExceeded, "call depth %d exceeded", MaxCallDepth)
	}
	if gasLimit != nil {
		cm.gas.PushLimit(*gasLimit)
		defer cm.gas.PopLimit()
	}
	res, err := cm.transact(func() (kernel.InvocationResult, error) {
		return cm.send(ctx, from, to, method, params, value, readOnly)
	})
	if err != nil && gasLimit != nil && errors.Is(err, gas.ErrOutOfGas) && !cm.gas.Exhausted() {
		// Only the callee's cap ran out; the caller keeps running.
		return kernel.InvocationResult{ExitCode: abi.SysErrOutOfGas}, nil
	}
	return res, err
}

func (cm *callManager[K]) Upgrade(ctx context.Context, actor abi.ActorID, code cid.Cid, params *kernel.Block) (kernel.InvocationResult, error) {
	inv, ok := cm.m.invoker(code)
	if !ok {
		return kernel.InvocationResult{}, kernel.Syscallf(abi.ErrNotFound, "no actor code %s", code)
	}
	return cm.transact(func() (kernel.InvocationResult, error) {
		act, err := cm.state.GetActor(actor)
		if err != nil {
			return kernel.InvocationResult{}, kernel.NewFatalError("state tree read", err)
		}
		if act == nil {
			return kernel.InvocationResult{}, kernel.Syscallf(abi.ErrNotFound, "actor %d not found", actor)
		}
		act.Code = code
		if err := cm.state.SetActor(actor, act); err != nil {
			return kernel.InvocationResult{}, kernel.NewFatalError("state tree write", err)
		}
		return cm.call(ctx, inv, actor, actor, MethodUpgrade, params, new(big.Int), false)
	})
}

// transact runs fn in a state transaction. Anything but a successful exit
// reverts the state and events fn produced.
func (cm *callManager[K]) transact(fn func() (kernel.InvocationResult, error)) (kernel.InvocationResult, error) {
	cm.state.Begin()
	mark := len(cm.events)
	res, err := fn()
	if err == nil && res.ExitCode.IsSuccess() {
		if cerr := cm.state.Commit(); cerr != nil {
			return kernel.InvocationResult{}, kernel.NewFatalError("state commit", cerr)
		}
		return res, nil
	}
	if rerr := cm.state.Revert(); rerr != nil {
		return kernel.InvocationResult{}, kernel.NewFatalError("state revert", rerr)
	}
	cm.events = cm.events[:mark]
	return res, err
}

func (cm *callManager[K]) send(ctx context.Context, from abi.ActorID, to abi.Address, method abi.MethodNum, params *kernel.Block, value *big.Int, readOnly bool) (kernel.InvocationResult, error) {
	timer, err := cm.charge(gas.OnMethodInvocation, gas.Vars{})
	if err != nil {
		return kernel.InvocationResult{}, err
	}
	timer.Stop()

	toID, ok, err := cm.state.LookupID(to)
	if err != nil {
		return kernel.InvocationResult{}, kernel.NewFatalError("address lookup", err)
	}
	if !ok {
		return kernel.InvocationResult{ExitCode: abi.SysErrInvalidReceiver}, nil
	}
	toAct, err := cm.state.GetActor(toID)
	if err != nil {
		return kernel.InvocationResult{}, kernel.NewFatalError("state tree read", err)
	}
	if toAct == nil {
		return kernel.InvocationResult{ExitCode: abi.SysErrInvalidReceiver}, nil
	}

	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() > 0 {
		code, err := cm.transfer(from, toID, value)
		if err != nil || !code.IsSuccess() {
			return kernel.InvocationResult{ExitCode: code}, err
		}
	}
	if method == abi.MethodSend {
		return kernel.InvocationResult{ExitCode: abi.ExitOK}, nil
	}

	inv, ok := cm.m.invoker(toAct.Code)
	if !ok {
		return kernel.InvocationResult{ExitCode: abi.SysErrInvalidReceiver}, nil
	}
	return cm.call(ctx, inv, from, toID, method, params, value, readOnly)
}

func (cm *callManager[K]) transfer(from, to abi.ActorID, value *big.Int) (abi.ExitCode, error) {
	timer, err := cm.charge(gas.OnValueTransfer, gas.Vars{})
	if err != nil {
		return 0, err
	}
	defer timer.Stop()

	if from == to {
		return abi.ExitOK, nil
	}
	fromAct, err := cm.state.GetActor(from)
	if err != nil {
		return 0, kernel.NewFatalError("state tree read", err)
	}
	if fromAct == nil {
		return abi.SysErrSenderInvalid, nil
	}
	if fromAct.Balance.Cmp(value) < 0 {
		return abi.SysErrInsufficientFunds, nil
	}
	toAct, err := cm.state.GetActor(to)
	if err != nil {
		return 0, kernel.NewFatalError("state tree read", err)
	}
	fromAct.Balance.Sub(fromAct.Balance, value)
	toAct.Balance.Add(toAct.Balance, value)
	if err := cm.state.SetActor(from, fromAct); err != nil {
		return 0, kernel.NewFatalError("state tree write", err)
	}
	if err := cm.state.SetActor(to, toAct); err != nil {
		return 0, kernel.NewFatalError("state tree write", err)
	}
	return abi.ExitOK, nil
}

func (cm *callManager[K]) call(ctx context.Context, inv Invoker[K], from, to abi.ActorID, method abi.MethodNum, params *kernel.Block, value *big.Int, readOnly bool) (kernel.InvocationResult, error) {
	if err := ctx.Err(); err != nil {
		return kernel.InvocationResult{}, kernel.NewFatalError("message canceled", err)
	}
	k := cm.m.factory(kernel.Invocation{
		Manager:  cm,
		Blocks:   kernel.NewBlockRegistry(),
		Caller:   from,
		Receiver: to,
		Method:   method,
		Value:    value,
		ReadOnly: readOnly,
	})

	cm.depth++
	ret, err := inv.Invoke(ctx, k, method, params)
	cm.depth--
	var abort *kernel.AbortError
	if errors.As(err, &abort) {
		return kernel.InvocationResult{ExitCode: abort.Code, Message: abort.Message}, nil
	}
	if err != nil {
		return kernel.InvocationResult{}, err
	}

	code := ret.ExitCode
	if code.IsSystemError() {
		code = abi.SysErrIllegalExitCode
	}
	res := kernel.InvocationResult{ExitCode: code, Message: ret.Message}
	if len(ret.Data) > 0 {
		res.Return = &kernel.Block{Codec: kernel.CodecDAGCBOR, Data: ret.Data}
	}
	return res, nil
}

func (cm *callManager[K]) charge(name string, vars gas.Vars) (*gas.Timer, error) {
	amount, err := cm.m.cfg.Prices.Price(name, vars)
	if err != nil {
		return nil, kernel.NewFatalError(fmt.Sprintf("pricing %s", name), err)
	}
	return cm.gas.Charge(name, amount)
}
