package kernel

import (
	"math/big"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
)

// DefaultKernel implements every base capability over a CallManager.
type DefaultKernel struct {
	mgr      CallManager
	blocks   *BlockRegistry
	caller   abi.ActorID
	actorID  abi.ActorID
	method   abi.MethodNum
	value    *big.Int
	readOnly bool
}

var _ Kernel = (*DefaultKernel)(nil)

// NewDefaultKernel creates the kernel for one invocation.
func NewDefaultKernel(inv Invocation) *DefaultKernel {
	value := inv.Value
	if value == nil {
		value = new(big.Int)
	}
	blocks := inv.Blocks
	if blocks == nil {
		blocks = NewBlockRegistry()
	}
	return &DefaultKernel{
		mgr:      inv.Manager,
		blocks:   blocks,
		caller:   inv.Caller,
		actorID:  inv.Receiver,
		method:   inv.Method,
		value:    value,
		readOnly: inv.ReadOnly,
	}
}

// DefaultFactory is the Factory for DefaultKernel.
func DefaultFactory(inv Invocation) *DefaultKernel {
	return NewDefaultKernel(inv)
}

// ChargeGas charges amount against the message.
func (k *DefaultKernel) ChargeGas(name string, amount gas.Gas) (*gas.Timer, error) {
	return k.mgr.Gas().Charge(name, amount)
}

// GasAvailable returns the gas left to this invocation.
func (k *DefaultKernel) GasAvailable() gas.Gas {
	return k.mgr.Gas().Available()
}

// Price evaluates a charge from the machine's price list.
func (k *DefaultKernel) Price(name string, vars gas.Vars) (gas.Gas, error) {
	return k.mgr.Prices().Price(name, vars)
}

// charge prices and charges name in one step.
func (k *DefaultKernel) charge(name string, vars gas.Vars) (*gas.Timer, error) {
	amount, err := k.Price(name, vars)
	if err != nil {
		return nil, NewFatalError("pricing "+name, err)
	}
	return k.ChargeGas(name, amount)
}

// MsgContext describes the current invocation.
func (k *DefaultKernel) MsgContext() MessageContext {
	return MessageContext{
		Origin:        k.mgr.Origin(),
		Nonce:         k.mgr.Nonce(),
		Caller:        k.caller,
		Receiver:      k.actorID,
		Method:        k.method,
		ValueReceived: new(big.Int).Set(k.value),
		GasPremium:    k.mgr.GasPremium(),
		ReadOnly:      k.readOnly,
	}
}

func (k *DefaultKernel) requireWritable(op string) error {
	if k.readOnly {
		return Syscallf(abi.ErrReadOnly, "%s not allowed in read-only mode", op)
	}
	return nil
}
