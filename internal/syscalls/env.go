package syscalls

import (
	"context"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/Prajjawalk/ipc/internal/kernel"
)

// maxDebugMessage bounds debug log lines read from the guest.
const maxDebugMessage = 16 << 10

// log(msg_ptr, msg_len)
func debugLog[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	if !c.Kernel.DebugEnabled() {
		return nil
	}
	n := U32(args[1])
	if n > maxDebugMessage {
		n = maxDebugMessage
	}
	msg, err := c.Read(U32(args[0]), n)
	if err != nil {
		return err
	}
	c.Kernel.Log(string(msg))
	return nil
}

// enabled(ret) -> ret {enabled u32}
func debugEnabled[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	var enabled uint32
	if c.Kernel.DebugEnabled() {
		enabled = 1
	}
	return c.WriteUint32(U32(args[0]), enabled)
}

// store_artifact(name_ptr, name_len, data_ptr, data_len)
func storeArtifact[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	name, err := c.Read(U32(args[0]), U32(args[1]))
	if err != nil {
		return err
	}
	data, err := c.Read(U32(args[2]), U32(args[3]))
	if err != nil {
		return err
	}
	return c.Kernel.StoreArtifact(string(name), data)
}

// emit_event(evt_ptr, evt_len) where the event is CBOR-encoded
func emitEvent[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	raw, err := c.Read(U32(args[0]), U32(args[1]))
	if err != nil {
		return err
	}
	var evt kernel.ActorEvent
	if err := abi.Unmarshal(raw, &evt); err != nil {
		return kernel.WrapSyscallError(abi.ErrSerialization, "decoding event", err)
	}
	return c.Kernel.EmitEvent(evt)
}

// message_context(ret) -> ret {origin u64, nonce u64, caller u64, receiver u64,
// method u64, value u128, gas_premium u128, flags u64}
func messageContext[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	msg := c.Kernel.MsgContext()
	value, err := abi.EncodeTokenAmount(msg.ValueReceived)
	if err != nil {
		return kernel.NewFatalError("encoding value", err)
	}
	premium, err := abi.EncodeTokenAmount(msg.GasPremium)
	if err != nil {
		return kernel.NewFatalError("encoding gas premium", err)
	}
	var flags uint64
	if msg.ReadOnly {
		flags |= uint64(kernel.SendReadOnly)
	}
	out := le(nil).
		u64(uint64(msg.Origin)).
		u64(msg.Nonce).
		u64(uint64(msg.Caller)).
		u64(uint64(msg.Receiver)).
		u64(uint64(msg.Method)).
		raw(value[:]).
		raw(premium[:]).
		u64(flags)
	return c.Write(U32(args[0]), out)
}

// context(ret) -> ret {epoch i64, timestamp u64, chain_id u64, base_fee u128, network_version u32}
func networkContext[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	nc := c.Kernel.NetworkContext()
	baseFee, err := abi.EncodeTokenAmount(nc.BaseFee)
	if err != nil {
		return kernel.NewFatalError("encoding base fee", err)
	}
	out := le(nil).
		u64(uint64(nc.Epoch)). //nolint:gosec // two's complement on the wire
		u64(nc.Timestamp).
		u64(nc.ChainID).
		raw(baseFee[:]).
		u32(nc.NetworkVersion)
	return c.Write(U32(args[0]), out)
}

// tipset_cid(ret, epoch, buf_ptr, buf_len) -> ret {len u32}
func tipsetCID[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	tipset, err := c.Kernel.TipsetCID(abi.ChainEpoch(args[1])) //nolint:gosec // two's complement on the wire
	if err != nil {
		return err
	}
	return writeCid(c, U32(args[0]), U32(args[2]), U32(args[3]), tipset)
}

// get_chain_randomness(ret, round) -> ret {[32]byte}
func chainRandomness[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	r, err := c.Kernel.GetRandomnessFromTickets(abi.ChainEpoch(args[1])) //nolint:gosec // two's complement on the wire
	if err != nil {
		return err
	}
	return c.Write(U32(args[0]), r[:])
}

// get_beacon_randomness(ret, round) -> ret {[32]byte}
func beaconRandomness[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	r, err := c.Kernel.GetRandomnessFromBeacon(abi.ChainEpoch(args[1])) //nolint:gosec // two's complement on the wire
	if err != nil {
		return err
	}
	return c.Write(U32(args[0]), r[:])
}

// charge(name_ptr, name_len, amount)
func gasCharge[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	name, err := c.Read(U32(args[0]), U32(args[1]))
	if err != nil {
		return err
	}
	amount := int64(args[2]) //nolint:gosec // two's complement on the wire
	if amount < 0 {
		return kernel.NewSyscallError(abi.ErrIllegalArgument, "negative gas charge")
	}
	timer, err := c.Kernel.ChargeGas("actor:"+string(name), gas.Gas(amount))
	timer.Stop()
	return err
}

// available(ret) -> ret {gas u64}
func gasAvailable[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	return c.WriteUint64(U32(args[0]), uint64(c.Kernel.GasAvailable())) //nolint:gosec // never negative
}
