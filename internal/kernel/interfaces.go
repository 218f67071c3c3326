// Package kernel defines the capability surface an actor reaches through
// syscalls and the default implementation of it.
package kernel

import (
	"context"
	"math/big"
	"reflect"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/ipfs/go-cid"
)

// Core is the part of a kernel every syscall relies on.
type Core interface {
	ChargeGas(name string, amount gas.Gas) (*gas.Timer, error)
	GasAvailable() gas.Gas
	Price(name string, vars gas.Vars) (gas.Gas, error)
}

// IpldBlockOps manages the blocks an actor reads and writes.
type IpldBlockOps interface {
	BlockOpen(c cid.Cid) (BlockID, BlockStat, error)
	BlockCreate(codec uint64, data []byte) (BlockID, error)
	BlockLink(id BlockID, hashCode uint64, hashLen uint32) (cid.Cid, error)
	// BlockRead copies from offset into buf and returns the number of bytes
	// left past the end of buf; negative when buf extends past the block.
	BlockRead(id BlockID, offset uint32, buf []byte) (int32, error)
	BlockStat(id BlockID) (BlockStat, error)
}

// ActorOps reads and creates actors.
type ActorOps interface {
	ResolveAddress(addr abi.Address) (abi.ActorID, error)
	LookupDelegatedAddress(id abi.ActorID) (abi.Address, bool, error)
	GetActorCodeCID(id abi.ActorID) (cid.Cid, error)
	NextActorAddress() (abi.Address, error)
	CreateActor(code cid.Cid, id abi.ActorID, delegated abi.Address) error
	GetBuiltinActorType(code cid.Cid) (uint32, error)
	GetCodeCIDForType(typ uint32) (cid.Cid, error)
	BalanceOf(id abi.ActorID) (*big.Int, error)
}

// CryptoOps verifies signatures and computes hashes.
type CryptoOps interface {
	VerifySignature(sigType SignatureType, signature []byte, signer abi.Address, plaintext []byte) (bool, error)
	RecoverSecpPublicKey(hash [32]byte, signature [65]byte) ([65]byte, error)
	Hash(code uint64, data []byte) ([]byte, error)
}

// DebugOps exposes debugging facilities.
type DebugOps interface {
	Log(msg string)
	DebugEnabled() bool
	StoreArtifact(name string, data []byte) error
}

// EventOps records actor events.
type EventOps interface {
	EmitEvent(evt ActorEvent) error
}

// MessageOps describes the current invocation.
type MessageOps interface {
	MsgContext() MessageContext
}

// NetworkOps describes the chain.
type NetworkOps interface {
	NetworkContext() NetworkContext
	TipsetCID(epoch abi.ChainEpoch) (cid.Cid, error)
}

// RandomnessOps draws committed randomness.
type RandomnessOps interface {
	GetRandomnessFromTickets(round abi.ChainEpoch) ([32]byte, error)
	GetRandomnessFromBeacon(round abi.ChainEpoch) ([32]byte, error)
}

// SelfOps reads and updates the executing actor.
type SelfOps interface {
	Root() (cid.Cid, error)
	SetRoot(root cid.Cid) error
	CurrentBalance() (*big.Int, error)
	SelfDestruct(burnUnspent bool) error
}

// SendOps sends messages to other actors.
type SendOps interface {
	Send(ctx context.Context, recipient abi.Address, method abi.MethodNum, params BlockID, value *big.Int, gasLimit *gas.Gas, flags SendFlags) (CallResult, error)
}

// UpgradeOps replaces the executing actor's code.
type UpgradeOps interface {
	UpgradeActor(ctx context.Context, newCode cid.Cid, params BlockID) (CallResult, error)
}

// Kernel is the full capability surface.
type Kernel interface {
	Core
	ActorOps
	CryptoOps
	DebugOps
	EventOps
	IpldBlockOps
	MessageOps
	NetworkOps
	RandomnessOps
	SelfOps
	SendOps
	UpgradeOps
}

// Interfaces lists the base capability interfaces a kernel must provide.
func Interfaces() []reflect.Type {
	return []reflect.Type{
		reflect.TypeOf((*Core)(nil)).Elem(),
		reflect.TypeOf((*ActorOps)(nil)).Elem(),
		reflect.TypeOf((*CryptoOps)(nil)).Elem(),
		reflect.TypeOf((*DebugOps)(nil)).Elem(),
		reflect.TypeOf((*EventOps)(nil)).Elem(),
		reflect.TypeOf((*IpldBlockOps)(nil)).Elem(),
		reflect.TypeOf((*MessageOps)(nil)).Elem(),
		reflect.TypeOf((*NetworkOps)(nil)).Elem(),
		reflect.TypeOf((*RandomnessOps)(nil)).Elem(),
		reflect.TypeOf((*SelfOps)(nil)).Elem(),
		reflect.TypeOf((*SendOps)(nil)).Elem(),
		reflect.TypeOf((*UpgradeOps)(nil)).Elem(),
	}
}

// Factory builds the kernel for one invocation. The call manager uses it for
// every nested send so all frames of a message run the same kernel type.
type Factory[K Kernel] func(inv Invocation) K

// Invocation carries what a kernel needs to serve one actor call.
type Invocation struct {
	Manager  CallManager
	Blocks   *BlockRegistry
	Caller   abi.ActorID
	Receiver abi.ActorID
	Method   abi.MethodNum
	Value    *big.Int
	ReadOnly bool
}
