package kernel

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/ipfs/go-cid"
)

// ErrBlockNotFound is returned by a Blockstore for a missing CID.
var ErrBlockNotFound = errors.New("block not found")

// ActorState is an actor's entry in the state tree.
type ActorState struct {
	Code             cid.Cid
	Head             cid.Cid
	Sequence         uint64
	Balance          *big.Int
	DelegatedAddress abi.Address
}

// Clone returns a deep copy.
func (a *ActorState) Clone() *ActorState {
	c := *a
	if a.Balance != nil {
		c.Balance = new(big.Int).Set(a.Balance)
	}
	return &c
}

// StateTree maps actor ids to actor state.
type StateTree interface {
	GetActor(id abi.ActorID) (*ActorState, error)
	SetActor(id abi.ActorID, act *ActorState) error
	DeleteActor(id abi.ActorID) error
	LookupID(addr abi.Address) (abi.ActorID, bool, error)
	RegisterAddress(addr abi.Address) (abi.ActorID, error)
}

// Blockstore stores IPLD blocks by CID.
type Blockstore interface {
	Get(c cid.Cid) ([]byte, error)
	Put(c cid.Cid, data []byte) error
	Has(c cid.Cid) (bool, error)
}

// Externs provides chain data that lives outside the state tree.
type Externs interface {
	GetChainRandomness(round abi.ChainEpoch) ([32]byte, error)
	GetBeaconRandomness(round abi.ChainEpoch) ([32]byte, error)
	TipsetCID(epoch abi.ChainEpoch) (cid.Cid, error)
}

// Builtins maps builtin actor types to their code CIDs.
type Builtins interface {
	TypeOf(code cid.Cid) (uint32, bool)
	CodeOf(typ uint32) (cid.Cid, bool)
}

// DebugSettings controls the debug syscalls.
type DebugSettings struct {
	Logger      *slog.Logger
	ArtifactDir string
	Enabled     bool
}

// CallManager owns the machine-side state of one message. A kernel serves
// one invocation and delegates anything that spans invocations to it.
type CallManager interface {
	Gas() *gas.Tracker
	Prices() *gas.PriceList
	State() StateTree
	Blockstore() Blockstore
	Externs() Externs
	Builtins() Builtins
	Network() NetworkContext
	Debug() DebugSettings

	Origin() abi.ActorID
	Nonce() uint64
	GasPremium() *big.Int

	NextActorAddress() abi.Address
	CreateActor(code cid.Cid, id abi.ActorID, delegated abi.Address) error
	Send(ctx context.Context, from abi.ActorID, to abi.Address, method abi.MethodNum, params *Block, value *big.Int, gasLimit *gas.Gas, readOnly bool) (InvocationResult, error)
	Upgrade(ctx context.Context, actor abi.ActorID, code cid.Cid, params *Block) (InvocationResult, error)
	AppendEvent(evt StampedEvent)
}
