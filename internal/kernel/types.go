package kernel

import (
	"math/big"

	"github.com/Prajjawalk/ipc/abi"
)

// IPLD codecs a block may carry.
const (
	CodecCBOR    uint64 = 0x51
	CodecIPLDRaw uint64 = 0x55
	CodecDAGCBOR uint64 = 0x71
)

// BlockID is a handle into a kernel's BlockRegistry. Zero means "no block".
type BlockID = uint32

// NoDataBlockID is the handle passed when a call carries no parameters.
const NoDataBlockID BlockID = 0

// Block is a codec-tagged byte payload.
type Block struct {
	Codec uint64
	Data  []byte
}

// BlockStat describes a block without copying it.
type BlockStat struct {
	Codec uint64
	Size  uint32
}

// MessageContext describes the invocation being executed.
type MessageContext struct {
	Origin        abi.ActorID
	Nonce         uint64
	Caller        abi.ActorID
	Receiver      abi.ActorID
	Method        abi.MethodNum
	ValueReceived *big.Int
	GasPremium    *big.Int
	ReadOnly      bool
}

// NetworkContext describes the chain the message executes on.
type NetworkContext struct {
	Epoch          abi.ChainEpoch
	Timestamp      uint64
	ChainID        uint64
	BaseFee        *big.Int
	NetworkVersion uint32
}

// SendFlags modify a nested send.
type SendFlags uint64

// SendReadOnly forbids state mutation in the callee and its descendants.
const SendReadOnly SendFlags = 1

// CallResult is the outcome of a nested send as seen by the calling actor.
type CallResult struct {
	Block    BlockID
	Stat     BlockStat
	ExitCode abi.ExitCode
}

// InvocationResult is what the call manager returns for a nested send.
type InvocationResult struct {
	Return   *Block
	ExitCode abi.ExitCode
	// Message is the receiver's explanation of a non-zero exit code.
	Message string
}

// SignatureType selects the signature scheme for VerifySignature.
type SignatureType uint8

const (
	SigTypeSecp256k1 SignatureType = 1
	SigTypeBLS       SignatureType = 2
	SigTypeDelegated SignatureType = 3
)

// Event limits.
const (
	MaxEventEntries    = 255
	MaxEventKeyLength  = 31
	MaxEventValueBytes = 8 << 10
)

// EventEntry is a single indexed key/value pair of an actor event.
type EventEntry struct {
	_     struct{} `cbor:",toarray"`
	Flags uint64
	Key   string
	Codec uint64
	Value []byte
}

// ActorEvent is what an actor emits.
type ActorEvent struct {
	_       struct{} `cbor:",toarray"`
	Entries []EventEntry
}

// StampedEvent is an event attributed to its emitter.
type StampedEvent struct {
	Emitter abi.ActorID
	Event   ActorEvent
}
