package kernel

import (
	"github.com/Prajjawalk/ipc/abi"
)

const (
	// MaxBlocks bounds the number of open blocks per invocation.
	MaxBlocks = 1024
	// MaxBlockSize bounds the size of a single block.
	MaxBlockSize = 1 << 20
)

// BlockRegistry holds the blocks an invocation has opened or created.
// Handles are 1-based indexes; NoDataBlockID is never issued.
type BlockRegistry struct {
	blocks []Block
}

// NewBlockRegistry creates an empty registry.
func NewBlockRegistry() *BlockRegistry {
	return &BlockRegistry{}
}

// Put stores a block and returns its handle.
func (r *BlockRegistry) Put(b Block) (BlockID, error) {
	if len(r.blocks) >= MaxBlocks {
		return 0, Syscallf(abi.ErrLimitExceeded, "too many blocks: %d", len(r.blocks))
	}
	if len(b.Data) > MaxBlockSize {
		return 0, Syscallf(abi.ErrLimitExceeded, "block too large: %d bytes", len(b.Data))
	}
	r.blocks = append(r.blocks, b)
	return BlockID(len(r.blocks)), nil //nolint:gosec // bounded by MaxBlocks
}

// Get returns the block for a handle.
func (r *BlockRegistry) Get(id BlockID) (Block, error) {
	if id == NoDataBlockID || int(id) > len(r.blocks) {
		return Block{}, Syscallf(abi.ErrInvalidHandle, "invalid block handle %d", id)
	}
	return r.blocks[id-1], nil
}

// Stat returns the codec and size of a block.
func (r *BlockRegistry) Stat(id BlockID) (BlockStat, error) {
	b, err := r.Get(id)
	if err != nil {
		return BlockStat{}, err
	}
	return BlockStat{Codec: b.Codec, Size: uint32(len(b.Data))}, nil //nolint:gosec // bounded by MaxBlockSize
}

// Len returns the number of registered blocks.
func (r *BlockRegistry) Len() int { return len(r.blocks) }
