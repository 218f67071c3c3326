package kernel

import (
	"errors"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

const (
	blake2b256     = multihash.BLAKE2B_MIN + 31
	blake2b256Size = 32
)

func allowedCodec(codec uint64) bool {
	switch codec {
	case CodecDAGCBOR, CodecCBOR, CodecIPLDRaw:
		return true
	}
	return false
}

// BlockOpen loads a block from the blockstore into the registry.
func (k *DefaultKernel) BlockOpen(c cid.Cid) (BlockID, BlockStat, error) {
	if !c.Defined() {
		return 0, BlockStat{}, NewSyscallError(abi.ErrIllegalCid, "undefined cid")
	}
	if !allowedCodec(c.Type()) {
		return 0, BlockStat{}, Syscallf(abi.ErrIllegalCodec, "codec %#x not allowed", c.Type())
	}

	data, err := k.mgr.Blockstore().Get(c)
	if errors.Is(err, ErrBlockNotFound) {
		return 0, BlockStat{}, Syscallf(abi.ErrNotFound, "block %s not found", c)
	}
	if err != nil {
		return 0, BlockStat{}, NewFatalError("blockstore read", err)
	}

	timer, err := k.charge(gas.OnBlockOpen, gas.Vars{Bytes: len(data)})
	if err != nil {
		return 0, BlockStat{}, err
	}
	defer timer.Stop()

	block := Block{Codec: c.Type(), Data: data}
	id, err := k.blocks.Put(block)
	if err != nil {
		return 0, BlockStat{}, err
	}
	stat, _ := k.blocks.Stat(id)
	return id, stat, nil
}

// BlockCreate registers a new block.
func (k *DefaultKernel) BlockCreate(codec uint64, data []byte) (BlockID, error) {
	if !allowedCodec(codec) {
		return 0, Syscallf(abi.ErrIllegalCodec, "codec %#x not allowed", codec)
	}
	timer, err := k.charge(gas.OnBlockCreate, gas.Vars{Bytes: len(data)})
	if err != nil {
		return 0, err
	}
	defer timer.Stop()

	return k.blocks.Put(Block{Codec: codec, Data: append([]byte(nil), data...)})
}

// BlockLink hashes a block, writes it to the blockstore and returns its CID.
func (k *DefaultKernel) BlockLink(id BlockID, hashCode uint64, hashLen uint32) (cid.Cid, error) {
	if hashCode != blake2b256 || hashLen != blake2b256Size {
		return cid.Undef, Syscallf(abi.ErrIllegalArgument, "unsupported hash %#x/%d", hashCode, hashLen)
	}
	block, err := k.blocks.Get(id)
	if err != nil {
		return cid.Undef, err
	}

	timer, err := k.charge(gas.OnBlockLink, gas.Vars{Bytes: len(block.Data)})
	if err != nil {
		return cid.Undef, err
	}
	defer timer.Stop()

	mh, err := multihash.Sum(block.Data, hashCode, int(hashLen))
	if err != nil {
		return cid.Undef, NewFatalError("hashing block", err)
	}
	c := cid.NewCidV1(block.Codec, mh)
	if err := k.mgr.Blockstore().Put(c, block.Data); err != nil {
		return cid.Undef, NewFatalError("blockstore write", err)
	}
	return c, nil
}

// BlockRead copies part of a block into buf.
func (k *DefaultKernel) BlockRead(id BlockID, offset uint32, buf []byte) (int32, error) {
	block, err := k.blocks.Get(id)
	if err != nil {
		return 0, err
	}
	timer, err := k.charge(gas.OnBlockRead, gas.Vars{Bytes: len(buf)})
	if err != nil {
		return 0, err
	}
	defer timer.Stop()

	size := len(block.Data)
	if int(offset) > size {
		return 0, Syscallf(abi.ErrIllegalArgument, "offset %d past block end %d", offset, size)
	}
	copy(buf, block.Data[offset:])
	return int32(size - int(offset) - len(buf)), nil //nolint:gosec // block size bounded by MaxBlockSize
}

// BlockStat describes a registered block.
func (k *DefaultKernel) BlockStat(id BlockID) (BlockStat, error) {
	timer, err := k.charge(gas.OnBlockStat, gas.Vars{})
	if err != nil {
		return BlockStat{}, err
	}
	defer timer.Stop()
	return k.blocks.Stat(id)
}
