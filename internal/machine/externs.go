package machine

import (
	"encoding/binary"
	"fmt"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/blake2b"
)

// Randomness domain tags.
const (
	tagChain  = "chain"
	tagBeacon = "beacon"
	tagTipset = "tipset"
)

// DeterministicExterns derives randomness and tipset CIDs from a fixed seed.
// Every host configured with the same seed sees the same values.
type DeterministicExterns struct {
	seed []byte
}

var _ kernel.Externs = (*DeterministicExterns)(nil)

// NewDeterministicExterns returns externs derived from seed.
func NewDeterministicExterns(seed []byte) *DeterministicExterns {
	return &DeterministicExterns{seed: append([]byte(nil), seed...)}
}

func (e *DeterministicExterns) derive(tag string, round abi.ChainEpoch) [32]byte {
	buf := make([]byte, 0, len(e.seed)+len(tag)+8)
	buf = append(buf, e.seed...)
	buf = append(buf, tag...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(round)) //nolint:gosec // epochs are validated non-negative by the kernel
	return blake2b.Sum256(buf)
}

func (e *DeterministicExterns) GetChainRandomness(round abi.ChainEpoch) ([32]byte, error) {
	return e.derive(tagChain, round), nil
}

func (e *DeterministicExterns) GetBeaconRandomness(round abi.ChainEpoch) ([32]byte, error) {
	return e.derive(tagBeacon, round), nil
}

func (e *DeterministicExterns) TipsetCID(epoch abi.ChainEpoch) (cid.Cid, error) {
	digest := e.derive(tagTipset, epoch)
	mh, err := multihash.Encode(digest[:], multihash.BLAKE2B_MIN+31)
	if err != nil {
		return cid.Undef, fmt.Errorf("tipset cid: %w", err)
	}
	return cid.NewCidV1(kernel.CodecDAGCBOR, mh), nil
}
