package kernel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/ipfs/go-cid"
)

// Log writes an actor debug message when debugging is enabled.
func (k *DefaultKernel) Log(msg string) {
	dbg := k.mgr.Debug()
	if !dbg.Enabled || dbg.Logger == nil {
		return
	}
	dbg.Logger.Debug("actor log", "actor", k.actorID, "message", msg)
}

// DebugEnabled reports whether debug syscalls have any effect.
func (k *DefaultKernel) DebugEnabled() bool {
	return k.mgr.Debug().Enabled
}

// StoreArtifact writes a named artifact under the debug artifact directory.
// It is a no-op when debugging is disabled.
func (k *DefaultKernel) StoreArtifact(name string, data []byte) error {
	dbg := k.mgr.Debug()
	if !dbg.Enabled || dbg.ArtifactDir == "" {
		return nil
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return Syscallf(abi.ErrIllegalArgument, "invalid artifact name %q", name)
	}
	timer, err := k.charge(gas.OnDebugArtifact, gas.Vars{Bytes: len(data)})
	if err != nil {
		return err
	}
	defer timer.Stop()

	dir := filepath.Join(dbg.ArtifactDir, fmt.Sprintf("%d", k.actorID))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		if dbg.Logger != nil {
			dbg.Logger.Warn("failed to create artifact directory", "dir", dir, "error", err)
		}
		return nil
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil && dbg.Logger != nil {
		dbg.Logger.Warn("failed to store artifact", "name", name, "error", err)
	}
	return nil
}

// EmitEvent validates and records an actor event.
func (k *DefaultKernel) EmitEvent(evt ActorEvent) error {
	if err := k.requireWritable("emit event"); err != nil {
		return err
	}
	if len(evt.Entries) > MaxEventEntries {
		return Syscallf(abi.ErrLimitExceeded, "too many event entries: %d", len(evt.Entries))
	}
	total := 0
	for i, e := range evt.Entries {
		if len(e.Key) > MaxEventKeyLength {
			return Syscallf(abi.ErrLimitExceeded, "event key %d too long: %d", i, len(e.Key))
		}
		if e.Codec != CodecIPLDRaw {
			return Syscallf(abi.ErrIllegalCodec, "event entry %d has codec %#x", i, e.Codec)
		}
		total += len(e.Key) + len(e.Value)
	}
	if total > MaxEventValueBytes {
		return Syscallf(abi.ErrLimitExceeded, "event too large: %d bytes", total)
	}

	timer, err := k.charge(gas.OnEventEmit, gas.Vars{Bytes: total})
	if err != nil {
		return err
	}
	defer timer.Stop()

	k.mgr.AppendEvent(StampedEvent{Emitter: k.actorID, Event: evt})
	return nil
}

// NetworkContext describes the chain.
func (k *DefaultKernel) NetworkContext() NetworkContext {
	return k.mgr.Network()
}

// TipsetCID returns the CID of the tipset at a past epoch.
func (k *DefaultKernel) TipsetCID(epoch abi.ChainEpoch) (cid.Cid, error) {
	current := k.mgr.Network().Epoch
	if epoch < 0 || epoch >= current {
		return cid.Undef, Syscallf(abi.ErrIllegalArgument, "epoch %d out of range (current %d)", epoch, current)
	}
	timer, err := k.charge(gas.OnTipsetCID, gas.Vars{})
	if err != nil {
		return cid.Undef, err
	}
	defer timer.Stop()

	c, err := k.mgr.Externs().TipsetCID(epoch)
	if err != nil {
		return cid.Undef, NewFatalError("tipset lookup", err)
	}
	return c, nil
}

// GetRandomnessFromTickets draws ticket randomness for a past round.
func (k *DefaultKernel) GetRandomnessFromTickets(round abi.ChainEpoch) ([32]byte, error) {
	return k.randomness(round, k.mgr.Externs().GetChainRandomness)
}

// GetRandomnessFromBeacon draws beacon randomness for a past round.
func (k *DefaultKernel) GetRandomnessFromBeacon(round abi.ChainEpoch) ([32]byte, error) {
	return k.randomness(round, k.mgr.Externs().GetBeaconRandomness)
}

func (k *DefaultKernel) randomness(round abi.ChainEpoch, draw func(abi.ChainEpoch) ([32]byte, error)) ([32]byte, error) {
	if round < 0 || round > k.mgr.Network().Epoch {
		return [32]byte{}, Syscallf(abi.ErrIllegalArgument, "randomness round %d out of range", round)
	}
	timer, err := k.charge(gas.OnRandomness, gas.Vars{})
	if err != nil {
		return [32]byte{}, err
	}
	defer timer.Stop()

	r, err := draw(round)
	if err != nil {
		return [32]byte{}, NewFatalError("randomness", err)
	}
	return r, nil
}
