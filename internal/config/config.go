// Package config loads the host configuration (ipc.yaml): machine
// parameters, the wasm runtime, and the recommendation capability.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/Prajjawalk/ipc/internal/kernel"
)

// Config is the host configuration file.
type Config struct {
	Machine  MachineConfig `yaml:"machine"`
	VM       VMConfig      `yaml:"vm"`
	Kernel   KernelConfig  `yaml:"kernel"`
	Metrics  MetricsConfig `yaml:"metrics"`
	LogLevel string        `yaml:"log_level"`
}

// MachineConfig configures message execution.
type MachineConfig struct {
	Network NetworkConfig `yaml:"network"`
	// GasPrices override entries of gas.DefaultFormulas by charge name.
	GasPrices map[string]string `yaml:"gas_prices"`
	// Blockstore is a goleveldb directory. Empty keeps blocks in memory.
	Blockstore string      `yaml:"blockstore"`
	Debug      DebugConfig `yaml:"debug"`
	// RandomnessSeed seeds the deterministic chain randomness.
	RandomnessSeed string `yaml:"randomness_seed"`
	Concurrency    int    `yaml:"concurrency"`
	TraceGas       bool   `yaml:"trace_gas"`
}

// NetworkConfig is the chain context messages execute in.
type NetworkConfig struct {
	BaseFee        string `yaml:"base_fee"`
	Epoch          int64  `yaml:"epoch"`
	Timestamp      uint64 `yaml:"timestamp"`
	ChainID        uint64 `yaml:"chain_id"`
	NetworkVersion uint32 `yaml:"network_version"`
}

// DebugConfig enables the debug syscalls.
type DebugConfig struct {
	ArtifactDir string `yaml:"artifact_dir"`
	Enabled     bool   `yaml:"enabled"`
}

// VMConfig configures the wasm runtime.
type VMConfig struct {
	// MemoryLimitMB: 0 = runtime default, -1 = unlimited.
	MemoryLimitMB int `yaml:"memory_limit_mb"`
}

// KernelConfig configures the recommendation capability.
type KernelConfig struct {
	Payload        PayloadConfig `yaml:"payload"`
	AllowedCallers []uint64      `yaml:"allowed_callers"`
	Timeout        Duration      `yaml:"timeout"`
	// AllowNondeterministic accepts an unpinned remote payload.
	AllowNondeterministic bool `yaml:"allow_nondeterministic"`
}

// Payload kinds.
const (
	PayloadLocal    = "local"
	PayloadEthereum = "ethereum"
)

// PayloadConfig selects and configures the recommendation payload.
type PayloadConfig struct {
	Kind     string `yaml:"kind"`
	Endpoint string `yaml:"endpoint"`
	Contract string `yaml:"contract"`
	// Commitments pin request digests to response digests (0x-prefixed hex).
	// A non-empty set wraps the payload so only committed responses are accepted.
	Commitments map[string]string `yaml:"commitments"`
	Retry       RetryConfig       `yaml:"retry"`
	CallTimeout Duration          `yaml:"call_timeout"`
	CacheSize   int               `yaml:"cache_size"`
}

// RetryConfig bounds retries of the remote payload.
type RetryConfig struct {
	Strategy     string   `yaml:"strategy"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	Attempts     int      `yaml:"attempts"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Listen    string `yaml:"listen"`
	Enabled   bool   `yaml:"enabled"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultConfig returns a Config with safe defaults for all fields.
// This is used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Machine: MachineConfig{
			Network:        NetworkConfig{BaseFee: "100", NetworkVersion: 21},
			GasPrices:      map[string]string{},
			RandomnessSeed: "ipc",
		},
		Kernel: KernelConfig{
			Payload: PayloadConfig{
				Kind:        PayloadLocal,
				Commitments: map[string]string{},
				Retry: RetryConfig{
					Strategy:     "exponential",
					Attempts:     3,
					InitialDelay: Duration(100 * time.Millisecond),
					MaxDelay:     Duration(2 * time.Second),
				},
				CallTimeout: Duration(10 * time.Second),
				CacheSize:   128,
			},
			AllowedCallers: []uint64{uint64(abi.SystemActorID)},
			Timeout:        Duration(30 * time.Second),
		},
		Metrics:  MetricsConfig{Namespace: "ipc", Listen: "127.0.0.1:9464"},
		LogLevel: "info",
	}
}

// PriceList compiles the gas price overrides.
func (c *Config) PriceList() (*gas.PriceList, error) {
	return gas.NewPriceList(c.Machine.GasPrices)
}

// Network returns the network context for the machine.
func (c *Config) Network() (kernel.NetworkContext, error) {
	n := c.Machine.Network
	fee, ok := new(big.Int).SetString(strings.TrimSpace(n.BaseFee), 10)
	if !ok {
		return kernel.NetworkContext{}, fmt.Errorf("invalid base fee %q", n.BaseFee)
	}
	return kernel.NetworkContext{
		Epoch:          abi.ChainEpoch(n.Epoch),
		Timestamp:      n.Timestamp,
		ChainID:        n.ChainID,
		BaseFee:        fee,
		NetworkVersion: n.NetworkVersion,
	}, nil
}

// AllowedCallerIDs returns the allow-list as actor ids.
func (k *KernelConfig) AllowedCallerIDs() []abi.ActorID {
	ids := make([]abi.ActorID, len(k.AllowedCallers))
	for i, id := range k.AllowedCallers {
		ids[i] = abi.ActorID(id)
	}
	return ids
}
