// Package container wires a machine running CustomKernel from configuration.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/actors/customsyscall"
	"github.com/Prajjawalk/ipc/internal/config"
	"github.com/Prajjawalk/ipc/internal/customkernel"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/Prajjawalk/ipc/internal/machine"
	"github.com/Prajjawalk/ipc/internal/metrics"
	"github.com/Prajjawalk/ipc/internal/recommend"
	"github.com/Prajjawalk/ipc/internal/syscalls"
	"github.com/Prajjawalk/ipc/internal/vm"
)

// Container holds the host's dependencies.
type Container struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	ext     *customkernel.Extension
	table   *syscalls.Table[customkernel.CustomKernel]
	machine *machine.Machine[customkernel.CustomKernel]
	runtime *vm.Runtime[customkernel.CustomKernel]
	level   *machine.LevelBlockstore
	payload recommend.Recommender
}

// Options configure the container.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// ActorWasm replaces the native customsyscall actor with a wasm build.
	ActorWasm []byte
}

// New builds the payload, the syscall table, the machine and the wasm
// runtime. The customsyscall actor is registered under its builtin code,
// natively unless opts.ActorWasm is set.
func New(ctx context.Context, opts Options) (*Container, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{cfg: cfg, logger: logger}
	if cfg.Metrics.Enabled {
		c.metrics = metrics.New(cfg.Metrics.Namespace)
	}

	payload, err := cfg.BuildPayload(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build payload: %w", err)
	}
	c.payload = payload
	c.ext, err = customkernel.NewExtension(cfg.KernelOptions(payload, logger))
	if err != nil {
		c.release()
		return nil, err
	}

	tableOpts := []syscalls.TableOption{syscalls.WithLogger(logger)}
	if c.metrics != nil {
		tableOpts = append(tableOpts, syscalls.WithObserver(c.metrics))
	}
	c.table, err = customkernel.NewTable(tableOpts...)
	if err != nil {
		c.release()
		return nil, fmt.Errorf("failed to link syscalls: %w", err)
	}

	mcfg, err := c.machineConfig()
	if err != nil {
		c.release()
		return nil, err
	}

	var store kernel.Blockstore
	if dir := cfg.Machine.Blockstore; dir != "" {
		c.level, err = machine.OpenLevelBlockstore(dir)
		if err != nil {
			c.release()
			return nil, fmt.Errorf("failed to open blockstore: %w", err)
		}
		store = c.level
	}

	c.machine, err = machine.New[customkernel.CustomKernel](mcfg, c.ext.Factory(), nil, store)
	if err != nil {
		c.release()
		return nil, err
	}
	c.runtime, err = vm.NewRuntime[customkernel.CustomKernel](ctx, c.table, vm.Options{
		Logger:        logger,
		Stdout:        os.Stderr,
		Stderr:        os.Stderr,
		MemoryLimitMB: cfg.VM.MemoryLimitMB,
	})
	if err != nil {
		c.release()
		return nil, err
	}

	if opts.ActorWasm != nil {
		err = c.LoadActor(ctx, customsyscall.ActorName, opts.ActorWasm)
	} else {
		err = c.machine.Register(machine.MustCodeCID(customsyscall.ActorName), customkernel.NewNativeActor(c.table))
	}
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return c, nil
}

// InstallActor creates the customsyscall actor at id unless an actor
// already lives there.
func (c *Container) InstallActor(id abi.ActorID) error {
	act, err := c.machine.State().GetActor(id)
	if err != nil {
		return err
	}
	if act != nil {
		return nil
	}
	return c.machine.InstallActor(id, machine.MustCodeCID(customsyscall.ActorName), nil)
}

func (c *Container) machineConfig() (machine.Config, error) {
	prices, err := c.cfg.PriceList()
	if err != nil {
		return machine.Config{}, err
	}
	network, err := c.cfg.Network()
	if err != nil {
		return machine.Config{}, err
	}
	mcfg := machine.Config{
		Network:  network,
		Prices:   prices,
		Externs:  machine.NewDeterministicExterns([]byte(c.cfg.Machine.RandomnessSeed)),
		Builtins: machine.NewBuiltinRegistry(),
		Logger:   c.logger,
		Debug: kernel.DebugSettings{
			Logger:      c.logger,
			ArtifactDir: c.cfg.Machine.Debug.ArtifactDir,
			Enabled:     c.cfg.Machine.Debug.Enabled,
		},
		TraceGas: c.cfg.Machine.TraceGas,
	}
	if c.metrics != nil {
		mcfg.Observer = c.metrics
	}
	return mcfg, nil
}

// LoadActor compiles a wasm actor and registers it under the code CID of
// name.
func (c *Container) LoadActor(ctx context.Context, name string, wasm []byte) error {
	act, err := c.runtime.LoadActor(ctx, name, wasm)
	if err != nil {
		return err
	}
	code, err := machine.CodeCID(name)
	if err != nil {
		return err
	}
	return c.machine.Register(code, act)
}

// Config returns the loaded configuration.
func (c *Container) Config() *config.Config { return c.cfg }

// Logger returns the configured logger.
func (c *Container) Logger() *slog.Logger { return c.logger }

// Machine returns the machine.
func (c *Container) Machine() *machine.Machine[customkernel.CustomKernel] { return c.machine }

// Table returns the linked syscall table.
func (c *Container) Table() *syscalls.Table[customkernel.CustomKernel] { return c.table }

// Extension returns the recommendation capability shared by every kernel.
func (c *Container) Extension() *customkernel.Extension { return c.ext }

// Metrics returns the metrics, or nil when disabled.
func (c *Container) Metrics() *metrics.Metrics { return c.metrics }

// release closes what New opened before the runtime existed.
func (c *Container) release() {
	if c.level != nil {
		if err := c.level.Close(); err != nil {
			c.logger.Warn("failed to close blockstore", "error", err)
		}
	}
	if err := recommend.Close(c.payload); err != nil {
		c.logger.Warn("failed to close payload", "error", err)
	}
}

// Close releases the wasm runtime, the blockstore and the payload.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.runtime != nil {
		errs = append(errs, c.runtime.Close(ctx))
	}
	if c.level != nil {
		errs = append(errs, c.level.Close())
	}
	errs = append(errs, recommend.Close(c.payload))
	return errors.Join(errs...)
}
