// Package vm runs wasm actors under wazero against a syscall table.
package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/Prajjawalk/ipc/internal/syscalls"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// globalCache speeds up compilation across runtimes.
var globalCache = wazero.NewCompilationCache()

// DefaultMemoryLimitMB is the guest memory cap when none is configured.
const DefaultMemoryLimitMB = 256

// Options configure a Runtime.
type Options struct {
	Logger *slog.Logger
	// Stdout and Stderr receive guest output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
	// MemoryLimitMB caps each guest's linear memory. 0 selects
	// DefaultMemoryLimitMB and -1 disables the cap.
	MemoryLimitMB int
}

// Runtime compiles and caches wasm actors. Every actor it loads imports its
// syscalls from the same table.
type Runtime[K kernel.Kernel] struct {
	runtime wazero.Runtime
	table   *syscalls.Table[K]
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer

	mu     sync.RWMutex
	actors map[string]*Actor[K]
}

// NewRuntime creates a wazero runtime with WASI and every syscall module of
// table instantiated.
func NewRuntime[K kernel.Kernel](ctx context.Context, table *syscalls.Table[K], opts Options) (*Runtime[K], error) {
	if table == nil {
		return nil, fmt.Errorf("vm: syscall table is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := opts.MemoryLimitMB
	switch {
	case limit == 0:
		limit = DefaultMemoryLimitMB
	case limit == -1:
		logger.Warn("wasm memory limit disabled")
	case limit > 0:
		if limit < 64 {
			logger.Warn("wasm memory limit very low, actors may fail", "mb", limit)
		}
	default:
		return nil, fmt.Errorf("invalid wasm memory limit: %d (must be >= -1)", limit)
	}

	config := wazero.NewRuntimeConfig().
		WithCompilationCache(globalCache).
		WithCloseOnContextDone(true)
	if limit > 0 {
		// 1 page = 64KiB
		config = config.WithMemoryLimitPages(uint32(limit * 16)) //nolint:gosec // validated above
	}

	r := wazero.NewRuntimeWithConfig(ctx, config)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}
	if err := table.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}

	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Runtime[K]{
		runtime: r,
		table:   table,
		logger:  logger,
		stdout:  stdout,
		stderr:  stderr,
		actors:  make(map[string]*Actor[K]),
	}, nil
}

// LoadActor compiles wasmBytes and checks that the module links against the
// table and declares a compatible ABI version. Loaded actors are cached by name.
func (r *Runtime[K]) LoadActor(ctx context.Context, name string, wasmBytes []byte) (*Actor[K], error) {
	r.mu.RLock()
	if a, ok := r.actors[name]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.actors[name]; ok {
		return a, nil
	}

	compiled, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile actor %s: %w", name, err)
	}
	a := &Actor[K]{
		name:    name,
		module:  compiled,
		runtime: r.runtime,
		logger:  r.logger.With("actor", name),
		stdout:  r.stdout,
		stderr:  r.stderr,
	}
	if err := a.check(ctx, r.table); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	r.actors[name] = a
	r.logger.Debug("loaded wasm actor", "actor", name, "abi", a.constraint)
	return a, nil
}

// Actor returns a loaded actor by name.
func (r *Runtime[K]) Actor(name string) (*Actor[K], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[name]
	return a, ok
}

// Close releases the runtime and every compiled actor.
func (r *Runtime[K]) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}
