package syscalls

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// MemoryExport is the name under which guests export their linear memory.
const MemoryExport = "memory"

// Observer is told about every completed syscall.
type Observer interface {
	ObserveSyscall(module, name string, errno abi.ErrorNumber, aborted bool, elapsed time.Duration)
}

// Table is an immutable set of linked syscalls. It is safe to share across
// concurrently executing invocations.
type Table[K any] struct {
	entries  map[Key]*Syscall[K]
	order    []Key
	version  *semver.Version
	observer Observer
	logger   *slog.Logger
}

// Lookup returns the syscall linked under (module, name).
func (t *Table[K]) Lookup(module, name string) (*Syscall[K], bool) {
	s, ok := t.entries[Key{Module: module, Name: name}]
	return s, ok
}

// Keys returns the linked keys in link order.
func (t *Table[K]) Keys() []Key {
	return append([]Key(nil), t.order...)
}

// Len returns the number of linked syscalls.
func (t *Table[K]) Len() int { return len(t.order) }

// Version returns the ABI version guests are checked against.
func (t *Table[K]) Version() *semver.Version { return t.version }

// Call runs a syscall for an in-process caller. It returns the errno the
// guest would see, or a non-nil error when the invocation must abort.
func (t *Table[K]) Call(ctx context.Context, c *Context[K], module, name string, args ...uint64) (abi.ErrorNumber, error) {
	s, ok := t.Lookup(module, name)
	if !ok {
		return 0, kernel.NewFatalError(fmt.Sprintf("syscall %s::%s is not linked", module, name), nil)
	}
	if len(args) != len(s.Params) {
		return 0, kernel.NewFatalError(fmt.Sprintf("syscall %s takes %d arguments, got %d", s.Key, len(s.Params), len(args)), nil)
	}
	return t.invoke(ctx, s, c, args)
}

func (t *Table[K]) invoke(ctx context.Context, s *Syscall[K], c *Context[K], args []uint64) (abi.ErrorNumber, error) {
	start := time.Now()
	errno, abort := classify(s.fn(ctx, c, args))
	if t.observer != nil {
		t.observer.ObserveSyscall(s.Module, s.Name, errno, abort != nil, time.Since(start))
	}
	if abort != nil {
		t.logger.Debug("syscall aborted invocation", "syscall", s.Key.String(), "error", abort)
	}
	return errno, abort
}

// Instantiate registers one host module per linked module name on r. The
// kernel for each call is taken from the context via WithKernel.
func (t *Table[K]) Instantiate(ctx context.Context, r wazero.Runtime) error {
	builders := make(map[string]wazero.HostModuleBuilder)
	var modules []string
	for _, key := range t.order {
		b, ok := builders[key.Module]
		if !ok {
			b = r.NewHostModuleBuilder(key.Module)
			builders[key.Module] = b
			modules = append(modules, key.Module)
		}
		s := t.entries[key]
		b.NewFunctionBuilder().
			WithGoModuleFunction(t.hostFunc(s), s.Params, []api.ValueType{api.ValueTypeI32}).
			WithParameterNames(paramNames(len(s.Params))...).
			Export(key.Name)
	}

	for _, m := range modules {
		if _, err := builders[m].Instantiate(ctx); err != nil {
			return fmt.Errorf("failed to instantiate syscall module %s: %w", m, err)
		}
	}
	return nil
}

func (t *Table[K]) hostFunc(s *Syscall[K]) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		k, ok := KernelFrom[K](ctx)
		if !ok {
			err := kernel.NewFatalError(fmt.Sprintf("syscall %s called without a kernel", s.Key), nil)
			recordAbort(ctx, err)
			panic(err)
		}
		c := &Context[K]{Kernel: k}
		if mem := mod.ExportedMemory(MemoryExport); mem != nil {
			c.Memory = mem
		}

		args := append([]uint64(nil), stack[:len(s.Params)]...)
		errno, abort := t.invoke(ctx, s, c, args)
		if abort != nil {
			recordAbort(ctx, abort)
			// wazero converts the panic into an error returned from the guest call.
			panic(abort)
		}
		stack[0] = uint64(errno)
	}
}

func paramNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("arg%d", i)
	}
	return names
}
