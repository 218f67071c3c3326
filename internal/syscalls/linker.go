// Package syscalls binds kernel capabilities to the (module, function)
// names guests import.
package syscalls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"
	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/tetratelabs/wazero/api"
)

// Func implements one syscall. args holds the raw guest arguments in
// declaration order. A *kernel.SyscallError becomes the errno returned to the
// guest; any other error aborts the invocation.
type Func[K any] func(ctx context.Context, c *Context[K], args []uint64) error

// Key names a syscall.
type Key struct {
	Module string
	Name   string
}

func (k Key) String() string {
	return k.Module + "::" + k.Name
}

// Syscall is a linked entry.
type Syscall[K any] struct {
	Key
	Params []api.ValueType
	fn     Func[K]
}

// LinkageConflictError reports a second registration of the same key.
type LinkageConflictError struct {
	Key Key
}

func (e *LinkageConflictError) Error() string {
	return fmt.Sprintf("syscall %s is already linked", e.Key)
}

// Linker collects syscalls before a Table is built. It is not safe for
// concurrent use.
type Linker[K any] struct {
	entries map[Key]*Syscall[K]
	order   []Key
}

// NewLinker creates an empty linker.
func NewLinker[K any]() *Linker[K] {
	return &Linker[K]{entries: make(map[Key]*Syscall[K])}
}

// Link registers fn under (module, name). Every syscall returns a single i32 errno.
func (l *Linker[K]) Link(module, name string, params []api.ValueType, fn Func[K]) error {
	if module == "" || name == "" {
		return fmt.Errorf("syscall module and name must be non-empty (got %q, %q)", module, name)
	}
	if fn == nil {
		return fmt.Errorf("syscall %s::%s has no implementation", module, name)
	}
	key := Key{Module: module, Name: name}
	if _, ok := l.entries[key]; ok {
		return &LinkageConflictError{Key: key}
	}
	l.entries[key] = &Syscall[K]{Key: key, Params: append([]api.ValueType(nil), params...), fn: fn}
	l.order = append(l.order, key)
	return nil
}

// Len returns the number of linked syscalls.
func (l *Linker[K]) Len() int { return len(l.order) }

// TableOption configures a Table.
type TableOption func(*tableOptions)

type tableOptions struct {
	observer Observer
	logger   *slog.Logger
	version  string
}

// WithObserver reports every syscall to o.
func WithObserver(o Observer) TableOption {
	return func(opts *tableOptions) { opts.observer = o }
}

// WithLogger sets the logger used for aborted syscalls.
func WithLogger(l *slog.Logger) TableOption {
	return func(opts *tableOptions) { opts.logger = l }
}

// WithVersion overrides the ABI version the table advertises.
func WithVersion(v string) TableOption {
	return func(opts *tableOptions) { opts.version = v }
}

// Build freezes the linked syscalls into a Table. The linker may not be
// reused for the same table afterwards; later Link calls do not affect it.
func (l *Linker[K]) Build(opts ...TableOption) (*Table[K], error) {
	o := tableOptions{logger: slog.Default(), version: abi.Version}
	for _, opt := range opts {
		opt(&o)
	}
	version, err := semver.NewVersion(o.version)
	if err != nil {
		return nil, fmt.Errorf("invalid syscall ABI version %q: %w", o.version, err)
	}

	entries := make(map[Key]*Syscall[K], len(l.entries))
	for k, v := range l.entries {
		entries[k] = v
	}
	return &Table[K]{
		entries:  entries,
		order:    append([]Key(nil), l.order...),
		version:  version,
		observer: o.observer,
		logger:   o.logger,
	}, nil
}

// classify splits an implementation error into the errno returned to the
// guest and the error that aborts the invocation.
func classify(err error) (abi.ErrorNumber, error) {
	if err == nil {
		return abi.ErrOK, nil
	}
	if errors.Is(err, gas.ErrOutOfGas) {
		return 0, err
	}
	var fatal *kernel.FatalError
	if errors.As(err, &fatal) {
		return 0, err
	}
	if n, ok := kernel.ErrorNumberOf(err); ok {
		return n, nil
	}
	return 0, kernel.NewFatalError("syscall failed", err)
}
