package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/Prajjawalk/ipc/internal/machine"
	"github.com/Prajjawalk/ipc/internal/syscalls"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Guest exports.
const (
	ExportInvoke     = "invoke"
	ExportAllocate   = "allocate"
	ExportABIVersion = "abi_version"
	ExportMemory     = syscalls.MemoryExport
	exportInitialize = "_initialize"
)

var _ machine.Invoker[kernel.Kernel] = (*Actor[kernel.Kernel])(nil)

var (
	invokeSig   = []api.ValueType{api.ValueTypeI64, api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeI32}
	allocateSig = []api.ValueType{api.ValueTypeI32}
	i32         = []api.ValueType{api.ValueTypeI32}
	i64         = []api.ValueType{api.ValueTypeI64}
)

// Actor is a compiled wasm actor. Every invocation runs in a fresh instance.
type Actor[K kernel.Kernel] struct {
	name       string
	module     wazero.CompiledModule
	runtime    wazero.Runtime
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer
	constraint string
}

// Name returns the name the actor was loaded under.
func (a *Actor[K]) Name() string {
	return a.name
}

// ABIConstraint returns the syscall ABI constraint exactly as the actor
// declared it.
func (a *Actor[K]) ABIConstraint() string {
	return a.constraint
}

func (a *Actor[K]) check(ctx context.Context, table *syscalls.Table[K]) error {
	exports := a.module.ExportedFunctions()
	for name, want := range map[string][2][]api.ValueType{
		ExportInvoke:     {invokeSig, i64},
		ExportAllocate:   {allocateSig, i32},
		ExportABIVersion: {nil, i64},
	} {
		def, ok := exports[name]
		if !ok {
			return &MissingExportError{Actor: a.name, Export: name}
		}
		if !slices.Equal(def.ParamTypes(), want[0]) || !slices.Equal(def.ResultTypes(), want[1]) {
			return &SignatureMismatchError{Actor: a.name, Module: "", Name: name}
		}
	}
	if _, ok := a.module.ExportedMemories()[ExportMemory]; !ok {
		return &MissingExportError{Actor: a.name, Export: ExportMemory}
	}

	for _, def := range a.module.ImportedFunctions() {
		module, name, _ := def.Import()
		if module == wasi_snapshot_preview1.ModuleName {
			continue
		}
		s, ok := table.Lookup(module, name)
		if !ok {
			return &UnlinkedSyscallError{Actor: a.name, Module: module, Name: name}
		}
		if !slices.Equal(def.ParamTypes(), s.Params) || !slices.Equal(def.ResultTypes(), i32) {
			return &SignatureMismatchError{Actor: a.name, Module: module, Name: name}
		}
	}

	raw, err := a.readVersion(ctx)
	if err != nil {
		return err
	}
	constraint, err := semver.NewConstraint(raw)
	if err != nil {
		return fmt.Errorf("actor %s declares invalid ABI constraint %q: %w", a.name, raw, err)
	}
	if !constraint.Check(table.Version()) {
		return &IncompatibleABIError{Actor: a.name, Constraint: raw, Version: table.Version().String()}
	}
	a.constraint = raw
	return nil
}

func (a *Actor[K]) readVersion(ctx context.Context) (string, error) {
	inst, err := a.instantiate(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = inst.Close(ctx)
	}()

	results, err := inst.ExportedFunction(ExportABIVersion).Call(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to call %s(): %w", ExportABIVersion, err)
	}
	ptr, size := abi.UnpackPtrLen(results[0])
	if ptr == 0 || size == 0 {
		return "", fmt.Errorf("%s() returned null pointer or zero length", ExportABIVersion)
	}
	b, ok := inst.Memory().Read(ptr, size)
	if !ok {
		return "", fmt.Errorf("%s() result [%d, +%d) out of bounds", ExportABIVersion, ptr, size)
	}
	return string(b), nil
}

// instantiate creates a fresh, anonymous instance so concurrent and nested
// invocations never share memory.
func (a *Actor[K]) instantiate(ctx context.Context) (api.Module, error) {
	config := wazero.NewModuleConfig().
		WithName("").
		WithStdout(a.stdout).
		WithStderr(a.stderr)
	inst, err := a.runtime.InstantiateModule(ctx, a.module, config)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate actor %s: %w", a.name, err)
	}
	// Reactors built with -buildmode=c-shared must run _initialize first.
	if initFn := inst.ExportedFunction(exportInitialize); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			_ = inst.Close(ctx)
			return nil, fmt.Errorf("failed to initialize actor %s: %w", a.name, err)
		}
	}
	return inst, nil
}

// Invoke implements machine.Invoker. A syscall that aborts the invocation
// surfaces as its original error; a guest trap ends the invocation with
// SysErrIllegalInstruction.
func (a *Actor[K]) Invoke(ctx context.Context, k K, method abi.MethodNum, params *kernel.Block) (abi.Return, error) {
	ctx = syscalls.WithKernel(ctx, k)

	inst, err := a.instantiate(ctx)
	if err != nil {
		return abi.Return{}, a.failure(ctx, err)
	}
	defer func() {
		_ = inst.Close(ctx)
	}()

	var ptr, size uint32
	if params != nil && len(params.Data) > 0 {
		if ptr, err = a.stage(ctx, inst, params.Data); err != nil {
			return abi.Return{}, a.failure(ctx, err)
		}
		size = uint32(len(params.Data)) //nolint:gosec // bounded by kernel.MaxBlockSize
	}

	caller := k.MsgContext().Caller
	results, err := inst.ExportedFunction(ExportInvoke).Call(ctx, uint64(method), uint64(caller), uint64(ptr), uint64(size))
	if err != nil {
		return abi.Return{}, a.failure(ctx, err)
	}

	retPtr, retLen := abi.UnpackPtrLen(results[0])
	raw, ok := inst.Memory().Read(retPtr, retLen)
	if !ok {
		return abi.Return{}, kernel.NewAbortError(abi.SysErrMissingReturn,
			fmt.Sprintf("actor %s returned [%d, +%d) outside its memory", a.name, retPtr, retLen), nil)
	}
	var ret abi.Return
	if err := abi.Unmarshal(raw, &ret); err != nil {
		return abi.Return{}, kernel.NewAbortError(abi.SysErrMissingReturn,
			fmt.Sprintf("actor %s returned a malformed result", a.name), err)
	}
	return ret, nil
}

func (a *Actor[K]) stage(ctx context.Context, inst api.Module, data []byte) (uint32, error) {
	results, err := inst.ExportedFunction(ExportAllocate).Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, err
	}
	ptr := uint32(results[0]) //nolint:gosec // wasm32 pointer
	if !inst.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("allocate(%d) returned %d outside guest memory", len(data), ptr)
	}
	return ptr, nil
}

// failure classifies an error out of the guest.
func (a *Actor[K]) failure(ctx context.Context, err error) error {
	if cause := syscalls.Aborted(ctx); cause != nil {
		return cause
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return kernel.NewFatalError("invocation canceled", errors.Join(ctxErr, err))
	}
	a.logger.Debug("actor trapped", "error", err)
	return kernel.NewAbortError(abi.SysErrIllegalInstruction, fmt.Sprintf("actor %s trapped", a.name), err)
}
