// Package customkernel composes the default kernel with the recommendation
// capability and links it under my_custom_kernel.
package customkernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/Prajjawalk/ipc/internal/recommend"
)

// RecommendationOps is the capability this kernel adds.
type RecommendationOps interface {
	// Authorize fails with ErrForbidden unless the calling actor may use
	// MyCustomSyscall.
	Authorize() error
	MyCustomSyscall(ctx context.Context, args Args) (abi.FixedResult, error)
}

// CustomKernel is the default capability set plus RecommendationOps.
type CustomKernel interface {
	kernel.Kernel
	RecommendationOps
}

// Args are the primitive syscall arguments.
type Args struct {
	Matrix    *abi.MatrixBuffer
	UserIndex int64
	K         int64
	Users     uint32
	Items     uint32
}

func (a Args) request() (recommend.Request, error) {
	if a.Matrix == nil {
		return recommend.Request{}, NewEncodingError("activity matrix", errors.New("missing"))
	}
	rows, err := a.Matrix.Unpack(a.Users, a.Items)
	if err != nil {
		return recommend.Request{}, NewEncodingError("activity matrix", err)
	}
	req := recommend.Request{UserIndex: a.UserIndex, Activity: recommend.ActivityFromBytes(rows), K: a.K}
	if err := req.Validate(); err != nil {
		return recommend.Request{}, NewEncodingError("arguments", err)
	}
	return req, nil
}

// Options configure the recommendation capability.
type Options struct {
	Payload recommend.Recommender
	Logger  *slog.Logger
	// PayloadName labels the payload in errors and logs.
	PayloadName    string
	AllowedCallers []abi.ActorID
	// Timeout bounds one payload call. Zero means no bound beyond the
	// caller's context.
	Timeout time.Duration
	// AllowNondeterministic accepts a payload whose results may differ
	// between hosts. Only for local development.
	AllowNondeterministic bool
}

// Extension holds what every Kernel built for a machine shares.
type Extension struct {
	payload recommend.Recommender
	logger  *slog.Logger
	name    string
	allowed []abi.ActorID
	timeout time.Duration
}

// NewExtension validates opts.
func NewExtension(opts Options) (*Extension, error) {
	if opts.Payload == nil {
		return nil, errors.New("customkernel: payload is required")
	}
	if len(opts.AllowedCallers) == 0 {
		return nil, errors.New("customkernel: allow-list is empty")
	}
	if !opts.Payload.Deterministic() && !opts.AllowNondeterministic {
		return nil, fmt.Errorf("customkernel: payload %T is not deterministic; pin it to committed responses", opts.Payload)
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("customkernel: negative timeout %s", opts.Timeout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.PayloadName
	if name == "" {
		name = fmt.Sprintf("%T", opts.Payload)
	}
	allowed := slices.Clone(opts.AllowedCallers)
	slices.Sort(allowed)
	return &Extension{
		payload: opts.Payload,
		logger:  logger,
		name:    name,
		allowed: slices.Compact(allowed),
		timeout: opts.Timeout,
	}, nil
}

// AllowedCallers returns the sorted allow-list.
func (e *Extension) AllowedCallers() []abi.ActorID {
	return slices.Clone(e.allowed)
}

// NewKernel wraps a fresh default kernel for inv.
func (e *Extension) NewKernel(inv kernel.Invocation) *Kernel {
	base := kernel.NewDefaultKernel(inv)
	return &Kernel{
		ActorOps:      base,
		CryptoOps:     base,
		DebugOps:      base,
		EventOps:      base,
		IpldBlockOps:  base,
		MessageOps:    base,
		NetworkOps:    base,
		RandomnessOps: base,
		SelfOps:       base,
		SendOps:       base,
		UpgradeOps:    base,
		base:          base,
		ext:           e,
	}
}

// Factory returns the kernel factory the call manager uses for every frame.
func (e *Extension) Factory() kernel.Factory[CustomKernel] {
	return func(inv kernel.Invocation) CustomKernel {
		return e.NewKernel(inv)
	}
}

// Kernel forwards every base capability to a DefaultKernel and implements
// RecommendationOps itself.
type Kernel struct {
	kernel.ActorOps
	kernel.CryptoOps
	kernel.DebugOps
	kernel.EventOps
	kernel.IpldBlockOps
	kernel.MessageOps
	kernel.NetworkOps
	kernel.RandomnessOps
	kernel.SelfOps
	kernel.SendOps
	kernel.UpgradeOps

	base *kernel.DefaultKernel
	ext  *Extension
}

var (
	_ CustomKernel         = (*Kernel)(nil)
	_ kernel.Core          = (*Kernel)(nil)
	_ kernel.ActorOps      = (*Kernel)(nil)
	_ kernel.CryptoOps     = (*Kernel)(nil)
	_ kernel.DebugOps      = (*Kernel)(nil)
	_ kernel.EventOps      = (*Kernel)(nil)
	_ kernel.IpldBlockOps  = (*Kernel)(nil)
	_ kernel.MessageOps    = (*Kernel)(nil)
	_ kernel.NetworkOps    = (*Kernel)(nil)
	_ kernel.RandomnessOps = (*Kernel)(nil)
	_ kernel.SelfOps       = (*Kernel)(nil)
	_ kernel.SendOps       = (*Kernel)(nil)
	_ kernel.UpgradeOps    = (*Kernel)(nil)
	_ RecommendationOps    = (*Kernel)(nil)
)

// Base returns the wrapped default kernel.
func (k *Kernel) Base() *kernel.DefaultKernel { return k.base }

// ChargeGas forwards to the base kernel.
func (k *Kernel) ChargeGas(name string, amount gas.Gas) (*gas.Timer, error) {
	return k.base.ChargeGas(name, amount)
}

// GasAvailable forwards to the base kernel.
func (k *Kernel) GasAvailable() gas.Gas { return k.base.GasAvailable() }

// Price forwards to the base kernel.
func (k *Kernel) Price(name string, vars gas.Vars) (gas.Gas, error) {
	return k.base.Price(name, vars)
}

// Authorize implements RecommendationOps.
func (k *Kernel) Authorize() error {
	caller := k.base.MsgContext().Caller
	if _, ok := slices.BinarySearch(k.ext.allowed, caller); ok {
		return nil
	}
	return kernel.WrapSyscallError(abi.ErrForbidden, "caller not allowed", NewAuthorizationError(caller, k.ext.AllowedCallers()))
}

// MyCustomSyscall runs the payload for args and returns its encoded result.
// Gas for the call is charged before the payload runs; gas for the result
// is charged by its encoded size.
func (k *Kernel) MyCustomSyscall(ctx context.Context, args Args) (abi.FixedResult, error) {
	var empty abi.FixedResult
	if err := k.Authorize(); err != nil {
		return empty, err
	}
	req, err := args.request()
	if err != nil {
		return empty, kernel.WrapSyscallError(abi.ErrIllegalArgument, "invalid arguments", err)
	}

	timer, err := k.charge(gas.OnCustomSyscall, gas.Vars{Cells: int(args.Users) * int(args.Items), K: int(args.K)})
	if err != nil {
		return empty, err
	}
	defer timer.Stop()

	out, err := k.runPayload(ctx, req)
	if err != nil {
		k.ext.logger.Debug("recommendation payload failed", "payload", k.ext.name, "actor", k.base.MsgContext().Receiver, "error", err)
		return empty, kernel.WrapSyscallError(abi.ErrCapabilityFailed, "payload failed", NewCapabilityExecutionError(k.ext.name, err))
	}

	encoded, err := recommend.EncodeMatrix(out)
	if err != nil {
		return empty, kernel.WrapSyscallError(abi.ErrSerialization, "result", NewEncodingError("result", err))
	}
	res, err := abi.NewFixedResult(encoded)
	if err != nil {
		return empty, kernel.WrapSyscallError(abi.ErrSerialization, "result", NewEncodingError("result", err))
	}

	resultTimer, err := k.charge(gas.OnCustomSyscallResult, gas.Vars{Bytes: len(encoded)})
	if err != nil {
		return empty, err
	}
	resultTimer.Stop()
	return res, nil
}

func (k *Kernel) runPayload(ctx context.Context, req recommend.Request) (recommend.Matrix, error) {
	if k.ext.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.ext.timeout)
		defer cancel()
	}
	return k.ext.payload.Recommend(ctx, req)
}

func (k *Kernel) charge(name string, vars gas.Vars) (*gas.Timer, error) {
	amount, err := k.base.Price(name, vars)
	if err != nil {
		return nil, kernel.NewFatalError("pricing "+name, err)
	}
	return k.base.ChargeGas(name, amount)
}
