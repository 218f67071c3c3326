package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"
)

// Invoker runs actor code under a kernel.
type Invoker[K kernel.Kernel] interface {
	Invoke(ctx context.Context, k K, method abi.MethodNum, params *kernel.Block) (abi.Return, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc[K kernel.Kernel] func(ctx context.Context, k K, method abi.MethodNum, params *kernel.Block) (abi.Return, error)

// Invoke calls f.
func (f InvokerFunc[K]) Invoke(ctx context.Context, k K, method abi.MethodNum, params *kernel.Block) (abi.Return, error) {
	return f(ctx, k, method, params)
}

// Observer is told about every applied message.
type Observer interface {
	ObserveMessage(exit abi.ExitCode, gasUsed gas.Gas, elapsed time.Duration)
}

// Config holds what every message applied by a Machine shares.
type Config struct {
	Network  kernel.NetworkContext
	Prices   *gas.PriceList
	Externs  kernel.Externs
	Builtins kernel.Builtins
	Observer Observer
	Logger   *slog.Logger
	Debug    kernel.DebugSettings
	// TraceGas records every charge in the receipt.
	TraceGas bool
}

// Message is a top-level call into the machine.
type Message struct {
	From       abi.Address
	To         abi.Address
	Value      *big.Int
	GasPremium *big.Int
	Params     []byte
	Nonce      uint64
	Method     abi.MethodNum
	GasLimit   gas.Gas
	ReadOnly   bool
}

func (msg *Message) validate() error {
	if msg == nil {
		return errors.New("nil message")
	}
	if msg.To.IsUndef() || msg.From.IsUndef() {
		return errors.New("message sender and receiver are required")
	}
	if msg.GasLimit <= 0 {
		return fmt.Errorf("gas limit must be positive, got %d", msg.GasLimit)
	}
	if msg.Value != nil && msg.Value.Sign() < 0 {
		return errors.New("message value is negative")
	}
	if msg.ReadOnly && msg.Value != nil && msg.Value.Sign() > 0 {
		return errors.New("read-only message cannot transfer value")
	}
	return nil
}

// Receipt is the outcome of a message.
type Receipt struct {
	Return   []byte                `yaml:"return,omitempty"`
	Events   []kernel.StampedEvent `yaml:"events,omitempty"`
	Trace    []gas.Charge          `yaml:"trace,omitempty"`
	Message  string                `yaml:"message,omitempty"`
	GasUsed  gas.Gas               `yaml:"gas_used"`
	ExitCode abi.ExitCode          `yaml:"exit_code"`
	TraceID  uuid.UUID             `yaml:"trace_id"`
}

// Machine applies messages against a state tree and a blockstore. Messages
// are applied one at a time; read-only batches run concurrently on forks.
type Machine[K kernel.Kernel] struct {
	cfg      Config
	factory  kernel.Factory[K]
	state    *StateTree
	store    kernel.Blockstore
	logger   *slog.Logger
	mu       sync.Mutex
	codeMu   sync.RWMutex
	invokers map[cid.Cid]Invoker[K]
}

// New creates a machine whose kernels are built by factory. The system and
// burnt-funds actors are installed if missing.
func New[K kernel.Kernel](cfg Config, factory kernel.Factory[K], state *StateTree, store kernel.Blockstore) (*Machine[K], error) {
	if factory == nil {
		return nil, errors.New("machine: kernel factory is required")
	}
	if state == nil {
		state = NewStateTree()
	}
	if store == nil {
		store = NewMemBlockstore()
	}
	if cfg.Prices == nil {
		cfg.Prices = gas.DefaultPriceList()
	}
	if cfg.Externs == nil {
		cfg.Externs = NewDeterministicExterns(nil)
	}
	if cfg.Builtins == nil {
		cfg.Builtins = NewBuiltinRegistry()
	}
	if cfg.Network.BaseFee == nil {
		cfg.Network.BaseFee = new(big.Int)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debug.Logger == nil {
		cfg.Debug.Logger = logger
	}

	m := &Machine[K]{
		cfg:      cfg,
		factory:  factory,
		state:    state,
		store:    store,
		logger:   logger,
		invokers: make(map[cid.Cid]Invoker[K]),
	}
	if err := m.Register(MustCodeCID(builtinNames[TypeSystem]), SystemActor[K]()); err != nil {
		return nil, err
	}
	if err := m.Register(MustCodeCID(builtinNames[TypeAccount]), AccountActor[K]()); err != nil {
		return nil, err
	}
	if err := m.bootstrap(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Machine[K]) bootstrap() error {
	singletons := []struct {
		id   abi.ActorID
		code string
	}{
		{abi.SystemActorID, builtinNames[TypeSystem]},
		{abi.BurntFundsActorID, builtinNames[TypeAccount]},
	}
	for _, s := range singletons {
		act, err := m.state.GetActor(s.id)
		if err != nil {
			return err
		}
		if act != nil {
			continue
		}
		if err := m.state.SetActor(s.id, &kernel.ActorState{Code: MustCodeCID(s.code), Balance: new(big.Int)}); err != nil {
			return err
		}
	}
	return nil
}

// Register binds actor code to an invoker. A code CID may be registered once.
func (m *Machine[K]) Register(code cid.Cid, inv Invoker[K]) error {
	if !code.Defined() || inv == nil {
		return errors.New("machine: register needs a code cid and an invoker")
	}
	m.codeMu.Lock()
	defer m.codeMu.Unlock()
	if _, ok := m.invokers[code]; ok {
		return fmt.Errorf("machine: code %s is already registered", code)
	}
	m.invokers[code] = inv
	return nil
}

func (m *Machine[K]) invoker(code cid.Cid) (Invoker[K], bool) {
	m.codeMu.RLock()
	defer m.codeMu.RUnlock()
	inv, ok := m.invokers[code]
	return inv, ok
}

// State returns the committed state tree.
func (m *Machine[K]) State() *StateTree { return m.state }

// Blockstore returns the committed blockstore.
func (m *Machine[K]) Blockstore() kernel.Blockstore { return m.store }

// InstallActor creates an actor outside of any message, for genesis and tests.
func (m *Machine[K]) InstallActor(id abi.ActorID, code cid.Cid, balance *big.Int, addrs ...abi.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoker(code); !ok {
		return fmt.Errorf("machine: no invoker for code %s", code)
	}
	if balance == nil {
		balance = new(big.Int)
	}
	for _, addr := range addrs {
		if err := m.state.BindAddress(addr, id); err != nil {
			return err
		}
	}
	return m.state.SetActor(id, &kernel.ActorState{Code: code, Balance: new(big.Int).Set(balance)})
}

// ApplyMessage executes msg and commits its effects only if it succeeds.
// The error is non-nil only for host failures; actor failures, including
// running out of gas, are reported in the receipt.
func (m *Machine[K]) ApplyMessage(ctx context.Context, msg *Message) (*Receipt, error) {
	if err := msg.validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apply(ctx, m.state, m.store, msg, true)
}

// ApplyReadOnlyBatch executes msgs concurrently as read-only calls on forks
// of the current state. Nothing is committed. Receipts are in input order.
func (m *Machine[K]) ApplyReadOnlyBatch(ctx context.Context, msgs []*Message, concurrency int) ([]*Receipt, error) {
	for i, msg := range msgs {
		if err := msg.validate(); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	m.mu.Lock()
	forks := make([]*StateTree, len(msgs))
	for i := range forks {
		forks[i] = m.state.Fork()
	}
	m.mu.Unlock()

	receipts := make([]*Receipt, len(msgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, msg := range msgs {
		ro := *msg
		ro.ReadOnly = true
		g.Go(func() error {
			r, err := m.apply(gctx, forks[i], m.store, &ro, false)
			if err != nil {
				return fmt.Errorf("message %d: %w", i, err)
			}
			receipts[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (m *Machine[K]) apply(ctx context.Context, state *StateTree, base kernel.Blockstore, msg *Message, commit bool) (*Receipt, error) {
	start := time.Now()
	r := &Receipt{TraceID: uuid.New()}
	logger := m.logger.With("trace_id", r.TraceID.String(), "from", msg.From.String(), "to", msg.To.String(), "method", uint64(msg.Method))

	fromID, ok, err := state.LookupID(msg.From)
	if err != nil {
		return nil, fmt.Errorf("resolving sender: %w", err)
	}
	var sender *kernel.ActorState
	if ok {
		if sender, err = state.GetActor(fromID); err != nil {
			return nil, fmt.Errorf("loading sender: %w", err)
		}
	}
	switch {
	case sender == nil:
		r.ExitCode = abi.SysErrSenderInvalid
		r.Message = fmt.Sprintf("sender %s not found", msg.From)
		return m.finish(logger, r, start), nil
	case !msg.ReadOnly && sender.Sequence != msg.Nonce:
		r.ExitCode = abi.SysErrSenderStateInvalid
		r.Message = fmt.Sprintf("nonce %d does not match sender sequence %d", msg.Nonce, sender.Sequence)
		return m.finish(logger, r, start), nil
	}

	tracker := gas.NewTracker(msg.GasLimit)
	if m.cfg.TraceGas {
		tracker.EnableTrace()
	}
	premium := msg.GasPremium
	if premium == nil {
		premium = new(big.Int)
	}
	store := NewBufferedBlockstore(base)
	cm := &callManager[K]{
		m:       m,
		gas:     tracker,
		state:   state,
		store:   store,
		origin:  fromID,
		from:    msg.From,
		nonce:   msg.Nonce,
		premium: premium,
	}

	state.Begin()
	res, err := m.run(ctx, cm, fromID, sender, msg)
	r.GasUsed = tracker.Used()
	r.Trace = tracker.Trace()

	switch {
	case err == nil && res.ExitCode.IsSuccess() && commit:
		if cerr := state.Commit(); cerr != nil {
			return nil, cerr
		}
		if ferr := store.Flush(); ferr != nil {
			return nil, ferr
		}
		r.Events = cm.events
	case err == nil:
		if !res.ExitCode.IsSuccess() || !commit {
			if rerr := state.Revert(); rerr != nil {
				return nil, rerr
			}
			store.Discard()
		}
		if res.ExitCode.IsSuccess() {
			r.Events = cm.events
		}
	case errors.Is(err, gas.ErrOutOfGas):
		if rerr := state.Revert(); rerr != nil {
			return nil, rerr
		}
		store.Discard()
		r.ExitCode = abi.SysErrOutOfGas
		r.Message = err.Error()
		return m.finish(logger, r, start), nil
	default:
		if rerr := state.Revert(); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		store.Discard()
		logger.Error("message aborted", "error", err)
		return nil, fmt.Errorf("applying message %s: %w", r.TraceID, err)
	}

	r.ExitCode = res.ExitCode
	r.Message = res.Message
	if res.Return != nil {
		r.Return = res.Return.Data
	}
	return m.finish(logger, r, start), nil
}

func (m *Machine[K]) run(ctx context.Context, cm *callManager[K], fromID abi.ActorID, sender *kernel.ActorState, msg *Message) (kernel.InvocationResult, error) {
	timer, err := cm.charge(gas.OnChainMessage, gas.Vars{Bytes: len(msg.Params)})
	if err != nil {
		return kernel.InvocationResult{}, err
	}
	timer.Stop()

	if !msg.ReadOnly {
		sender.Sequence++
		if err := cm.state.SetActor(fromID, sender); err != nil {
			return kernel.InvocationResult{}, kernel.NewFatalError("state tree write", err)
		}
	}

	var params *kernel.Block
	if len(msg.Params) > 0 {
		params = &kernel.Block{Codec: kernel.CodecDAGCBOR, Data: msg.Params}
	}
	return cm.Send(ctx, fromID, msg.To, msg.Method, params, msg.Value, nil, msg.ReadOnly)
}

func (m *Machine[K]) finish(logger *slog.Logger, r *Receipt, start time.Time) *Receipt {
	elapsed := time.Since(start)
	if m.cfg.Observer != nil {
		m.cfg.Observer.ObserveMessage(r.ExitCode, r.GasUsed, elapsed)
	}
	logger.Info("message applied", "exit_code", r.ExitCode.String(), "gas_used", int64(r.GasUsed), "duration", elapsed)
	return r
}
