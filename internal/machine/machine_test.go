package machine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

type dk = *kernel.DefaultKernel

// Test actor methods.
const (
	methodWriteRoot abi.MethodNum = 2
	methodWriteFail abi.MethodNum = 3
	methodBurn      abi.MethodNum = 4
	methodCallBurn  abi.MethodNum = 5
	methodAbort     abi.MethodNum = 6
	methodTrap      abi.MethodNum = 7
)

const (
	testActorID abi.ActorID = 1000
	aliceID     abi.ActorID = 101
	bobID       abi.ActorID = 102
)

var testActorCode = MustCodeCID("test")

var errHostBroken = errors.New("host broken")

// exit turns a syscall error into the exit code a guest would abort with.
func exit(err error) (abi.Return, error) {
	if n, ok := kernel.ErrorNumberOf(err); ok {
		return abi.Return{ExitCode: abi.ExitCodeForErrno(n), Message: err.Error()}, nil
	}
	return abi.Return{}, err
}

func testActor() Invoker[dk] {
	return InvokerFunc[dk](func(ctx context.Context, k dk, method abi.MethodNum, _ *kernel.Block) (abi.Return, error) {
		writeRoot := func() error {
			id, err := k.BlockCreate(kernel.CodecIPLDRaw, []byte("state"))
			if err != nil {
				return err
			}
			root, err := k.BlockLink(id, multihash.BLAKE2B_MIN+31, 32)
			if err != nil {
				return err
			}
			if err := k.SetRoot(root); err != nil {
				return err
			}
			return k.EmitEvent(kernel.ActorEvent{Entries: []kernel.EventEntry{{Key: "root", Codec: kernel.CodecIPLDRaw, Value: root.Bytes()}}})
		}

		switch method {
		case abi.MethodConstructor:
			return abi.Return{}, nil
		case methodWriteRoot:
			if err := writeRoot(); err != nil {
				return exit(err)
			}
			return abi.Return{Data: []byte{0x01}}, nil
		case methodWriteFail:
			if err := writeRoot(); err != nil {
				return exit(err)
			}
			return abi.Return{ExitCode: abi.UsrIllegalState, Message: "changed my mind"}, nil
		case methodBurn:
			for {
				timer, err := k.ChargeGas("burn", 1_000_000)
				if err != nil {
					return abi.Return{}, err
				}
				timer.Stop()
			}
		case methodCallBurn:
			limit := gas.Gas(2_000_000)
			res, err := k.Send(ctx, abi.NewIDAddress(testActorID), methodBurn, kernel.NoDataBlockID, nil, &limit, 0)
			if err != nil {
				return exit(err)
			}
			if err := writeRoot(); err != nil {
				return exit(err)
			}
			return abi.Return{Data: []byte{byte(res.ExitCode)}}, nil
		case methodAbort:
			return abi.Return{}, kernel.NewFatalError("broken", errHostBroken)
		case methodTrap:
			if err := writeRoot(); err != nil {
				return exit(err)
			}
			return abi.Return{}, kernel.NewAbortError(abi.SysErrIllegalInstruction, "trapped", nil)
		default:
			return abi.Return{ExitCode: abi.UsrUnhandledMessage}, nil
		}
	})
}

type recordingObserver struct {
	mu    sync.Mutex
	exits []abi.ExitCode
}

func (o *recordingObserver) ObserveMessage(exit abi.ExitCode, _ gas.Gas, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exits = append(o.exits, exit)
}

func newTestMachine(t *testing.T, obs Observer) *Machine[dk] {
	t.Helper()
	cfg := Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Network:  kernel.NetworkContext{Epoch: 10, ChainID: 314},
		Observer: obs,
		TraceGas: true,
	}
	m, err := New[dk](cfg, kernel.DefaultFactory, nil, nil)
	require.NoError(t, err)
	require.NoError(t, m.Register(testActorCode, testActor()))

	account := MustCodeCID("account")
	require.NoError(t, m.InstallActor(aliceID, account, big.NewInt(1000)))
	require.NoError(t, m.InstallActor(bobID, account, big.NewInt(0)))
	require.NoError(t, m.InstallActor(testActorID, testActorCode, nil))
	return m
}

func balance(t *testing.T, m *Machine[dk], id abi.ActorID) int64 {
	t.Helper()
	act, err := m.State().GetActor(id)
	require.NoError(t, err)
	require.NotNil(t, act)
	return act.Balance.Int64()
}

func msg(from, to abi.ActorID, method abi.MethodNum, nonce uint64) *Message {
	return &Message{
		From:     abi.NewIDAddress(from),
		To:       abi.NewIDAddress(to),
		Method:   method,
		Nonce:    nonce,
		GasLimit: 10_000_000,
	}
}

func TestNewInstallsSingletons(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, nil)
	for _, id := range []abi.ActorID{abi.SystemActorID, abi.BurntFundsActorID} {
		act, err := m.State().GetActor(id)
		require.NoError(t, err)
		assert.NotNil(t, act, "actor %d", id)
	}
	err := m.Register(testActorCode, testActor())
	assert.Error(t, err)

	_, err = New[dk](Config{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestApplyMessageTransfer(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	m := newTestMachine(t, obs)
	ctx := context.Background()

	transfer := msg(aliceID, bobID, abi.MethodSend, 0)
	transfer.Value = big.NewInt(400)
	r, err := m.ApplyMessage(ctx, transfer)
	require.NoError(t, err)
	assert.Equal(t, abi.ExitOK, r.ExitCode)
	assert.Positive(t, r.GasUsed)
	assert.NotEqual(t, [16]byte{}, [16]byte(r.TraceID))
	assert.Equal(t, int64(600), balance(t, m, aliceID))
	assert.Equal(t, int64(400), balance(t, m, bobID))

	tooMuch := msg(aliceID, bobID, abi.MethodSend, 1)
	tooMuch.Value = big.NewInt(10_000)
	r, err = m.ApplyMessage(ctx, tooMuch)
	require.NoError(t, err)
	assert.Equal(t, abi.SysErrInsufficientFunds, r.ExitCode)
	assert.Equal(t, int64(600), balance(t, m, aliceID))

	// A failed message leaves the sender's sequence untouched.
	stale := msg(aliceID, bobID, abi.MethodSend, 2)
	r, err = m.ApplyMessage(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, abi.SysErrSenderStateInvalid, r.ExitCode)

	assert.Equal(t, []abi.ExitCode{abi.ExitOK, abi.SysErrInsufficientFunds, abi.SysErrSenderStateInvalid}, obs.exits)
}

func TestApplyMessageReceipts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  *Message
		want abi.ExitCode
	}{
		{name: "unknown sender", msg: msg(555, bobID, abi.MethodSend, 0), want: abi.SysErrSenderInvalid},
		{name: "unknown receiver", msg: msg(aliceID, 555, abi.MethodSend, 0), want: abi.SysErrInvalidReceiver},
		{name: "unhandled method", msg: msg(aliceID, bobID, 77, 0), want: abi.UsrUnhandledMessage},
		{name: "system constructor from account", msg: msg(aliceID, abi.SystemActorID, abi.MethodConstructor, 0), want: abi.UsrForbidden},
		{name: "account balance", msg: msg(aliceID, aliceID, MethodBalance, 0), want: abi.ExitOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newTestMachine(t, nil)
			r, err := m.ApplyMessage(context.Background(), tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.ExitCode, r.Message)
		})
	}
}

func TestApplyMessageValidation(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, nil)
	bad := []*Message{
		nil,
		{From: abi.NewIDAddress(aliceID), GasLimit: 1},
		{From: abi.NewIDAddress(aliceID), To: abi.NewIDAddress(bobID)},
		{From: abi.NewIDAddress(aliceID), To: abi.NewIDAddress(bobID), GasLimit: 1, Value: big.NewInt(-1)},
		{From: abi.NewIDAddress(aliceID), To: abi.NewIDAddress(bobID), GasLimit: 1, Value: big.NewInt(1), ReadOnly: true},
	}
	for i, b := range bad {
		_, err := m.ApplyMessage(context.Background(), b)
		assert.Error(t, err, "message %d", i)
	}
}

func TestApplyMessageCommitsOnSuccess(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, nil)
	r, err := m.ApplyMessage(context.Background(), msg(aliceID, testActorID, methodWriteRoot, 0))
	require.NoError(t, err)
	require.Equal(t, abi.ExitOK, r.ExitCode, r.Message)
	assert.Equal(t, []byte{0x01}, r.Return)
	require.Len(t, r.Events, 1)
	assert.Equal(t, testActorID, r.Events[0].Emitter)
	assert.NotEmpty(t, r.Trace)

	act, err := m.State().GetActor(testActorID)
	require.NoError(t, err)
	require.True(t, act.Head.Defined())
	has, err := m.Blockstore().Has(act.Head)
	require.NoError(t, err)
	assert.True(t, has)

	sender, err := m.State().GetActor(aliceID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sender.Sequence)
}

func TestApplyMessageRevertsOnFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		method  abi.MethodNum
		limit   gas.Gas
		want    abi.ExitCode
		message string
	}{
		{name: "actor exit code", method: methodWriteFail, limit: 10_000_000, want: abi.UsrIllegalState, message: "changed my mind"},
		{name: "out of gas", method: methodBurn, limit: 10_000_000, want: abi.SysErrOutOfGas, message: "out of gas"},
		{name: "out of gas before state write", method: methodWriteRoot, limit: 200_000, want: abi.SysErrOutOfGas, message: "out of gas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newTestMachine(t, nil)
			before := m.State().Fork()
			store := m.Blockstore().(*MemBlockstore)

			in := msg(aliceID, testActorID, tt.method, 0)
			in.GasLimit = tt.limit
			r, err := m.ApplyMessage(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.ExitCode)
			assert.Contains(t, r.Message, tt.message)
			assert.Empty(t, r.Events)
			assert.Equal(t, 0, store.Len())
			assert.Equal(t, 0, m.State().Depth())

			for _, id := range []abi.ActorID{aliceID, testActorID} {
				want, err := before.GetActor(id)
				require.NoError(t, err)
				got, err := m.State().GetActor(id)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestNestedGasLimit(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, nil)
	r, err := m.ApplyMessage(context.Background(), msg(aliceID, testActorID, methodCallBurn, 0))
	require.NoError(t, err)
	require.Equal(t, abi.ExitOK, r.ExitCode, r.Message)
	assert.Equal(t, []byte{byte(abi.SysErrOutOfGas)}, r.Return)
}

func TestApplyMessageFatalError(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, nil)
	_, err := m.ApplyMessage(context.Background(), msg(aliceID, testActorID, methodAbort, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, errHostBroken)
	assert.Equal(t, 0, m.State().Depth())
}

func TestApplyMessageAbortedInvocation(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, nil)
	before, err := m.State().GetActor(testActorID)
	require.NoError(t, err)

	r, err := m.ApplyMessage(context.Background(), msg(aliceID, testActorID, methodTrap, 0))
	require.NoError(t, err)
	assert.Equal(t, abi.SysErrIllegalInstruction, r.ExitCode)
	assert.Equal(t, "trapped", r.Message)
	assert.Empty(t, r.Events)

	after, err := m.State().GetActor(testActorID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestApplyReadOnlyBatch(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, nil)
	msgs := []*Message{
		msg(aliceID, aliceID, MethodBalance, 99),
		msg(aliceID, testActorID, methodWriteRoot, 99),
		msg(bobID, bobID, MethodBalance, 0),
	}
	receipts, err := m.ApplyReadOnlyBatch(context.Background(), msgs, 2)
	require.NoError(t, err)
	require.Len(t, receipts, 3)

	assert.Equal(t, abi.ExitOK, receipts[0].ExitCode)
	var bal []byte
	require.NoError(t, abi.Unmarshal(receipts[0].Return, &bal))
	assert.Equal(t, int64(1000), new(big.Int).SetBytes(bal).Int64())

	// Writes are refused in read-only mode.
	assert.Equal(t, abi.UsrReadOnly, receipts[1].ExitCode)
	assert.Equal(t, abi.ExitOK, receipts[2].ExitCode)

	sender, err := m.State().GetActor(aliceID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), sender.Sequence)
}

func TestStateTreeTransactions(t *testing.T) {
	t.Parallel()

	s := NewStateTree()
	code := MustCodeCID("account")
	require.NoError(t, s.SetActor(1, &kernel.ActorState{Code: code, Balance: big.NewInt(1)}))

	s.Begin()
	require.NoError(t, s.SetActor(1, &kernel.ActorState{Code: code, Balance: big.NewInt(2)}))
	s.Begin()
	require.NoError(t, s.DeleteActor(1))
	act, err := s.GetActor(1)
	require.NoError(t, err)
	assert.Nil(t, act)
	require.NoError(t, s.Revert())

	act, err = s.GetActor(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), act.Balance.Int64())
	require.NoError(t, s.Commit())
	assert.Equal(t, 0, s.Depth())
	assert.ErrorIs(t, s.Commit(), ErrNoTransaction)
	assert.ErrorIs(t, s.Revert(), ErrNoTransaction)

	// Returned state is a copy.
	act.Balance.SetInt64(99)
	again, err := s.GetActor(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Balance.Int64())
}

func TestStateTreeAddresses(t *testing.T) {
	t.Parallel()

	s := NewStateTree()
	a1 := abi.NewActorAddress([]byte("one"))
	a2 := abi.NewActorAddress([]byte("two"))

	id1, err := s.RegisterAddress(a1)
	require.NoError(t, err)
	assert.Equal(t, abi.FirstNonSingletonActorID, id1)
	again, err := s.RegisterAddress(a1)
	require.NoError(t, err)
	assert.Equal(t, id1, again)

	s.Begin()
	id2, err := s.RegisterAddress(a2)
	require.NoError(t, err)
	assert.Equal(t, id1+1, id2)
	require.NoError(t, s.Revert())
	_, ok, err := s.LookupID(a2)
	require.NoError(t, err)
	assert.False(t, ok)

	id, ok, err := s.LookupID(abi.NewIDAddress(7))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, abi.ActorID(7), id)

	require.NoError(t, s.BindAddress(a2, 500))
	assert.Error(t, s.BindAddress(a2, 501))
	next, err := s.RegisterAddress(abi.NewActorAddress([]byte("three")))
	require.NoError(t, err)
	assert.Equal(t, abi.ActorID(501), next)

	_, err = s.RegisterAddress(abi.Undef)
	assert.Error(t, err)
}

func TestStateTreeFork(t *testing.T) {
	t.Parallel()

	s := NewStateTree()
	code := MustCodeCID("account")
	require.NoError(t, s.SetActor(1, &kernel.ActorState{Code: code, Balance: big.NewInt(1)}))
	s.Begin()
	require.NoError(t, s.SetActor(2, &kernel.ActorState{Code: code, Balance: big.NewInt(2)}))

	fork := s.Fork()
	require.NoError(t, fork.SetActor(1, &kernel.ActorState{Code: code, Balance: big.NewInt(10)}))
	orig, err := s.GetActor(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), orig.Balance.Int64())

	forked, err := fork.GetActor(2)
	require.NoError(t, err)
	assert.NotNil(t, forked)
	assert.Equal(t, 0, fork.Depth())
	assert.ElementsMatch(t, []abi.ActorID{1, 2}, fork.ActorIDs())
}

func testCid(t *testing.T, data string) cid.Cid {
	t.Helper()
	mh, err := multihash.Sum([]byte(data), multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(kernel.CodecIPLDRaw, mh)
}

func TestBlockstores(t *testing.T) {
	t.Parallel()

	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	level := NewLevelBlockstore(db)
	t.Cleanup(func() { _ = level.Close() })

	stores := map[string]kernel.Blockstore{
		"memory":  NewMemBlockstore(),
		"leveldb": level,
	}
	for name, base := range stores {
		t.Run(name, func(t *testing.T) {
			c := testCid(t, name)
			_, err := base.Get(c)
			assert.ErrorIs(t, err, kernel.ErrBlockNotFound)

			buf := NewBufferedBlockstore(base)
			require.NoError(t, buf.Put(c, []byte("data")))
			got, err := buf.Get(c)
			require.NoError(t, err)
			assert.Equal(t, []byte("data"), got)
			has, err := base.Has(c)
			require.NoError(t, err)
			assert.False(t, has)

			buf.Discard()
			assert.Equal(t, 0, buf.Pending())
			has, err = buf.Has(c)
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, buf.Put(c, []byte("data")))
			require.NoError(t, buf.Flush())
			got, err = base.Get(c)
			require.NoError(t, err)
			assert.Equal(t, []byte("data"), got)
		})
	}
}

func TestOpenLevelBlockstore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := OpenLevelBlockstore(dir)
	require.NoError(t, err)
	c := testCid(t, "persisted")
	require.NoError(t, store.Put(c, []byte("x")))
	require.NoError(t, store.Close())

	reopened, err := OpenLevelBlockstore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	has, err := reopened.Has(c)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDeterministicExterns(t *testing.T) {
	t.Parallel()

	a := NewDeterministicExterns([]byte("seed"))
	b := NewDeterministicExterns([]byte("seed"))
	other := NewDeterministicExterns([]byte("other"))

	ra, err := a.GetChainRandomness(5)
	require.NoError(t, err)
	rb, err := b.GetChainRandomness(5)
	require.NoError(t, err)
	ro, err := other.GetChainRandomness(5)
	require.NoError(t, err)
	beacon, err := a.GetBeaconRandomness(5)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
	assert.NotEqual(t, ra, ro)
	assert.NotEqual(t, ra, beacon)

	c1, err := a.TipsetCID(3)
	require.NoError(t, err)
	c2, err := b.TipsetCID(3)
	require.NoError(t, err)
	assert.True(t, c1.Equals(c2))
}

func TestBuiltinRegistry(t *testing.T) {
	t.Parallel()

	r := NewBuiltinRegistry()
	code, ok := r.CodeOf(TypeCustomSyscall)
	require.True(t, ok)
	assert.True(t, code.Equals(MustCodeCID("customsyscall")))
	typ, ok := r.TypeOf(code)
	require.True(t, ok)
	assert.Equal(t, TypeCustomSyscall, typ)
	_, ok = r.CodeOf(12345)
	assert.False(t, ok)
}
