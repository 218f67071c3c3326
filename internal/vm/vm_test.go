package vm

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/customkernel"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/Prajjawalk/ipc/internal/machine"
	"github.com/Prajjawalk/ipc/internal/recommend"
	"github.com/Prajjawalk/ipc/internal/syscalls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
)

type ck = customkernel.CustomKernel

const (
	guestID abi.ActorID = 1000
	aliceID abi.ActorID = 101
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTable(t *testing.T) *syscalls.Table[ck] {
	t.Helper()
	table, err := customkernel.NewTable(syscalls.WithLogger(quietLogger()))
	require.NoError(t, err)
	return table
}

func newRuntime(t *testing.T) *Runtime[ck] {
	t.Helper()
	ctx := context.Background()
	r, err := NewRuntime(ctx, newTable(t), Options{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(ctx) })
	return r
}

func okReturn(t *testing.T) []byte {
	t.Helper()
	data, err := abi.Marshal("ok")
	require.NoError(t, err)
	ret, err := abi.Marshal(abi.Return{Data: data})
	require.NoError(t, err)
	return ret
}

func customImport() guestImport {
	return guestImport{module: customkernel.Module, name: customkernel.SyscallName, params: customkernel.Params}
}

func TestNewRuntime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, err := NewRuntime(ctx, newTable(t), Options{Logger: quietLogger()})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Empty(t, r.actors)
	assert.NoError(t, r.Close(ctx))
}

func TestNewRuntime_MemoryLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		limit   int
		wantErr bool
	}{
		{name: "default", limit: 0},
		{name: "unlimited", limit: -1},
		{name: "explicit", limit: 100},
		{name: "very low", limit: 16},
		{name: "invalid", limit: -2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			r, err := NewRuntime(ctx, newTable(t), Options{Logger: quietLogger(), MemoryLimitMB: tt.limit})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid wasm memory limit")
				return
			}
			require.NoError(t, err)
			assert.NoError(t, r.Close(ctx))
		})
	}
}

func TestNewRuntime_RequiresTable(t *testing.T) {
	t.Parallel()

	_, err := NewRuntime[ck](context.Background(), nil, Options{})
	assert.Error(t, err)
}

func TestLoadActor_InvalidWasm(t *testing.T) {
	t.Parallel()

	r := newRuntime(t)
	a, err := r.LoadActor(context.Background(), "invalid", []byte("not a valid wasm module"))
	require.Error(t, err)
	assert.Nil(t, a)
	assert.Contains(t, err.Error(), "failed to compile")
}

func TestLoadActor_Checks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		guest guest
		check func(t *testing.T, err error)
	}{
		{
			name:  "missing invoke",
			guest: guest{invoke: returnCode(0), omit: ExportInvoke},
			check: func(t *testing.T, err error) {
				var e *MissingExportError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, ExportInvoke, e.Export)
			},
		},
		{
			name:  "missing memory",
			guest: guest{invoke: returnCode(0), omit: ExportMemory},
			check: func(t *testing.T, err error) {
				var e *MissingExportError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, ExportMemory, e.Export)
			},
		},
		{
			name:  "invoke signature",
			guest: guest{invoke: returnCode(0), invokeParams: []api.ValueType{api.ValueTypeI32}},
			check: func(t *testing.T, err error) {
				var e *SignatureMismatchError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, ExportInvoke, e.Name)
			},
		},
		{
			name: "unlinked syscall",
			guest: guest{
				imports: []guestImport{{module: customkernel.Module, name: "missing", params: nil}},
				invoke:  returnCode(0),
			},
			check: func(t *testing.T, err error) {
				var e *UnlinkedSyscallError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "missing", e.Name)
			},
		},
		{
			name: "syscall signature",
			guest: guest{
				imports: []guestImport{{module: customkernel.Module, name: customkernel.SyscallName, params: []api.ValueType{api.ValueTypeI32}}},
				invoke:  returnCode(0),
			},
			check: func(t *testing.T, err error) {
				var e *SignatureMismatchError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, customkernel.Module, e.Module)
			},
		},
		{
			name:  "incompatible abi",
			guest: guest{invoke: returnCode(0), version: "^2.0.0"},
			check: func(t *testing.T, err error) {
				var e *IncompatibleABIError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, abi.Version, e.Version)
			},
		},
		{
			name:  "invalid constraint",
			guest: guest{invoke: returnCode(0), version: "not a version"},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "invalid ABI constraint")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newRuntime(t)
			a, err := r.LoadActor(context.Background(), tt.name, tt.guest.build())
			require.Error(t, err)
			assert.Nil(t, a)
			tt.check(t, err)
			_, ok := r.Actor(tt.name)
			assert.False(t, ok)
		})
	}
}

func TestLoadActor_Caches(t *testing.T) {
	t.Parallel()

	r := newRuntime(t)
	ctx := context.Background()
	wasm := guest{imports: []guestImport{customImport()}, invoke: returnCode(0), version: ">= 1.0.0, < 2.0.0"}.build()

	a, err := r.LoadActor(ctx, "guest", wasm)
	require.NoError(t, err)
	assert.Equal(t, "guest", a.Name())
	assert.Equal(t, ">= 1.0.0, < 2.0.0", a.ABIConstraint())

	again, err := r.LoadActor(ctx, "guest", wasm)
	require.NoError(t, err)
	assert.Same(t, a, again)

	got, ok := r.Actor("guest")
	require.True(t, ok)
	assert.Same(t, a, got)
}

type harness struct {
	m       *machine.Machine[ck]
	payload *countingPayload
}

type countingPayload struct {
	recommend.Local
	calls int
}

func (p *countingPayload) Recommend(ctx context.Context, req recommend.Request) (recommend.Matrix, error) {
	p.calls++
	return p.Local.Recommend(ctx, req)
}

func newHarness(t *testing.T, g guest, prices map[string]string) *harness {
	t.Helper()
	ctx := context.Background()

	payload := &countingPayload{}
	ext, err := customkernel.NewExtension(customkernel.Options{
		Payload:        payload,
		AllowedCallers: []abi.ActorID{abi.SystemActorID},
		Timeout:        time.Second,
		Logger:         quietLogger(),
	})
	require.NoError(t, err)

	cfg := machine.Config{Logger: quietLogger()}
	if prices != nil {
		cfg.Prices, err = gas.NewPriceList(prices)
		require.NoError(t, err)
	}
	m, err := machine.New[ck](cfg, ext.Factory(), nil, nil)
	require.NoError(t, err)

	r := newRuntime(t)
	a, err := r.LoadActor(ctx, "guest", g.build())
	require.NoError(t, err)
	code := machine.MustCodeCID("guest")
	require.NoError(t, m.Register(code, a))
	require.NoError(t, m.InstallActor(guestID, code, nil))
	require.NoError(t, m.InstallActor(aliceID, machine.MustCodeCID("account"), big.NewInt(10)))
	return &harness{m: m, payload: payload}
}

func (h *harness) send(t *testing.T, from abi.ActorID, params []byte) *machine.Receipt {
	t.Helper()
	r, err := h.m.ApplyMessage(context.Background(), &machine.Message{
		From:     abi.NewIDAddress(from),
		To:       abi.NewIDAddress(guestID),
		Method:   abi.MustMethodHash("Invoke"),
		Params:   params,
		GasLimit: 10_000_000,
	})
	require.NoError(t, err)
	return r
}

func TestActor_Invoke(t *testing.T) {
	t.Parallel()

	ok := okReturn(t)
	okData, err := abi.Marshal("ok")
	require.NoError(t, err)

	echoed, err := abi.Marshal(abi.Return{Data: []byte("echo")})
	require.NoError(t, err)
	badReturn := []byte{0xff, 0xff, 0xff}

	tests := []struct {
		name      string
		guest     guest
		from      abi.ActorID
		params    []byte
		prices    map[string]string
		wantExit  abi.ExitCode
		wantData  []byte
		wantCalls int
	}{
		{
			name:     "returns data",
			guest:    guest{invoke: returnCode(len(ok)), ret: ok},
			from:     aliceID,
			wantData: okData,
		},
		{
			name:     "stages params",
			guest:    guest{invoke: echoCode()},
			from:     aliceID,
			params:   echoed,
			wantData: []byte("echo"),
		},
		{
			name:     "trap",
			guest:    guest{invoke: []byte{0x00}},
			from:     aliceID,
			wantExit: abi.SysErrIllegalInstruction,
		},
		{
			name:     "return outside memory",
			guest:    guest{invoke: i64Const(packed(70000, 10))},
			from:     aliceID,
			wantExit: abi.SysErrMissingReturn,
		},
		{
			name:     "malformed return",
			guest:    guest{invoke: returnCode(len(badReturn)), ret: badReturn},
			from:     aliceID,
			wantExit: abi.SysErrMissingReturn,
		},
		{
			name:      "custom syscall",
			guest:     guest{imports: []guestImport{customImport()}, invoke: customSyscallCode(len(ok)), ret: ok},
			from:      abi.SystemActorID,
			wantData:  okData,
			wantCalls: 1,
		},
		{
			name:     "custom syscall forbidden",
			guest:    guest{imports: []guestImport{customImport()}, invoke: customSyscallCode(len(ok)), ret: ok},
			from:     aliceID,
			wantExit: abi.SysErrIllegalInstruction,
		},
		{
			name:     "custom syscall out of gas",
			guest:    guest{imports: []guestImport{customImport()}, invoke: customSyscallCode(len(ok)), ret: ok},
			from:     abi.SystemActorID,
			prices:   map[string]string{gas.OnCustomSyscall: "100000000"},
			wantExit: abi.SysErrOutOfGas,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, tt.guest, tt.prices)
			r := h.send(t, tt.from, tt.params)
			assert.Equal(t, tt.wantExit, r.ExitCode, r.Message)
			assert.Equal(t, tt.wantData, r.Return)
			assert.Equal(t, tt.wantCalls, h.payload.calls)
		})
	}
}

func TestActor_FreshInstancePerInvocation(t *testing.T) {
	t.Parallel()

	ok := okReturn(t)
	h := newHarness(t, guest{invoke: returnCode(len(ok)), ret: ok}, nil)
	for nonce := range uint64(3) {
		r, err := h.m.ApplyMessage(context.Background(), &machine.Message{
			From:     abi.NewIDAddress(aliceID),
			To:       abi.NewIDAddress(guestID),
			Method:   2,
			Nonce:    nonce,
			GasLimit: 10_000_000,
		})
		require.NoError(t, err)
		assert.Equal(t, abi.ExitOK, r.ExitCode)
	}
}

func TestActor_CanceledContext(t *testing.T) {
	t.Parallel()

	ok := okReturn(t)
	h := newHarness(t, guest{invoke: returnCode(len(ok)), ret: ok}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.m.ApplyMessage(ctx, &machine.Message{
		From: abi.NewIDAddress(aliceID), To: abi.NewIDAddress(guestID), Method: 2, GasLimit: 10_000_000,
	})
	var fatal *kernel.FatalError
	assert.ErrorAs(t, err, &fatal)
}
