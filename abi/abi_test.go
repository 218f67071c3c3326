package abi

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodHash(t *testing.T) {
	t.Parallel()

	m, err := MethodHash("Invoke")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, uint64(m), uint64(firstExportedMethod))

	again, err := MethodHash("Invoke")
	require.NoError(t, err)
	assert.Equal(t, m, again, "method numbers are stable")

	other, err := MethodHash("Receive")
	require.NoError(t, err)
	assert.NotEqual(t, m, other)

	ctor, err := MethodHash("Constructor")
	require.NoError(t, err)
	assert.Equal(t, MethodConstructor, ctor)
}

func TestMethodHash_RejectsBadNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "invoke", "In-voke", "Invoke!", "1Invoke"} {
		_, err := MethodHash(name)
		assert.Error(t, err, name)
	}
}

func TestAddress_RoundTrip(t *testing.T) {
	t.Parallel()

	secp, err := NewSecp256k1Address(make([]byte, 65))
	require.NoError(t, err)
	delegated, err := NewDelegatedAddress(10, []byte{0xde, 0xad})
	require.NoError(t, err)

	tests := []struct {
		name string
		addr Address
	}{
		{"id zero", NewIDAddress(0)},
		{"id large", NewIDAddress(1 << 40)},
		{"secp256k1", secp},
		{"actor", NewActorAddress([]byte("seed"))},
		{"delegated", delegated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := AddressFromBytes(tt.addr.Bytes())
			require.NoError(t, err)
			assert.Equal(t, tt.addr, got)
		})
	}
}

func TestAddress_ID(t *testing.T) {
	t.Parallel()

	id, err := NewIDAddress(1234).ID()
	require.NoError(t, err)
	assert.Equal(t, ActorID(1234), id)
	assert.Equal(t, "f01234", NewIDAddress(1234).String())

	_, err = NewActorAddress([]byte("x")).ID()
	assert.Error(t, err)
	assert.True(t, Undef.IsUndef())
	assert.False(t, NewIDAddress(0).IsUndef())

	_, err = AddressFromBytes([]byte{9, 1})
	assert.ErrorIs(t, err, ErrUnknownProtocol)
}

func TestTokenAmount_RoundTrip(t *testing.T) {
	t.Parallel()

	big128 := new(big.Int).Lsh(big.NewInt(1), 100)
	for _, v := range []*big.Int{big.NewInt(0), big.NewInt(42), big128} {
		enc, err := EncodeTokenAmount(v)
		require.NoError(t, err)
		assert.Zero(t, v.Cmp(DecodeTokenAmount(enc)), v.String())
	}

	_, err := EncodeTokenAmount(big.NewInt(-1))
	assert.Error(t, err)
	_, err = EncodeTokenAmount(new(big.Int).Lsh(big.NewInt(1), 128))
	assert.Error(t, err)
}

func TestFixedResult(t *testing.T) {
	t.Parallel()

	t.Run("small payload", func(t *testing.T) {
		t.Parallel()
		r, err := NewFixedResult([]byte{1, 2, 3})
		require.NoError(t, err)

		wire, err := r.MarshalBinary()
		require.NoError(t, err)
		assert.Len(t, wire, FixedResultSize)

		var back FixedResult
		require.NoError(t, back.UnmarshalBinary(wire))
		payload, err := back.Payload()
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, payload)
	})

	t.Run("empty payload is distinct from failure", func(t *testing.T) {
		t.Parallel()
		r, err := NewFixedResult(nil)
		require.NoError(t, err)
		payload, err := r.Payload()
		require.NoError(t, err)
		assert.Empty(t, payload)
	})

	t.Run("exactly full", func(t *testing.T) {
		t.Parallel()
		full := make([]byte, ResultBufferSize)
		full[ResultBufferSize-1] = 7
		r, err := NewFixedResult(full)
		require.NoError(t, err)
		payload, err := r.Payload()
		require.NoError(t, err)
		assert.Equal(t, full, payload)
	})

	t.Run("oversized is rejected not truncated", func(t *testing.T) {
		t.Parallel()
		_, err := NewFixedResult(make([]byte, ResultBufferSize+1))
		var sizeErr *SizeError
		require.ErrorAs(t, err, &sizeErr)
		assert.Equal(t, ResultBufferSize+1, sizeErr.Got)
	})

	t.Run("corrupt length", func(t *testing.T) {
		t.Parallel()
		wire := make([]byte, FixedResultSize)
		wire[0], wire[1] = 0xff, 0xff
		var r FixedResult
		assert.Error(t, r.UnmarshalBinary(wire))
		assert.Error(t, r.UnmarshalBinary(wire[:10]))
	})
}

func TestMatrixBuffer(t *testing.T) {
	t.Parallel()

	rows := [][]uint8{{1, 0, 2}, {0, 3, 0}}
	buf, users, items, err := PackActivity(rows)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), users)
	assert.Equal(t, uint32(3), items)

	got, err := buf.Unpack(users, items)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	_, err = buf.Unpack(1, 3)
	assert.Error(t, err, "non-zero cells past the declared shape")

	_, err = buf.Unpack(0, 3)
	assert.Error(t, err)
	_, err = buf.Unpack(100, 11)
	assert.Error(t, err)

	_, _, _, err = PackActivity([][]uint8{{1, 2}, {1}})
	assert.Error(t, err)
	_, _, _, err = PackActivity(make([][]uint8, 11))
	assert.Error(t, err)
}

func TestMatrixBuffer_CBOR(t *testing.T) {
	t.Parallel()

	var buf MatrixBuffer
	buf[0], buf[MatrixBufferSize-1] = 9, 8
	enc, err := Marshal(buf)
	require.NoError(t, err)

	var back MatrixBuffer
	require.NoError(t, Unmarshal(enc, &back))
	assert.Equal(t, buf, back)

	short, err := Marshal(make([]byte, MatrixBufferSize-1))
	require.NoError(t, err)
	var sizeErr *SizeError
	assert.ErrorAs(t, Unmarshal(short, &back), &sizeErr)
}

func TestReturn_CBOR(t *testing.T) {
	t.Parallel()

	in := Return{ExitCode: UsrForbidden, Data: []byte{1}, Message: "nope"}
	enc, err := Marshal(in)
	require.NoError(t, err)

	var out Return
	require.NoError(t, Unmarshal(enc, &out))
	assert.Equal(t, in.ExitCode, out.ExitCode)
	assert.Equal(t, in.Data, out.Data)
	assert.Equal(t, in.Message, out.Message)
}

func TestPackPtrLen(t *testing.T) {
	t.Parallel()

	ptr, n := UnpackPtrLen(PackPtrLen(0xdeadbeef, 1004))
	assert.Equal(t, uint32(0xdeadbeef), ptr)
	assert.Equal(t, uint32(1004), n)
}

func TestExitCodes(t *testing.T) {
	t.Parallel()

	assert.True(t, ExitOK.IsSuccess())
	assert.True(t, SysErrOutOfGas.IsSystemError())
	assert.False(t, UsrForbidden.IsSystemError())
	assert.Equal(t, UsrForbidden, ExitCodeForErrno(ErrForbidden))
	assert.Equal(t, ExitCapabilityFailed, ExitCodeForErrno(ErrCapabilityFailed))
	assert.Equal(t, "SysErrOutOfGas", SysErrOutOfGas.String())
	assert.Equal(t, "capability failed", ErrCapabilityFailed.String())
}
