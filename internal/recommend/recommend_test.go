package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeros(users, items int) Matrix {
	m := make(Matrix, users)
	for i := range m {
		m[i] = make([]int64, items)
	}
	return m
}

func TestLocal_AllZeroActivity(t *testing.T) {
	t.Parallel()

	out, err := NewLocal().Recommend(context.Background(), Request{UserIndex: 3, Activity: zeros(10, 10), K: 5})
	require.NoError(t, err)
	assert.Equal(t, Matrix{{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}}, out)

	again, err := NewLocal().Recommend(context.Background(), Request{UserIndex: 3, Activity: zeros(10, 10), K: 5})
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestLocal_RanksBySimilarUsers(t *testing.T) {
	t.Parallel()

	activity := Matrix{
		{1, 1, 0, 0},
		{1, 1, 1, 0},
		{0, 0, 0, 5},
		{1, 0, 0, 1},
	}
	out, err := NewLocal().Recommend(context.Background(), Request{UserIndex: 0, Activity: activity, K: 2})
	require.NoError(t, err)
	// user 1 shares two items with user 0 and adds item 2; user 3 shares one and adds item 3
	assert.Equal(t, Matrix{{2, 2}, {3, 1}}, out)
}

func TestLocal_FewerCandidatesThanK(t *testing.T) {
	t.Parallel()

	out, err := NewLocal().Recommend(context.Background(), Request{UserIndex: 0, Activity: Matrix{{1, 1, 0}, {0, 0, 1}}, K: 3})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestLocal_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocal().Recommend(ctx, Request{UserIndex: 0, Activity: zeros(2, 2), K: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  Request
	}{
		{"empty", Request{K: 1}},
		{"no items", Request{Activity: Matrix{{}}, K: 1}},
		{"ragged", Request{Activity: Matrix{{1, 2}, {1}}, K: 1}},
		{"negative user", Request{UserIndex: -1, Activity: zeros(2, 2), K: 1}},
		{"user out of range", Request{UserIndex: 2, Activity: zeros(2, 2), K: 1}},
		{"zero k", Request{Activity: zeros(2, 2), K: 0}},
		{"k too large", Request{Activity: zeros(2, 2), K: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Error(t, tt.req.Validate())
		})
	}
}

func TestMatrixEncoding(t *testing.T) {
	t.Parallel()

	enc, err := EncodeMatrix(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80}, enc, "an empty result still encodes")

	m := Matrix{{1, -2}, {3, 4}}
	enc, err = EncodeMatrix(m)
	require.NoError(t, err)
	back, err := DecodeMatrix(enc)
	require.NoError(t, err)
	assert.Equal(t, m, back)

	_, err = DecodeMatrix([]byte{0xff})
	assert.Error(t, err)
}

func TestDigests(t *testing.T) {
	t.Parallel()

	a, err := RequestDigest(Request{UserIndex: 1, Activity: zeros(2, 2), K: 1})
	require.NoError(t, err)
	b, err := RequestDigest(Request{UserIndex: 1, Activity: zeros(2, 2), K: 1})
	require.NoError(t, err)
	c, err := RequestDigest(Request{UserIndex: 0, Activity: zeros(2, 2), K: 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

type fakeCaller struct {
	calls  atomic.Int32
	errs   []error
	result []byte
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	n := int(f.calls.Add(1))
	if call.To == nil || len(call.Data) < 4 {
		return nil, errors.New("malformed call")
	}
	if n <= len(f.errs) {
		return nil, f.errs[n-1]
	}
	return f.result, nil
}

func newTestEthereum(t *testing.T, caller *fakeCaller, rows [][]int64, opts ...EthereumOption) *Ethereum {
	t.Helper()
	e, err := NewEthereum(caller, "0x00000000000000000000000000000000000000aa", opts...)
	require.NoError(t, err)
	out, err := e.abi.Methods[methodGetRecommendations].Outputs.Pack(rows)
	require.NoError(t, err)
	caller.result = out
	return e
}

func TestEthereum_Recommend(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{}
	e := newTestEthereum(t, caller, [][]int64{{7, 3}, {2, 1}})
	assert.False(t, e.Deterministic())

	out, err := e.Recommend(context.Background(), Request{UserIndex: 0, Activity: zeros(2, 2), K: 2})
	require.NoError(t, err)
	assert.Equal(t, Matrix{{7, 3}, {2, 1}}, out)
	assert.Equal(t, int32(1), caller.calls.Load())
}

func TestEthereum_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{errs: []error{
		fmt.Errorf("dial: %w", syscall.ECONNREFUSED),
		rpc.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"},
	}}
	e := newTestEthereum(t, caller, [][]int64{{1, 1}},
		WithRetry(RetryPolicy{Attempts: 3, Strategy: BackoffNone, InitialDelay: time.Millisecond}))

	out, err := e.Recommend(context.Background(), Request{UserIndex: 0, Activity: zeros(1, 2), K: 1})
	require.NoError(t, err)
	assert.Equal(t, Matrix{{1, 1}}, out)
	assert.Equal(t, int32(3), caller.calls.Load())
}

func TestEthereum_PermanentErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{errs: []error{errors.New("execution reverted")}}
	e := newTestEthereum(t, caller, nil,
		WithRetry(RetryPolicy{Attempts: 5, Strategy: BackoffNone, InitialDelay: time.Millisecond}))

	_, err := e.Recommend(context.Background(), Request{UserIndex: 0, Activity: zeros(1, 2), K: 1})
	assert.ErrorContains(t, err, "execution reverted")
	assert.Equal(t, int32(1), caller.calls.Load())
}

func TestEthereum_MalformedResponse(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{}
	e := newTestEthereum(t, caller, nil)
	caller.result = []byte{0x01}

	_, err := e.Recommend(context.Background(), Request{UserIndex: 0, Activity: zeros(1, 2), K: 1})
	assert.Error(t, err)
}

func TestNewEthereum_InvalidContract(t *testing.T) {
	t.Parallel()

	_, err := NewEthereum(&fakeCaller{}, "not-an-address")
	assert.Error(t, err)
}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		strategy BackoffType
		attempt  int
		want     time.Duration
	}{
		{BackoffNone, 3, time.Second},
		{BackoffLinear, 3, 3 * time.Second},
		{BackoffLinear, 30, 10 * time.Second},
		{BackoffExponential, 2, 4 * time.Second},
		{BackoffExponential, 63, 10 * time.Second},
		{"unknown", 5, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CalculateBackoff(tt.strategy, tt.attempt, time.Second, 10*time.Second), "%s/%d", tt.strategy, tt.attempt)
	}
}

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	assert.False(t, isTransientError(nil))
	assert.False(t, isTransientError(context.DeadlineExceeded))
	assert.True(t, isTransientError(syscall.ECONNRESET))
	assert.True(t, isTransientError(rpc.HTTPError{StatusCode: 429}))
	assert.False(t, isTransientError(rpc.HTTPError{StatusCode: 400}))
	assert.False(t, isTransientError(errors.New("boom")))
}

type countingRecommender struct {
	calls atomic.Int32
	out   Matrix
}

func (c *countingRecommender) Recommend(context.Context, Request) (Matrix, error) {
	c.calls.Add(1)
	return c.out, nil
}
func (*countingRecommender) Deterministic() bool { return false }

type closingCaller struct {
	fakeCaller
	closed atomic.Int32
}

func (c *closingCaller) Close() { c.closed.Add(1) }

func TestClose(t *testing.T) {
	t.Parallel()

	const contract = "0x00000000000000000000000000000000000000aa"
	tests := []struct {
		name  string
		build func(t *testing.T, caller *closingCaller) Recommender
		want  int32
	}{
		{
			name: "ethereum closes its client",
			build: func(t *testing.T, caller *closingCaller) Recommender {
				e, err := NewEthereum(caller, contract)
				require.NoError(t, err)
				return e
			},
			want: 1,
		},
		{
			name: "pinned closes the wrapped payload",
			build: func(t *testing.T, caller *closingCaller) Recommender {
				e, err := NewEthereum(caller, contract)
				require.NoError(t, err)
				p, err := NewPinned(e, nil, 0)
				require.NoError(t, err)
				return p
			},
			want: 1,
		},
		{
			name:  "local holds nothing",
			build: func(*testing.T, *closingCaller) Recommender { return NewLocal() },
		},
		{
			name:  "nil payload",
			build: func(*testing.T, *closingCaller) Recommender { return nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			caller := &closingCaller{}
			require.NoError(t, Close(tt.build(t, caller)))
			assert.Equal(t, tt.want, caller.closed.Load())
		})
	}

	t.Run("caller without close", func(t *testing.T) {
		t.Parallel()
		e, err := NewEthereum(&fakeCaller{}, contract)
		require.NoError(t, err)
		assert.NoError(t, e.Close())
	})

	t.Run("dialed client", func(t *testing.T) {
		t.Parallel()
		e, err := DialEthereum(context.Background(), "http://127.0.0.1:1", contract)
		require.NoError(t, err)
		assert.NoError(t, e.Close())
	})

	t.Run("dial with bad contract", func(t *testing.T) {
		t.Parallel()
		_, err := DialEthereum(context.Background(), "http://127.0.0.1:1", "not-an-address")
		assert.Error(t, err)
	})
}

func TestPinned(t *testing.T) {
	t.Parallel()

	req := Request{UserIndex: 0, Activity: zeros(2, 2), K: 1}
	reqDigest, err := RequestDigest(req)
	require.NoError(t, err)
	good := Matrix{{1, 9}}
	respDigest, err := ResponseDigest(good)
	require.NoError(t, err)

	t.Run("matching response is cached", func(t *testing.T) {
		t.Parallel()
		inner := &countingRecommender{out: good}
		p, err := NewPinned(inner, map[[32]byte][32]byte{reqDigest: respDigest}, 4)
		require.NoError(t, err)
		assert.True(t, p.Deterministic())

		for i := 0; i < 3; i++ {
			out, err := p.Recommend(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, good, out)
		}
		assert.Equal(t, int32(1), inner.calls.Load())
	})

	t.Run("mismatched response fails", func(t *testing.T) {
		t.Parallel()
		inner := &countingRecommender{out: Matrix{{1, 8}}}
		p, err := NewPinned(inner, map[[32]byte][32]byte{reqDigest: respDigest}, 4)
		require.NoError(t, err)

		_, err = p.Recommend(context.Background(), req)
		var unpinned *UnpinnedResponseError
		require.ErrorAs(t, err, &unpinned)
		assert.Equal(t, respDigest, unpinned.Want)
	})

	t.Run("no commitment never calls out", func(t *testing.T) {
		t.Parallel()
		inner := &countingRecommender{out: good}
		p, err := NewPinned(inner, nil, 0)
		require.NoError(t, err)

		_, err = p.Recommend(context.Background(), req)
		assert.ErrorIs(t, err, ErrNoCommitment)
		assert.Zero(t, inner.calls.Load())
	})
}

func TestParseCommitments(t *testing.T) {
	t.Parallel()

	digest := "0x" + fmt.Sprintf("%064x", 1)
	got, err := ParseCommitments(map[string]string{digest: digest})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = ParseCommitments(map[string]string{"0x01": digest})
	assert.Error(t, err)
	_, err = ParseCommitments(map[string]string{digest: "zz"})
	assert.Error(t, err)
}
