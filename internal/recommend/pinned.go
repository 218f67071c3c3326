package recommend

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	lru "github.com/hashicorp/golang-lru"
)

// ErrNoCommitment is returned for a request with no committed response.
var ErrNoCommitment = errors.New("no committed response for request")

// UnpinnedResponseError reports a response whose digest differs from the commitment.
type UnpinnedResponseError struct {
	Request [32]byte
	Got     [32]byte
	Want    [32]byte
}

func (e *UnpinnedResponseError) Error() string {
	return fmt.Sprintf("response %x for request %x does not match commitment %x", e.Got, e.Request, e.Want)
}

// Pinned makes a non-deterministic recommender usable in consensus: every
// response must match a digest committed ahead of time, so all hosts either
// return the same bytes or fail the same way. Verified responses are cached.
type Pinned struct {
	inner       Recommender
	commitments map[[32]byte][32]byte
	cache       *lru.Cache
}

// NewPinned wraps inner with request->response digest commitments.
func NewPinned(inner Recommender, commitments map[[32]byte][32]byte, cacheSize int) (*Pinned, error) {
	if inner == nil {
		return nil, errors.New("pinned recommender needs an inner recommender")
	}
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating response cache: %w", err)
	}
	pinned := make(map[[32]byte][32]byte, len(commitments))
	for k, v := range commitments {
		pinned[k] = v
	}
	return &Pinned{inner: inner, commitments: pinned, cache: cache}, nil
}

// Close closes the wrapped recommender.
func (p *Pinned) Close() error {
	return Close(p.inner)
}

// ParseCommitments decodes 0x-prefixed hex request and response digests.
func ParseCommitments(raw map[string]string) (map[[32]byte][32]byte, error) {
	out := make(map[[32]byte][32]byte, len(raw))
	for req, resp := range raw {
		reqDigest, err := decodeDigest(req)
		if err != nil {
			return nil, fmt.Errorf("request digest %q: %w", req, err)
		}
		respDigest, err := decodeDigest(resp)
		if err != nil {
			return nil, fmt.Errorf("response digest %q: %w", resp, err)
		}
		out[reqDigest] = respDigest
	}
	return out, nil
}

func decodeDigest(s string) ([32]byte, error) {
	var d [32]byte
	b, err := hexutil.Decode(s)
	if err != nil {
		return d, err
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("digest must be %d bytes, got %d", len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Deterministic is always true.
func (*Pinned) Deterministic() bool { return true }

// Recommend implements Recommender.
func (p *Pinned) Recommend(ctx context.Context, req Request) (Matrix, error) {
	reqDigest, err := RequestDigest(req)
	if err != nil {
		return nil, fmt.Errorf("hashing request: %w", err)
	}
	want, ok := p.commitments[reqDigest]
	if !ok {
		return nil, fmt.Errorf("%w %x", ErrNoCommitment, reqDigest)
	}
	if cached, ok := p.cache.Get(reqDigest); ok {
		return cloneMatrix(cached.(Matrix)), nil
	}

	m, err := p.inner.Recommend(ctx, req)
	if err != nil {
		return nil, err
	}
	got, err := ResponseDigest(m)
	if err != nil {
		return nil, fmt.Errorf("hashing response: %w", err)
	}
	if got != want {
		return nil, &UnpinnedResponseError{Request: reqDigest, Got: got, Want: want}
	}
	p.cache.Add(reqDigest, cloneMatrix(m))
	return m, nil
}

func cloneMatrix(m Matrix) Matrix {
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]int64(nil), row...)
	}
	return out
}
