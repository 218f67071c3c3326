// Package recommend provides the payloads behind the recommendation syscall.
package recommend

import (
	"context"
	"fmt"
	"io"

	"github.com/Prajjawalk/ipc/abi"
	"golang.org/x/crypto/blake2b"
)

// Matrix is a dense row-major matrix of signed scores.
type Matrix [][]int64

// Request asks for the top K items for one user of an activity matrix.
type Request struct {
	_         struct{} `cbor:",toarray"`
	UserIndex int64
	Activity  Matrix
	K         int64
}

// Recommender computes recommendations. Implementations must be safe for
// concurrent use.
type Recommender interface {
	Recommend(ctx context.Context, req Request) (Matrix, error)
	// Deterministic reports whether equal requests always yield equal
	// results on every host.
	Deterministic() bool
}

// Close releases any connection r holds. Recommenders without one are left alone.
func Close(r Recommender) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Validate checks the request shape.
func (r Request) Validate() error {
	users := len(r.Activity)
	if users == 0 {
		return fmt.Errorf("activity matrix is empty")
	}
	items := len(r.Activity[0])
	if items == 0 {
		return fmt.Errorf("activity matrix has no items")
	}
	for i, row := range r.Activity {
		if len(row) != items {
			return fmt.Errorf("activity row %d has %d items, want %d", i, len(row), items)
		}
	}
	if r.UserIndex < 0 || r.UserIndex >= int64(users) {
		return fmt.Errorf("user index %d out of range [0, %d)", r.UserIndex, users)
	}
	if r.K <= 0 || r.K > int64(items) {
		return fmt.Errorf("k %d out of range [1, %d]", r.K, items)
	}
	return nil
}

// EncodeMatrix returns the canonical encoding of m.
func EncodeMatrix(m Matrix) ([]byte, error) {
	if m == nil {
		m = Matrix{}
	}
	return abi.Marshal(m)
}

// DecodeMatrix parses bytes produced by EncodeMatrix.
func DecodeMatrix(b []byte) (Matrix, error) {
	var m Matrix
	if err := abi.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = Matrix{}
	}
	return m, nil
}

// RequestDigest is the blake2b-256 digest of the canonical request encoding.
func RequestDigest(req Request) ([32]byte, error) {
	b, err := abi.Marshal(req)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(b), nil
}

// ResponseDigest is the blake2b-256 digest of the canonical result encoding.
func ResponseDigest(m Matrix) ([32]byte, error) {
	b, err := EncodeMatrix(m)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(b), nil
}

// ActivityFromBytes widens byte weights into a Matrix.
func ActivityFromBytes(rows [][]uint8) Matrix {
	m := make(Matrix, len(rows))
	for i, row := range rows {
		m[i] = make([]int64, len(row))
		for j, v := range row {
			m[i][j] = int64(v)
		}
	}
	return m
}
