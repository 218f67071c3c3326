package abi

import (
	"encoding/binary"
	"fmt"
)

const (
	// MatrixBufferSize is the fixed capacity of the activity matrix parameter.
	MatrixBufferSize = 1000
	// ResultBufferSize is the fixed capacity of the encoded recommendation result.
	ResultBufferSize = 1000
	// FixedResultSize is the wire size of a FixedResult: a 4-byte length then the buffer.
	FixedResultSize = 4 + ResultBufferSize
)

// SizeError reports a buffer whose size does not match its declared bound.
type SizeError struct {
	What string
	Got  int
	Max  int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: size %d exceeds bound %d", e.What, e.Got, e.Max)
}

// MatrixBuffer carries a users x items activity matrix of byte weights in
// row-major order. Cells past users*items must be zero.
type MatrixBuffer [MatrixBufferSize]byte

// MarshalCBOR encodes the buffer as a byte string.
func (m MatrixBuffer) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(m[:])
}

// UnmarshalCBOR requires exactly MatrixBufferSize bytes.
func (m *MatrixBuffer) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := decMode.Unmarshal(data, &b); err != nil {
		return err
	}
	if len(b) != MatrixBufferSize {
		return &SizeError{What: "activity matrix", Got: len(b), Max: MatrixBufferSize}
	}
	copy(m[:], b)
	return nil
}

// PackActivity lays out rows into a MatrixBuffer. All rows must have the same
// length and the matrix must fit in the buffer.
func PackActivity(rows [][]uint8) (buf MatrixBuffer, users, items uint32, err error) {
	if len(rows) == 0 {
		return buf, 0, 0, fmt.Errorf("activity matrix has no rows")
	}
	width := len(rows[0])
	if width == 0 {
		return buf, 0, 0, fmt.Errorf("activity matrix has no columns")
	}
	if cells := len(rows) * width; cells > MatrixBufferSize {
		return buf, 0, 0, &SizeError{What: "activity matrix", Got: cells, Max: MatrixBufferSize}
	}
	for i, row := range rows {
		if len(row) != width {
			return buf, 0, 0, fmt.Errorf("activity matrix row %d has %d columns, want %d", i, len(row), width)
		}
		copy(buf[i*width:], row)
	}
	return buf, uint32(len(rows)), uint32(width), nil //nolint:gosec // bounded by MatrixBufferSize
}

// Unpack returns the users x items view of the buffer.
func (m *MatrixBuffer) Unpack(users, items uint32) ([][]uint8, error) {
	if err := ValidateShape(users, items); err != nil {
		return nil, err
	}
	cells := int(users) * int(items)
	for i := cells; i < MatrixBufferSize; i++ {
		if m[i] != 0 {
			return nil, fmt.Errorf("activity matrix has non-zero padding at cell %d", i)
		}
	}
	rows := make([][]uint8, users)
	for u := range rows {
		start := u * int(items)
		rows[u] = append([]uint8(nil), m[start:start+int(items)]...)
	}
	return rows, nil
}

// ValidateShape checks that users x items is non-empty and fits a MatrixBuffer.
func ValidateShape(users, items uint32) error {
	if users == 0 || items == 0 {
		return fmt.Errorf("activity matrix shape %dx%d is empty", users, items)
	}
	if cells := uint64(users) * uint64(items); cells > MatrixBufferSize {
		return &SizeError{What: "activity matrix", Got: int(cells), Max: MatrixBufferSize} //nolint:gosec // product of two uint32 fits in int64
	}
	return nil
}

// FixedResult is the bounded encoding of a variable-length result. Only
// Data[:Len] is meaningful; the rest is zero.
type FixedResult struct {
	Len  uint32
	Data [ResultBufferSize]byte
}

// NewFixedResult copies payload into a FixedResult. A payload larger than
// the buffer is an error; it is never truncated.
func NewFixedResult(payload []byte) (FixedResult, error) {
	var r FixedResult
	if len(payload) > ResultBufferSize {
		return r, &SizeError{What: "result", Got: len(payload), Max: ResultBufferSize}
	}
	r.Len = uint32(len(payload)) //nolint:gosec // bounded above
	copy(r.Data[:], payload)
	return r, nil
}

// Payload returns the meaningful prefix of the buffer.
func (r *FixedResult) Payload() ([]byte, error) {
	if r.Len > ResultBufferSize {
		return nil, &SizeError{What: "result", Got: int(r.Len), Max: ResultBufferSize}
	}
	return r.Data[:r.Len], nil
}

// MarshalBinary returns the FixedResultSize-byte wire form.
func (r *FixedResult) MarshalBinary() ([]byte, error) {
	if r.Len > ResultBufferSize {
		return nil, &SizeError{What: "result", Got: int(r.Len), Max: ResultBufferSize}
	}
	out := make([]byte, FixedResultSize)
	binary.LittleEndian.PutUint32(out, r.Len)
	copy(out[4:], r.Data[:])
	return out, nil
}

// UnmarshalBinary reads the wire form written by MarshalBinary.
func (r *FixedResult) UnmarshalBinary(b []byte) error {
	if len(b) != FixedResultSize {
		return fmt.Errorf("fixed result must be %d bytes, got %d", FixedResultSize, len(b))
	}
	n := binary.LittleEndian.Uint32(b)
	if n > ResultBufferSize {
		return &SizeError{What: "result", Got: int(n), Max: ResultBufferSize}
	}
	r.Len = n
	copy(r.Data[:], b[4:])
	return nil
}
