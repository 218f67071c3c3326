package abi

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// TokenAmountSize is the wire size of a token amount: an unsigned 128-bit
// little-endian integer split into low and high words.
const TokenAmountSize = 16

var maxTokenAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// NewTokenAmount returns v as a token amount.
func NewTokenAmount(v int64) *big.Int { return big.NewInt(v) }

// EncodeTokenAmount writes v in its wire form.
func EncodeTokenAmount(v *big.Int) ([TokenAmountSize]byte, error) {
	var out [TokenAmountSize]byte
	if v == nil {
		return out, nil
	}
	if v.Sign() < 0 || v.Cmp(maxTokenAmount) > 0 {
		return out, fmt.Errorf("token amount %s out of range", v)
	}
	words := new(big.Int).Set(v)
	lo := new(big.Int).And(words, new(big.Int).SetUint64(^uint64(0))).Uint64()
	hi := words.Rsh(words, 64).Uint64()
	binary.LittleEndian.PutUint64(out[:8], lo)
	binary.LittleEndian.PutUint64(out[8:], hi)
	return out, nil
}

// DecodeTokenAmount reads a token amount from its wire form.
func DecodeTokenAmount(b [TokenAmountSize]byte) *big.Int {
	lo := binary.LittleEndian.Uint64(b[:8])
	hi := binary.LittleEndian.Uint64(b[8:])
	v := new(big.Int).SetUint64(hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(lo))
}
