package abi

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Version is the syscall ABI version the host links and guests declare.
const Version = "1.0.0"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding keeps encoded params and results byte-stable
	// across hosts, which the pinned-response hashes depend on.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("abi: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxNestedLevels:  16,
		MaxArrayElements: 4096,
		MaxMapPairs:      1024,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("abi: cbor dec mode: %v", err))
	}
}

// Marshal encodes v with the canonical encoding used on the wire.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes canonical wire bytes into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Return is what a guest hands back from invoke.
type Return struct {
	_        struct{} `cbor:",toarray"`
	ExitCode ExitCode
	Data     []byte
	Message  string
}

// PackPtrLen packs a guest pointer into the high word and a length into the low word.
func PackPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// UnpackPtrLen is the inverse of PackPtrLen.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed) //nolint:gosec // G115: wasm32 pointers and lengths are 32-bit
}
