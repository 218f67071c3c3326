package abi

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// MethodNum selects the actor entry point a message invokes.
type MethodNum uint64

const (
	MethodSend        MethodNum = 0
	MethodConstructor MethodNum = 1

	firstExportedMethod = 1 << 24
)

// MethodHash derives the method number for an exported method name
// (FRC-42): the first 4-byte big-endian window of blake2b-512("1|"+name)
// that is not in the reserved range.
func MethodHash(name string) (MethodNum, error) {
	if name == "Constructor" {
		return MethodConstructor, nil
	}
	if err := validateMethodName(name); err != nil {
		return 0, err
	}

	digest := blake2b.Sum512([]byte("1|" + name))
	for i := 0; i+4 <= len(digest); i += 4 {
		id := binary.BigEndian.Uint32(digest[i : i+4])
		if id >= firstExportedMethod {
			return MethodNum(id), nil
		}
	}
	return 0, fmt.Errorf("no valid method number in digest of %q", name)
}

// MustMethodHash is MethodHash for names known at compile time.
func MustMethodHash(name string) MethodNum {
	m, err := MethodHash(name)
	if err != nil {
		panic(err)
	}
	return m
}

func validateMethodName(name string) error {
	if name == "" {
		return fmt.Errorf("method name is empty")
	}
	if c := name[0]; c < 'A' || c > 'Z' {
		return fmt.Errorf("method name %q must start with an uppercase letter", name)
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return fmt.Errorf("method name %q contains illegal character %q", name, c)
		}
	}
	return nil
}
