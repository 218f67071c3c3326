package abi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ActorID is the numeric identity of an actor in the state tree.
type ActorID uint64

const (
	SystemActorID            ActorID = 0
	BurntFundsActorID        ActorID = 99
	FirstNonSingletonActorID ActorID = 100
)

// ChainEpoch is a chain height.
type ChainEpoch int64

// Protocol selects how an address payload is interpreted.
type Protocol byte

const (
	ID Protocol = iota
	SECP256K1
	Actor
	BLS
	Delegated
)

const (
	payloadHashLength      = 20
	maxSubaddressLength    = 54
	blsPublicKeyLength     = 48
	secpPublicKeyLength    = 65
	maxAddressBytesLength  = 1 + binary.MaxVarintLen64 + maxSubaddressLength
	addressPrefixMainnet   = "f"
	addressPrefixMalformed = "<malformed>"
)

// ErrUnknownProtocol is returned for address bytes with an unsupported protocol byte.
var ErrUnknownProtocol = errors.New("unknown address protocol")

// Address identifies an actor. The zero value is the undefined address.
// Address is comparable and can be used as a map key.
type Address struct {
	protocol Protocol
	payload  string
}

// Undef is the undefined address.
var Undef = Address{}

// NewIDAddress returns the ID address for id.
func NewIDAddress(id ActorID) Address {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, uint64(id))
	return Address{protocol: ID, payload: string(buf[:n])}
}

// NewSecp256k1Address derives an address from an uncompressed secp256k1 public key.
func NewSecp256k1Address(pubkey []byte) (Address, error) {
	if len(pubkey) != secpPublicKeyLength {
		return Undef, fmt.Errorf("secp256k1 public key must be %d bytes, got %d", secpPublicKeyLength, len(pubkey))
	}
	return Address{protocol: SECP256K1, payload: string(addressHash(pubkey))}, nil
}

// NewActorAddress derives an actor address from arbitrary seed bytes.
func NewActorAddress(seed []byte) Address {
	return Address{protocol: Actor, payload: string(addressHash(seed))}
}

// NewBLSAddress wraps a BLS public key.
func NewBLSAddress(pubkey []byte) (Address, error) {
	if len(pubkey) != blsPublicKeyLength {
		return Undef, fmt.Errorf("bls public key must be %d bytes, got %d", blsPublicKeyLength, len(pubkey))
	}
	return Address{protocol: BLS, payload: string(pubkey)}, nil
}

// NewDelegatedAddress returns an address managed by the namespace actor.
func NewDelegatedAddress(namespace ActorID, subaddr []byte) (Address, error) {
	if len(subaddr) > maxSubaddressLength {
		return Undef, fmt.Errorf("delegated subaddress too long: %d > %d", len(subaddr), maxSubaddressLength)
	}
	buf := make([]byte, binary.MaxVarintLen64, binary.MaxVarintLen64+len(subaddr))
	n := binary.PutUvarint(buf, uint64(namespace))
	return Address{protocol: Delegated, payload: string(append(buf[:n], subaddr...))}, nil
}

// AddressFromBytes decodes the protocol-prefixed byte form.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) == 0 {
		return Undef, errors.New("empty address")
	}
	if len(b) > maxAddressBytesLength {
		return Undef, fmt.Errorf("address too long: %d bytes", len(b))
	}
	proto, payload := Protocol(b[0]), b[1:]
	switch proto {
	case ID:
		id, n := binary.Uvarint(payload)
		if n <= 0 || n != len(payload) {
			return Undef, errors.New("invalid id address payload")
		}
		return NewIDAddress(ActorID(id)), nil
	case SECP256K1, Actor:
		if len(payload) != payloadHashLength {
			return Undef, fmt.Errorf("invalid hash address payload length %d", len(payload))
		}
	case BLS:
		if len(payload) != blsPublicKeyLength {
			return Undef, fmt.Errorf("invalid bls address payload length %d", len(payload))
		}
	case Delegated:
		_, n := binary.Uvarint(payload)
		if n <= 0 || len(payload)-n > maxSubaddressLength {
			return Undef, errors.New("invalid delegated address payload")
		}
	default:
		return Undef, fmt.Errorf("%w: %d", ErrUnknownProtocol, proto)
	}
	return Address{protocol: proto, payload: string(payload)}, nil
}

// Protocol returns the address protocol.
func (a Address) Protocol() Protocol { return a.protocol }

// Payload returns a copy of the address payload.
func (a Address) Payload() []byte { return []byte(a.payload) }

// IsUndef reports whether a is the undefined address.
func (a Address) IsUndef() bool { return a == Undef }

// Bytes returns the protocol-prefixed byte form.
func (a Address) Bytes() []byte {
	if a.IsUndef() {
		return nil
	}
	return append([]byte{byte(a.protocol)}, a.payload...)
}

// ID returns the actor id of an ID address.
func (a Address) ID() (ActorID, error) {
	if a.protocol != ID || a.IsUndef() {
		return 0, fmt.Errorf("not an id address: %s", a)
	}
	id, _ := binary.Uvarint([]byte(a.payload))
	return ActorID(id), nil
}

// Namespace returns the namespace and subaddress of a delegated address.
func (a Address) Namespace() (ActorID, []byte, error) {
	if a.protocol != Delegated {
		return 0, nil, fmt.Errorf("not a delegated address: %s", a)
	}
	ns, n := binary.Uvarint([]byte(a.payload))
	return ActorID(ns), []byte(a.payload[n:]), nil
}

func (a Address) String() string {
	if a.IsUndef() {
		return addressPrefixMalformed
	}
	if a.protocol == ID {
		id, _ := a.ID()
		return fmt.Sprintf("%s0%d", addressPrefixMainnet, id)
	}
	if a.protocol == Delegated {
		ns, sub, _ := a.Namespace()
		return fmt.Sprintf("%s4%d-%x", addressPrefixMainnet, ns, sub)
	}
	return fmt.Sprintf("%s%d%x", addressPrefixMainnet, a.protocol, a.payload)
}

// Equal reports whether both addresses have identical bytes.
func (a Address) Equal(b Address) bool {
	return bytes.Equal(a.Bytes(), b.Bytes())
}

func addressHash(data []byte) []byte {
	h, err := blake2b.New(payloadHashLength, nil)
	if err != nil {
		panic(err) // size is a valid constant
	}
	_, _ = h.Write(data)
	return h.Sum(nil)
}
