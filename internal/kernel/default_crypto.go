package kernel

import (
	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/blake2b"
)

// eamNamespace is the actor id that manages Ethereum-style delegated addresses.
const eamNamespace abi.ActorID = 10

const (
	hashSha256    = multihash.SHA2_256
	hashKeccak256 = multihash.KECCAK_256
)

// VerifySignature checks that signer produced signature over plaintext.
func (k *DefaultKernel) VerifySignature(sigType SignatureType, signature []byte, signer abi.Address, plaintext []byte) (bool, error) {
	timer, err := k.charge(gas.OnVerifySignature, gas.Vars{Bytes: len(plaintext)})
	if err != nil {
		return false, err
	}
	defer timer.Stop()

	if len(signature) != crypto.SignatureLength {
		return false, nil
	}

	switch sigType {
	case SigTypeSecp256k1:
		digest := blake2b.Sum256(plaintext)
		pub, err := crypto.Ecrecover(digest[:], signature)
		if err != nil {
			return false, nil
		}
		addr, err := abi.NewSecp256k1Address(pub)
		if err != nil {
			return false, nil
		}
		return addr == signer, nil
	case SigTypeDelegated:
		pub, err := crypto.Ecrecover(crypto.Keccak256(plaintext), signature)
		if err != nil {
			return false, nil
		}
		addr, err := ethAddress(pub)
		if err != nil {
			return false, nil
		}
		return addr == signer, nil
	default:
		return false, Syscallf(abi.ErrIllegalArgument, "unsupported signature type %d", sigType)
	}
}

func ethAddress(pub []byte) (abi.Address, error) {
	key, err := crypto.UnmarshalPubkey(pub)
	if err != nil {
		return abi.Undef, err
	}
	eth := crypto.PubkeyToAddress(*key)
	return abi.NewDelegatedAddress(eamNamespace, eth.Bytes())
}

// RecoverSecpPublicKey recovers the uncompressed public key from a signature.
func (k *DefaultKernel) RecoverSecpPublicKey(hash [32]byte, signature [65]byte) ([65]byte, error) {
	var out [65]byte
	timer, err := k.charge(gas.OnRecoverSecpPublicKey, gas.Vars{})
	if err != nil {
		return out, err
	}
	defer timer.Stop()

	pub, err := crypto.Ecrecover(hash[:], signature[:])
	if err != nil {
		return out, WrapSyscallError(abi.ErrIllegalArgument, "invalid signature", err)
	}
	copy(out[:], pub)
	return out, nil
}

// Hash computes the digest of data with the multihash function code.
func (k *DefaultKernel) Hash(code uint64, data []byte) ([]byte, error) {
	switch code {
	case blake2b256, hashSha256, hashKeccak256:
	default:
		return nil, Syscallf(abi.ErrIllegalArgument, "unsupported hash function %#x", code)
	}
	timer, err := k.charge(gas.OnHashing, gas.Vars{Bytes: len(data)})
	if err != nil {
		return nil, err
	}
	defer timer.Stop()

	mh, err := multihash.Sum(data, code, -1)
	if err != nil {
		return nil, NewFatalError("hashing", err)
	}
	decoded, err := multihash.Decode(mh)
	if err != nil {
		return nil, NewFatalError("decoding multihash", err)
	}
	return decoded.Digest, nil
}
