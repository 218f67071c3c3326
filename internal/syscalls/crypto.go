package syscalls

import (
	"context"

	"github.com/Prajjawalk/ipc/internal/kernel"
)

// verify_signature(ret, sig_type, sig_ptr, sig_len, signer_ptr, signer_len, plain_ptr, plain_len) -> ret {valid u32}
func verifySignature[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	signature, err := c.Read(U32(args[2]), U32(args[3]))
	if err != nil {
		return err
	}
	signer, err := c.ReadAddress(U32(args[4]), U32(args[5]))
	if err != nil {
		return err
	}
	plaintext, err := c.Read(U32(args[6]), U32(args[7]))
	if err != nil {
		return err
	}
	ok, err := c.Kernel.VerifySignature(kernel.SignatureType(U32(args[1])), signature, signer, plaintext)
	if err != nil {
		return err
	}
	var valid uint32
	if ok {
		valid = 1
	}
	return c.WriteUint32(U32(args[0]), valid)
}

// recover_secp_public_key(ret, hash_ptr, sig_ptr) -> ret {pubkey [65]byte}
func recoverSecpPublicKey[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	h, err := c.Read(U32(args[1]), 32)
	if err != nil {
		return err
	}
	s, err := c.Read(U32(args[2]), 65)
	if err != nil {
		return err
	}
	var digest [32]byte
	var signature [65]byte
	copy(digest[:], h)
	copy(signature[:], s)

	pub, err := c.Kernel.RecoverSecpPublicKey(digest, signature)
	if err != nil {
		return err
	}
	return c.Write(U32(args[0]), pub[:])
}

// hash(ret, code, data_ptr, data_len, digest_ptr, digest_len) -> ret {len u32}
func hash[K kernel.Kernel](_ context.Context, c *Context[K], args []uint64) error {
	data, err := c.Read(U32(args[2]), U32(args[3]))
	if err != nil {
		return err
	}
	digest, err := c.Kernel.Hash(args[1], data)
	if err != nil {
		return err
	}
	n, err := c.WriteBounded(U32(args[4]), U32(args[5]), digest)
	if err != nil {
		return err
	}
	return c.WriteUint32(U32(args[0]), n)
}
