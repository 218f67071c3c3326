// Package abi defines the values shared by the host kernel and guest actors:
// syscall error numbers, exit codes, addresses, method numbers and the
// fixed-size buffers that cross the syscall boundary.
package abi

import "fmt"

// ErrorNumber is the errno a syscall returns to the guest. Zero means success.
type ErrorNumber uint32

const (
	ErrOK ErrorNumber = iota
	ErrIllegalArgument
	ErrIllegalOperation
	ErrLimitExceeded
	ErrAssertionFailed
	ErrInsufficientFunds
	ErrNotFound
	ErrInvalidHandle
	ErrIllegalCid
	ErrIllegalCodec
	ErrSerialization
	ErrForbidden
	ErrBufferTooSmall
	ErrReadOnly
)

// ErrCapabilityFailed reports that an external capability (such as the
// recommendation payload) ran and failed. It sits outside the base range so
// it never collides with numbers the base kernel may add.
const ErrCapabilityFailed ErrorNumber = 32

var errorNames = map[ErrorNumber]string{
	ErrOK:                "ok",
	ErrIllegalArgument:   "illegal argument",
	ErrIllegalOperation:  "illegal operation",
	ErrLimitExceeded:     "limit exceeded",
	ErrAssertionFailed:   "assertion failed",
	ErrInsufficientFunds: "insufficient funds",
	ErrNotFound:          "not found",
	ErrInvalidHandle:     "invalid handle",
	ErrIllegalCid:        "illegal cid",
	ErrIllegalCodec:      "illegal codec",
	ErrSerialization:     "serialization",
	ErrForbidden:         "forbidden",
	ErrBufferTooSmall:    "buffer too small",
	ErrReadOnly:          "read only",
	ErrCapabilityFailed:  "capability failed",
}

func (e ErrorNumber) String() string {
	if name, ok := errorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("errno(%d)", uint32(e))
}
