package abi

import "fmt"

// ExitCode is the outcome of a message or a nested send.
// Codes below 16 are reserved for the system, 16 to 31 are common user
// errors, and actors define their own codes from FirstActorErrorCode up.
type ExitCode uint32

const (
	ExitOK ExitCode = 0

	SysErrSenderInvalid      ExitCode = 1
	SysErrSenderStateInvalid ExitCode = 2
	SysErrIllegalInstruction ExitCode = 4
	SysErrInvalidReceiver    ExitCode = 5
	SysErrInsufficientFunds  ExitCode = 6
	SysErrOutOfGas           ExitCode = 7
	SysErrIllegalExitCode    ExitCode = 9
	SysErrAssertionFailed    ExitCode = 10
	SysErrMissingReturn      ExitCode = 11

	UsrIllegalArgument   ExitCode = 16
	UsrNotFound          ExitCode = 17
	UsrForbidden         ExitCode = 18
	UsrInsufficientFunds ExitCode = 19
	UsrIllegalState      ExitCode = 20
	UsrSerialization     ExitCode = 21
	UsrUnhandledMessage  ExitCode = 22
	UsrUnspecified       ExitCode = 23
	UsrAssertionFailed   ExitCode = 24
	UsrReadOnly          ExitCode = 25

	FirstActorErrorCode ExitCode = 32
)

// ExitCapabilityFailed is returned by actors whose capability syscall failed.
const ExitCapabilityFailed ExitCode = FirstActorErrorCode

// IsSuccess reports whether the code is ExitOK.
func (c ExitCode) IsSuccess() bool { return c == ExitOK }

// IsSystemError reports whether the code is in the system-reserved range.
func (c ExitCode) IsSystemError() bool { return c != ExitOK && c < UsrIllegalArgument }

func (c ExitCode) String() string {
	switch c {
	case ExitOK:
		return "Ok"
	case SysErrSenderInvalid:
		return "SysErrSenderInvalid"
	case SysErrSenderStateInvalid:
		return "SysErrSenderStateInvalid"
	case SysErrIllegalInstruction:
		return "SysErrIllegalInstruction"
	case SysErrInvalidReceiver:
		return "SysErrInvalidReceiver"
	case SysErrInsufficientFunds:
		return "SysErrInsufficientFunds"
	case SysErrOutOfGas:
		return "SysErrOutOfGas"
	case SysErrIllegalExitCode:
		return "SysErrIllegalExitCode"
	case SysErrAssertionFailed:
		return "SysErrAssertionFailed"
	case SysErrMissingReturn:
		return "SysErrMissingReturn"
	case UsrIllegalArgument:
		return "UsrIllegalArgument"
	case UsrNotFound:
		return "UsrNotFound"
	case UsrForbidden:
		return "UsrForbidden"
	case UsrInsufficientFunds:
		return "UsrInsufficientFunds"
	case UsrIllegalState:
		return "UsrIllegalState"
	case UsrSerialization:
		return "UsrSerialization"
	case UsrUnhandledMessage:
		return "UsrUnhandledMessage"
	case UsrUnspecified:
		return "UsrUnspecified"
	case UsrAssertionFailed:
		return "UsrAssertionFailed"
	case UsrReadOnly:
		return "UsrReadOnly"
	}
	return fmt.Sprintf("ExitCode(%d)", uint32(c))
}

// ExitCodeForErrno maps a syscall errno surfaced by a guest into the exit
// code the guest aborts with when it has no better choice.
func ExitCodeForErrno(e ErrorNumber) ExitCode {
	switch e {
	case ErrOK:
		return ExitOK
	case ErrIllegalArgument, ErrIllegalCid, ErrIllegalCodec, ErrBufferTooSmall:
		return UsrIllegalArgument
	case ErrNotFound, ErrInvalidHandle:
		return UsrNotFound
	case ErrForbidden:
		return UsrForbidden
	case ErrInsufficientFunds:
		return UsrInsufficientFunds
	case ErrSerialization:
		return UsrSerialization
	case ErrReadOnly:
		return UsrReadOnly
	case ErrAssertionFailed:
		return UsrAssertionFailed
	case ErrCapabilityFailed:
		return ExitCapabilityFailed
	}
	return UsrUnspecified
}
