package vm

import "fmt"

// MissingExportError reports an actor without a required export.
type MissingExportError struct {
	Actor  string
	Export string
}

func (e *MissingExportError) Error() string {
	return fmt.Sprintf("actor %s does not export %s", e.Actor, e.Export)
}

// UnlinkedSyscallError reports an import the syscall table does not provide.
type UnlinkedSyscallError struct {
	Actor  string
	Module string
	Name   string
}

func (e *UnlinkedSyscallError) Error() string {
	return fmt.Sprintf("actor %s imports %s::%s, which is not linked", e.Actor, e.Module, e.Name)
}

// SignatureMismatchError reports an import or export with the wrong type.
// Module is empty for exports.
type SignatureMismatchError struct {
	Actor  string
	Module string
	Name   string
}

func (e *SignatureMismatchError) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("actor %s exports %s with the wrong signature", e.Actor, e.Name)
	}
	return fmt.Sprintf("actor %s imports %s::%s with the wrong signature", e.Actor, e.Module, e.Name)
}

// IncompatibleABIError reports an actor built for another syscall ABI.
type IncompatibleABIError struct {
	Actor      string
	Constraint string
	Version    string
}

func (e *IncompatibleABIError) Error() string {
	return fmt.Sprintf("actor %s requires syscall ABI %s, host provides %s", e.Actor, e.Constraint, e.Version)
}
