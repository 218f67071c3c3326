//go:build wasip1

package sdk

import "unsafe"

//go:wasmimport debug log
func debugLog(msgPtr, msgLen uint32) uint32

// DebugLog writes msg through the host's debug log syscall.
func DebugLog(msg string) {
	if msg == "" {
		return
	}
	b := []byte(msg)
	_ = debugLog(uint32(uintptr(unsafe.Pointer(&b[0]))), uint32(len(b)))
}
