// Command customsyscall-actor is the wasm build of the customsyscall actor.
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o customsyscall.wasm ./cmd/customsyscall-actor
//
// It exports invoke, allocate and abi_version, and imports
// my_custom_kernel.my_custom_syscall and debug.log from the host.
package main

// ABIConstraint is the range of host ABI versions the actor links against.
const ABIConstraint = "^1.0.0"

func main() {}
