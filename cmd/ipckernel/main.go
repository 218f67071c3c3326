// Command ipckernel applies messages to actors running on a kernel that
// carries the recommendation syscall.
package main

func main() {
	Execute()
}
