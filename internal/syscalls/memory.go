package syscalls

// Memory is the linear memory a syscall reads arguments from and writes
// results to. api.Memory satisfies it for wasm guests; Buffer serves
// in-process actors.
type Memory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
	Size() uint32
}

// Buffer is a Memory backed by a byte slice.
type Buffer struct {
	data []byte
}

// NewBuffer allocates a zeroed Buffer of size bytes.
func NewBuffer(size uint32) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// Read returns a view of byteCount bytes at offset.
func (b *Buffer) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(b.data)) {
		return nil, false
	}
	return b.data[offset:end], true
}

// Write copies v to offset.
func (b *Buffer) Write(offset uint32, v []byte) bool {
	end := uint64(offset) + uint64(len(v))
	if end > uint64(len(b.data)) {
		return false
	}
	copy(b.data[offset:], v)
	return true
}

// Size returns the buffer length.
func (b *Buffer) Size() uint32 {
	return uint32(len(b.data)) //nolint:gosec // buffers are allocated from a uint32 size
}
