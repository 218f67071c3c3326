package vm

import (
	"github.com/Prajjawalk/ipc/abi"
	"github.com/tetratelabs/wazero/api"
)

// Memory layout of the test guests.
const (
	retOffset     = 1024
	versionOffset = 2048
	matrixOffset  = 3000
	allocOffset   = 4096
	resultOffset  = 8192
)

type guestImport struct {
	module string
	name   string
	params []api.ValueType
}

// guest assembles a minimal wasm actor: one page of memory, the allocate,
// abi_version and invoke exports, and optional syscall imports.
type guest struct {
	imports      []guestImport
	invoke       []byte
	invokeParams []api.ValueType
	version      string
	ret          []byte
	omit         string
}

func (g guest) build() []byte {
	invokeParams := g.invokeParams
	if invokeParams == nil {
		invokeParams = invokeSig
	}
	types := [][]byte{
		funcType(allocateSig, i32),
		funcType(nil, i64),
		funcType(invokeParams, i64),
	}
	var imports [][]byte
	for i, imp := range g.imports {
		types = append(types, funcType(imp.params, i32))
		imports = append(imports, cat(name(imp.module), name(imp.name), []byte{0x00}, uleb(uint64(3+i))))
	}
	base := uint64(len(g.imports))

	var exports [][]byte
	add := func(n string, kind byte, idx uint64) {
		if n != g.omit {
			exports = append(exports, cat(name(n), []byte{kind}, uleb(idx)))
		}
	}
	add(ExportMemory, 0x02, 0)
	add(ExportAllocate, 0x00, base)
	add(ExportABIVersion, 0x00, base+1)
	add(ExportInvoke, 0x00, base+2)

	version := g.version
	if version == "" {
		version = "^" + abi.Version
	}
	bodies := [][]byte{
		body(i32Const(allocOffset)),
		body(i64Const(packed(versionOffset, len(version)))),
		body(g.invoke),
	}
	data := [][]byte{
		cat([]byte{0x00}, i32Const(versionOffset), []byte{0x0b}, raw([]byte(version))),
	}
	if len(g.ret) > 0 {
		data = append(data, cat([]byte{0x00}, i32Const(retOffset), []byte{0x0b}, raw(g.ret)))
	}

	return cat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(1, vec(types)),
		section(2, vec(imports)),
		section(3, vec([][]byte{{0x00}, {0x01}, {0x02}})),
		section(5, vec([][]byte{{0x00, 0x01}})),
		section(7, vec(exports)),
		section(10, vec(bodies)),
		section(11, vec(data)),
	)
}

func packed(ptr, n int) int64 {
	return int64(abi.PackPtrLen(uint32(ptr), uint32(n))) //nolint:gosec // test offsets
}

func returnCode(retLen int) []byte {
	return i64Const(packed(retOffset, retLen))
}

// echoCode returns the params buffer as the result.
func echoCode() []byte {
	return cat(
		localGet(2), []byte{0xad}, // i64.extend_i32_u
		i64Const(32), []byte{0x86}, // i64.shl
		localGet(3), []byte{0xad},
		[]byte{0x84}, // i64.or
	)
}

// customSyscallCode calls my_custom_syscall on a zero 2x2 matrix, traps on a
// non-zero errno and otherwise returns the staged result.
func customSyscallCode(retLen int) []byte {
	return cat(
		i32Const(resultOffset),
		i64Const(0),
		i32Const(2),
		i32Const(2),
		i32Const(matrixOffset),
		i32Const(abi.MatrixBufferSize),
		i64Const(1),
		[]byte{0x10, 0x00},             // call 0
		[]byte{0x04, 0x40, 0x00, 0x0b}, // if (errno) unreachable
		returnCode(retLen),
	)
}

func funcType(params, results []api.ValueType) []byte {
	return cat([]byte{0x60}, raw(params), raw(results))
}

func body(code []byte) []byte {
	content := cat([]byte{0x00}, code, []byte{0x0b})
	return cat(uleb(uint64(len(content))), content)
}

func section(id byte, payload []byte) []byte {
	return cat([]byte{id}, uleb(uint64(len(payload))), payload)
}

func vec(items [][]byte) []byte {
	return cat(uleb(uint64(len(items))), cat(items...))
}

func raw(b []byte) []byte {
	return cat(uleb(uint64(len(b))), b)
}

func name(s string) []byte {
	return raw([]byte(s))
}

func i32Const(v int32) []byte  { return append([]byte{0x41}, sleb(int64(v))...) }
func i64Const(v int64) []byte  { return append([]byte{0x42}, sleb(v)...) }
func localGet(i uint32) []byte { return append([]byte{0x20}, uleb(uint64(i))...) }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
