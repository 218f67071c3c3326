package machine

import (
	"fmt"

	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Builtin actor types.
const (
	TypeSystem        uint32 = 1
	TypeAccount       uint32 = 2
	TypeCustomSyscall uint32 = 100
)

// builtinNames are the code names of the builtin types.
var builtinNames = map[uint32]string{
	TypeSystem:        "system",
	TypeAccount:       "account",
	TypeCustomSyscall: "customsyscall",
}

// CodeCID returns the code CID of a named actor: an identity multihash of
// "ipc/builtin/<name>".
func CodeCID(name string) (cid.Cid, error) {
	mh, err := multihash.Sum([]byte("ipc/builtin/"+name), multihash.IDENTITY, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("code cid for %s: %w", name, err)
	}
	return cid.NewCidV1(kernel.CodecIPLDRaw, mh), nil
}

// MustCodeCID is CodeCID for names known to be valid.
func MustCodeCID(name string) cid.Cid {
	c, err := CodeCID(name)
	if err != nil {
		panic(err)
	}
	return c
}

// BuiltinRegistry maps builtin types to code CIDs.
type BuiltinRegistry struct {
	byType map[uint32]cid.Cid
	byCode map[cid.Cid]uint32
}

var _ kernel.Builtins = (*BuiltinRegistry)(nil)

// NewBuiltinRegistry registers every builtin type.
func NewBuiltinRegistry() *BuiltinRegistry {
	r := &BuiltinRegistry{byType: make(map[uint32]cid.Cid), byCode: make(map[cid.Cid]uint32)}
	for typ, name := range builtinNames {
		c := MustCodeCID(name)
		r.byType[typ] = c
		r.byCode[c] = typ
	}
	return r
}

func (r *BuiltinRegistry) TypeOf(code cid.Cid) (uint32, bool) {
	typ, ok := r.byCode[code]
	return typ, ok
}

func (r *BuiltinRegistry) CodeOf(typ uint32) (cid.Cid, bool) {
	c, ok := r.byType[typ]
	return c, ok
}
