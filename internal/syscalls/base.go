package syscalls

import (
	"github.com/Prajjawalk/ipc/internal/kernel"
	"github.com/tetratelabs/wazero/api"
)

// Base syscall module names.
const (
	ModuleIPLD    = "ipld"
	ModuleActor   = "actor"
	ModuleCrypto  = "crypto"
	ModuleDebug   = "debug"
	ModuleEvent   = "event"
	ModuleVM      = "vm"
	ModuleNetwork = "network"
	ModuleRand    = "rand"
	ModuleSelf    = "self"
	ModuleSend    = "send"
	ModuleGas     = "gas"
)

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

func sig(types ...api.ValueType) []api.ValueType { return types }

type definition[K any] struct {
	module string
	name   string
	params []api.ValueType
	fn     Func[K]
}

func baseDefinitions[K kernel.Kernel]() []definition[K] {
	return []definition[K]{
		{ModuleIPLD, "block_open", sig(i32, i32, i32), blockOpen[K]},
		{ModuleIPLD, "block_create", sig(i32, i64, i32, i32), blockCreate[K]},
		{ModuleIPLD, "block_read", sig(i32, i32, i32, i32, i32), blockRead[K]},
		{ModuleIPLD, "block_stat", sig(i32, i32), blockStat[K]},
		{ModuleIPLD, "block_link", sig(i32, i32, i64, i32, i32, i32), blockLink[K]},

		{ModuleActor, "resolve_address", sig(i32, i32, i32), resolveAddress[K]},
		{ModuleActor, "lookup_delegated_address", sig(i32, i64, i32, i32), lookupDelegatedAddress[K]},
		{ModuleActor, "get_actor_code_cid", sig(i32, i64, i32, i32), getActorCodeCID[K]},
		{ModuleActor, "next_actor_address", sig(i32, i32, i32), nextActorAddress[K]},
		{ModuleActor, "create_actor", sig(i64, i32, i32, i32, i32), createActor[K]},
		{ModuleActor, "get_builtin_actor_type", sig(i32, i32, i32), getBuiltinActorType[K]},
		{ModuleActor, "get_code_cid_for_type", sig(i32, i32, i32, i32), getCodeCIDForType[K]},
		{ModuleActor, "balance_of", sig(i32, i64), balanceOf[K]},
		{ModuleActor, "upgrade_actor", sig(i32, i32, i32, i32), upgradeActor[K]},

		{ModuleCrypto, "verify_signature", sig(i32, i32, i32, i32, i32, i32, i32, i32), verifySignature[K]},
		{ModuleCrypto, "recover_secp_public_key", sig(i32, i32, i32), recoverSecpPublicKey[K]},
		{ModuleCrypto, "hash", sig(i32, i64, i32, i32, i32, i32), hash[K]},

		{ModuleDebug, "log", sig(i32, i32), debugLog[K]},
		{ModuleDebug, "enabled", sig(i32), debugEnabled[K]},
		{ModuleDebug, "store_artifact", sig(i32, i32, i32, i32), storeArtifact[K]},

		{ModuleEvent, "emit_event", sig(i32, i32), emitEvent[K]},

		{ModuleVM, "message_context", sig(i32), messageContext[K]},

		{ModuleNetwork, "context", sig(i32), networkContext[K]},
		{ModuleNetwork, "tipset_cid", sig(i32, i64, i32, i32), tipsetCID[K]},

		{ModuleRand, "get_chain_randomness", sig(i32, i64), chainRandomness[K]},
		{ModuleRand, "get_beacon_randomness", sig(i32, i64), beaconRandomness[K]},

		{ModuleSelf, "root", sig(i32, i32, i32), selfRoot[K]},
		{ModuleSelf, "set_root", sig(i32, i32), selfSetRoot[K]},
		{ModuleSelf, "current_balance", sig(i32), selfCurrentBalance[K]},
		{ModuleSelf, "self_destruct", sig(i32), selfDestruct[K]},

		{ModuleSend, "send", sig(i32, i32, i32, i64, i32, i64, i64, i64, i64), send[K]},

		{ModuleGas, "charge", sig(i32, i32, i64), gasCharge[K]},
		{ModuleGas, "available", sig(i32), gasAvailable[K]},
	}
}

// LinkBase links every base capability syscall. Callers extending the
// kernel link their own syscalls after it; a conflicting key fails the link.
func LinkBase[K kernel.Kernel](l *Linker[K]) error {
	for _, d := range baseDefinitions[K]() {
		if err := l.Link(d.module, d.name, d.params, d.fn); err != nil {
			return err
		}
	}
	return nil
}

// BaseKeys lists the base syscall keys in link order.
func BaseKeys() []Key {
	defs := baseDefinitions[kernel.Kernel]()
	keys := make([]Key, len(defs))
	for i, d := range defs {
		keys[i] = Key{Module: d.module, Name: d.name}
	}
	return keys
}

// U32 narrows a raw i32 argument.
func U32(v uint64) uint32 { return uint32(v) } //nolint:gosec // i32 arguments occupy the low word

// I32 narrows a raw i32 argument preserving sign.
func I32(v uint64) int32 { return int32(uint32(v)) } //nolint:gosec // i32 arguments occupy the low word
