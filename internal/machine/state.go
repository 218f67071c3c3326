// Package machine applies messages to actor state through a kernel built
// per invocation.
package machine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/kernel"
)

// ErrNoTransaction is returned by Commit or Revert without a matching Begin.
var ErrNoTransaction = errors.New("no open state transaction")

type layer struct {
	// A nil entry records a deletion.
	actors map[abi.ActorID]*kernel.ActorState
	addrs  map[string]abi.ActorID
	nextID abi.ActorID
}

func newLayer(nextID abi.ActorID) *layer {
	return &layer{
		actors: make(map[abi.ActorID]*kernel.ActorState),
		addrs:  make(map[string]abi.ActorID),
		nextID: nextID,
	}
}

// StateTree is an in-memory kernel.StateTree with nested transactions.
// Writes go to the innermost transaction; Commit folds it into its parent
// and Revert discards it.
type StateTree struct {
	mu     sync.RWMutex
	layers []*layer
}

var _ kernel.StateTree = (*StateTree)(nil)

// NewStateTree creates an empty tree. Ids below FirstNonSingletonActorID are
// reserved for singletons and never issued by RegisterAddress.
func NewStateTree() *StateTree {
	return &StateTree{layers: []*layer{newLayer(abi.FirstNonSingletonActorID)}}
}

func (s *StateTree) top() *layer { return s.layers[len(s.layers)-1] }

// GetActor returns a copy of the actor's state, or nil if it does not exist.
func (s *StateTree) GetActor(id abi.ActorID) (*kernel.ActorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.layers) - 1; i >= 0; i-- {
		if act, ok := s.layers[i].actors[id]; ok {
			if act == nil {
				return nil, nil
			}
			return act.Clone(), nil
		}
	}
	return nil, nil
}

// SetActor stores a copy of act.
func (s *StateTree) SetActor(id abi.ActorID, act *kernel.ActorState) error {
	if act == nil {
		return fmt.Errorf("actor %d: nil state", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.top().actors[id] = act.Clone()
	return nil
}

// DeleteActor removes the actor. Its addresses stay registered.
func (s *StateTree) DeleteActor(id abi.ActorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.top().actors[id] = nil
	return nil
}

// LookupID resolves addr to an actor id. ID addresses resolve to themselves.
func (s *StateTree) LookupID(addr abi.Address) (abi.ActorID, bool, error) {
	if addr.IsUndef() {
		return 0, false, nil
	}
	if addr.Protocol() == abi.ID {
		id, err := addr.ID()
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.lookupLocked(addr)
	return id, ok, nil
}

func (s *StateTree) lookupLocked(addr abi.Address) (abi.ActorID, bool) {
	key := string(addr.Bytes())
	for i := len(s.layers) - 1; i >= 0; i-- {
		if id, ok := s.layers[i].addrs[key]; ok {
			return id, true
		}
	}
	return 0, false
}

// RegisterAddress assigns the next free id to addr, or returns the id it
// already has.
func (s *StateTree) RegisterAddress(addr abi.Address) (abi.ActorID, error) {
	if addr.IsUndef() {
		return 0, errors.New("cannot register the undefined address")
	}
	if addr.Protocol() == abi.ID {
		return addr.ID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.lookupLocked(addr); ok {
		return id, nil
	}
	top := s.top()
	id := top.nextID
	top.nextID++
	top.addrs[string(addr.Bytes())] = id
	return id, nil
}

// BindAddress maps addr to id. Rebinding an address to another id fails.
func (s *StateTree) BindAddress(addr abi.Address, id abi.ActorID) error {
	if addr.IsUndef() || addr.Protocol() == abi.ID {
		return fmt.Errorf("cannot bind address %s", addr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.lookupLocked(addr); ok {
		if existing == id {
			return nil
		}
		return fmt.Errorf("address %s is bound to actor %d", addr, existing)
	}
	top := s.top()
	top.addrs[string(addr.Bytes())] = id
	if id >= top.nextID {
		top.nextID = id + 1
	}
	return nil
}

// Begin opens a nested transaction.
func (s *StateTree) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append(s.layers, newLayer(s.top().nextID))
}

// Commit folds the innermost transaction into its parent.
func (s *StateTree) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.layers)
	if n < 2 {
		return ErrNoTransaction
	}
	child, parent := s.layers[n-1], s.layers[n-2]
	for id, act := range child.actors {
		parent.actors[id] = act
	}
	for k, id := range child.addrs {
		parent.addrs[k] = id
	}
	parent.nextID = child.nextID
	s.layers = s.layers[:n-1]
	return nil
}

// Revert discards the innermost transaction.
func (s *StateTree) Revert() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.layers)
	if n < 2 {
		return ErrNoTransaction
	}
	s.layers = s.layers[:n-1]
	return nil
}

// Depth returns the number of open transactions.
func (s *StateTree) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers) - 1
}

// Fork returns an independent tree holding the current view of s.
func (s *StateTree) Fork() *StateTree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flat := newLayer(s.top().nextID)
	for _, l := range s.layers {
		for id, act := range l.actors {
			if act == nil {
				delete(flat.actors, id)
				continue
			}
			flat.actors[id] = act.Clone()
		}
		for k, id := range l.addrs {
			flat.addrs[k] = id
		}
	}
	return &StateTree{layers: []*layer{flat}}
}

// ActorIDs returns every live actor id, unordered.
func (s *StateTree) ActorIDs() []abi.ActorID {
	fork := s.Fork()
	ids := make([]abi.ActorID, 0, len(fork.layers[0].actors))
	for id := range fork.layers[0].actors {
		ids = append(ids, id)
	}
	return ids
}
