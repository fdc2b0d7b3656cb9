package snapshot

import (
	"bytes"
	"io"
	"sort"

	"supersim/internal/errors"
)

// Named top-level blocks of a CPU state.
const (
	BlockFetch             = "instructionFetchBlock"
	BlockDecode            = "decodeAndDispatchBlock"
	BlockReorderBuffer     = "reorderBufferState"
	BlockAluIssue          = "aluIssueWindowBlock"
	BlockFpIssue           = "fpIssueWindowBlock"
	BlockBranchIssue       = "branchIssueWindowBlock"
	BlockLoadStoreIssue    = "loadStoreIssueWindowBlock"
	BlockAluUnits          = "arithmeticFunctionUnitBlocks"
	BlockFpUnits           = "fpFunctionUnitBlocks"
	BlockBranchUnits       = "branchFunctionUnitBlocks"
	BlockLoadStoreUnits    = "loadStoreFunctionUnitBlocks"
	BlockCache             = "cache"
	BlockRegisterFile      = "unifiedRegisterFileBlock"
	BlockInstructionMemory = "instructionMemoryBlock"
	BlockManagerRegistry   = "managerRegistry"
)

// FieldTick is the cycle counter of a CPU state.
const FieldTick = "tick"

// Registry kinds found under the manager registry.
const (
	RegistryInputCode           = "inputCodeManager"
	RegistrySimCode             = "simCodeManager"
	RegistryRegisters           = "registerModelManager"
	RegistryInstructionFunction = "instructionFunctionManager"
)

var registryKinds = []string{
	RegistryInputCode,
	RegistrySimCode,
	RegistryRegisters,
	RegistryInstructionFunction,
}

// Lookup finds identified values by ID.
type Lookup interface {
	Lookup(id ID) (Value, bool)
}

// Arena is a plain Lookup over a map.
type Arena map[ID]Value

// Lookup implements Lookup.
func (a Arena) Lookup(id ID) (Value, bool) {
	v, ok := a[id]
	return v, ok
}

// Registry is one kind-partitioned map of identified objects, keyed the way the
// backend keyed it (decimal identifiers for every manager it ships).
type Registry struct {
	kind    string
	keys    []string
	entries map[string]Value
	arena   Arena
}

// Kind returns the manager name this registry was built from.
func (r *Registry) Kind() string { return r.kind }

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.keys) }

// Keys returns the entry keys in wire order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the entry for key. An entry shipped as a reference is followed one
// level so that callers always receive the identified object itself.
func (r *Registry) Get(key string) (Value, bool) {
	v, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	if ref, isRef := v.(Ref); isRef {
		return r.arena.Lookup(ref.Target)
	}
	return v, true
}

// ByID is Get keyed by identifier.
func (r *Registry) ByID(id ID) (Value, bool) {
	return r.Get(id.String())
}

// Snapshot is the immutable CPU state for one tick.
type Snapshot struct {
	tick       int64
	root       *Object
	arena      Arena
	registries map[string]*Registry
}

// Decode reads a CPU state document and builds a Snapshot from it.
func Decode(r io.Reader) (*Snapshot, error) {
	root, err := DecodeValue(r)
	if err != nil {
		return nil, errors.New(errors.MalformedSnapshot, "cannot decode cpu state", err)
	}
	return New(root)
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte) (*Snapshot, error) {
	return Decode(bytes.NewReader(data))
}

// New indexes a decoded CPU state. Every identified value is added to the arena,
// and every reference must name one of them.
func New(root Value) (*Snapshot, error) {
	obj, ok := root.(*Object)
	if !ok || obj == nil {
		return nil, errors.Newf(errors.MalformedSnapshot, "cpu state must be an object, got %s", kindOf(root))
	}

	arena, err := Index(obj)
	if err != nil {
		return nil, err
	}

	s := &Snapshot{
		root:       obj,
		arena:      arena,
		registries: make(map[string]*Registry, len(registryKinds)),
	}
	if tick, ok := obj.Int(FieldTick); ok {
		s.tick = tick
	}

	mr, _ := s.Block(BlockManagerRegistry)
	managers, _ := mr.(*Object)
	for _, kind := range registryKinds {
		reg, err := buildRegistry(kind, managers, arena)
		if err != nil {
			return nil, err
		}
		s.registries[kind] = reg
	}
	return s, nil
}

// Index collects every identified value reachable from v and checks that each
// reference names one of them.
func Index(v Value) (Arena, error) {
	arena := make(Arena)
	var refs []ID
	var dupErr error
	add := func(id ID, v Value) {
		if _, seen := arena[id]; seen && dupErr == nil {
			dupErr = errors.Newf(errors.MalformedSnapshot, "identifier %d defined twice", id)
		}
		arena[id] = v
	}
	Walk(v, func(x Value) bool {
		switch t := x.(type) {
		case *Object:
			if t.HasID {
				add(t.ID, t)
			}
		case Array:
			if t.HasID {
				add(t.ID, t)
			}
		case Ref:
			refs = append(refs, t.Target)
		}
		return true
	})
	if dupErr != nil {
		return nil, dupErr
	}
	for _, id := range refs {
		if _, ok := arena[id]; !ok {
			return nil, errors.Newf(errors.UnresolvedReference, "reference %d has no identified object", id)
		}
	}
	return arena, nil
}

func buildRegistry(kind string, managers *Object, arena Arena) (*Registry, error) {
	reg := &Registry{kind: kind, entries: map[string]Value{}, arena: arena}
	if managers == nil {
		return reg, nil
	}
	raw, ok := managers.Get(kind)
	if !ok {
		return reg, nil
	}
	raw = deref(raw, arena)

	add := func(key string, v Value) {
		if _, seen := reg.entries[key]; !seen {
			reg.keys = append(reg.keys, key)
		}
		reg.entries[key] = v
	}

	switch m := raw.(type) {
	case Null:
	case *Object:
		m.Range(func(key string, v Value) bool {
			add(key, v)
			return true
		})
	case Array:
		// Some managers ship as a plain list; key them by identifier.
		for _, item := range m.Items {
			id, ok := identify(item)
			if !ok {
				return nil, errors.Newf(errors.MalformedSnapshot, "%s entry without identifier", kind)
			}
			add(id.String(), item)
		}
	default:
		return nil, errors.Newf(errors.MalformedSnapshot, "%s must be a map, got %s", kind, kindOf(raw))
	}
	return reg, nil
}

func identify(v Value) (ID, bool) {
	switch t := v.(type) {
	case *Object:
		return t.ID, t.HasID
	case Array:
		return t.ID, t.HasID
	case Ref:
		return t.Target, true
	}
	return 0, false
}

func deref(v Value, l Lookup) Value {
	if ref, ok := v.(Ref); ok {
		if target, found := l.Lookup(ref.Target); found {
			return target
		}
	}
	return v
}

func kindOf(v Value) string {
	if v == nil {
		return "nothing"
	}
	return v.Kind().String()
}

// Tick returns the simulated cycle this state belongs to.
func (s *Snapshot) Tick() int64 { return s.tick }

// Root returns the top-level CPU state object.
func (s *Snapshot) Root() *Object { return s.root }

// Lookup returns the identified value with the given ID.
func (s *Snapshot) Lookup(id ID) (Value, bool) {
	return s.arena.Lookup(id)
}

// Len returns the number of identified values.
func (s *Snapshot) Len() int { return len(s.arena) }

// IDs returns every identifier in ascending order.
func (s *Snapshot) IDs() []ID {
	ids := make([]ID, 0, len(s.arena))
	for id := range s.arena {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Block returns a named top-level block. A block shipped as a reference is
// followed one level.
func (s *Snapshot) Block(name string) (Value, bool) {
	v, ok := s.root.Get(name)
	if !ok {
		return nil, false
	}
	if _, isNull := v.(Null); isNull {
		return nil, false
	}
	return deref(v, s.arena), true
}

// Registry returns the registry of the given kind. Kinds missing from the
// state yield an empty registry.
func (s *Snapshot) Registry(kind string) *Registry {
	if reg, ok := s.registries[kind]; ok {
		return reg
	}
	return &Registry{kind: kind, entries: map[string]Value{}, arena: s.arena}
}

// Marshal re-encodes the snapshot in its wire form.
func (s *Snapshot) Marshal() ([]byte, error) {
	return Marshal(s.root)
}
