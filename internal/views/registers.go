package views

import (
	"maps"
	"slices"

	"supersim/internal/errors"
	"supersim/internal/snapshot"
)

const viewRegisters = "registers"

// RegisterMap is the register table keyed by canonical identifier and by
// architectural alias. Keys lists canonical identifiers first, then aliases, in
// the order they were added.
type RegisterMap struct {
	Keys    []string                    `json:"keys"`
	Entries map[string]*snapshot.Object `json:"entries"`
}

// Get returns the register stored under key.
func (m *RegisterMap) Get(key string) (*snapshot.Object, bool) {
	r, ok := m.Entries[key]
	return r, ok
}

// Registers joins the canonical register registry with the alias map of the
// unified register file. Canonical entries are seeded first and an alias never
// replaces an existing key. The returned map and keys belong to the caller.
func (s *Selectors) Registers(snap *snapshot.Snapshot) (*RegisterMap, error) {
	m, err := s.registers(snap)
	if err != nil {
		return nil, err
	}
	return &RegisterMap{Keys: slices.Clone(m.Keys), Entries: maps.Clone(m.Entries)}, nil
}

func (s *Selectors) registers(snap *snapshot.Snapshot) (*RegisterMap, error) {
	v, err := s.memo(snap, viewRegisters, "", func() (interface{}, error) {
		return buildRegisterMap(snap)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RegisterMap), nil
}

// Register looks up one register by identifier or alias.
func (s *Selectors) Register(snap *snapshot.Snapshot, key string) (*snapshot.Object, error) {
	m, err := s.registers(snap)
	if err != nil {
		return nil, err
	}
	r, ok := m.Get(key)
	if !ok {
		return nil, errors.Newf(errors.ObjectNotFound, "no register %q", key)
	}
	return r, nil
}

func buildRegisterMap(snap *snapshot.Snapshot) (*RegisterMap, error) {
	reg := snap.Registry(snapshot.RegistryRegisters)
	m := &RegisterMap{
		Keys:    make([]string, 0, reg.Len()),
		Entries: make(map[string]*snapshot.Object, reg.Len()),
	}

	for _, key := range reg.Keys() {
		v, _ := reg.Get(key)
		obj, ok := v.(*snapshot.Object)
		if !ok {
			return nil, errors.Newf(errors.MalformedSnapshot, "register %s is not an object", key)
		}
		m.Keys = append(m.Keys, key)
		m.Entries[key] = obj
	}

	file, err := block(snap, snapshot.BlockRegisterFile)
	if err != nil {
		return nil, err
	}
	aliases, ok := file.Object("registerMap")
	if !ok {
		return m, nil
	}

	var aliasErr error
	aliases.Range(func(alias string, target snapshot.Value) bool {
		id, ok := targetID(target)
		if !ok {
			aliasErr = errors.Newf(errors.MalformedSnapshot, "alias %q has no register identifier", alias)
			return false
		}
		v, found := reg.ByID(id)
		obj, isObj := v.(*snapshot.Object)
		if !found || !isObj {
			aliasErr = errors.Newf(errors.AliasTargetMissing, "register %d not found for alias %q", id, alias)
			return false
		}
		if _, exists := m.Entries[alias]; !exists {
			m.Keys = append(m.Keys, alias)
			m.Entries[alias] = obj
		}
		return true
	})
	if aliasErr != nil {
		return nil, aliasErr
	}
	return m, nil
}
