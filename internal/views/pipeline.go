package views

import (
	"slices"

	"supersim/internal/errors"
	"supersim/internal/snapshot"
)

// ReorderBuffer is the reorder buffer occupancy.
type ReorderBuffer struct {
	Capacity  int64         `json:"capacity"`
	Occupancy int           `json:"occupancy"`
	Entries   []snapshot.ID `json:"entries"`
}

// ReorderBuffer selects the reorder buffer occupancy. Entries stay identifiers.
func (s *Selectors) ReorderBuffer(snap *snapshot.Snapshot) (*ReorderBuffer, error) {
	v, err := s.memo(snap, "reorder_buffer", "", func() (interface{}, error) {
		obj, err := block(snap, snapshot.BlockReorderBuffer)
		if err != nil {
			return nil, err
		}
		entries, err := ids(obj, "reorderQueue")
		if err != nil {
			return nil, err
		}
		capacity, _ := obj.Int("bufferSize")
		return &ReorderBuffer{Capacity: capacity, Occupancy: len(entries), Entries: entries}, nil
	})
	if err != nil {
		return nil, err
	}
	rob := *v.(*ReorderBuffer)
	rob.Entries = slices.Clone(rob.Entries)
	return &rob, nil
}

// Fetch selects the resolved fetch stage.
func (s *Selectors) Fetch(snap *snapshot.Snapshot) (snapshot.Value, error) {
	return s.resolvedBlock(snap, snapshot.BlockFetch)
}

// Decode selects the resolved decode and dispatch stage.
func (s *Selectors) Decode(snap *snapshot.Snapshot) (snapshot.Value, error) {
	return s.resolvedBlock(snap, snapshot.BlockDecode)
}

func (s *Selectors) resolvedBlock(snap *snapshot.Snapshot, name string) (snapshot.Value, error) {
	v, err := s.memo(snap, "block", name, func() (interface{}, error) {
		obj, err := block(snap, name)
		if err != nil {
			return nil, err
		}
		return s.resolver(snap).Resolve(obj)
	})
	if err != nil {
		return nil, err
	}
	return v.(snapshot.Value), nil
}

// Object returns one identified object, resolved.
func (s *Selectors) Object(snap *snapshot.Snapshot, id snapshot.ID) (snapshot.Value, error) {
	v, err := s.memo(snap, "object", id.String(), func() (interface{}, error) {
		if _, ok := snap.Lookup(id); !ok {
			return nil, errors.Newf(errors.ObjectNotFound, "no object with identifier %d", id)
		}
		return s.resolver(snap).ResolveID(id)
	})
	if err != nil {
		return nil, err
	}
	return v.(snapshot.Value), nil
}
