// Package views derives the read-only projections the rendering layer consumes
// from a snapshot. Selectors never mutate the snapshot; results are memoized per
// snapshot identity and selector arguments.
//
// Top-level lists and maps of a view are copied for each caller. Resolved
// snapshot values and cache sets are shared with the memo and must not be
// modified.
package views

import (
	"sync"

	"supersim/internal/errors"
	"supersim/internal/metrics"
	"supersim/internal/resolve"
	"supersim/internal/snapshot"
)

// Selectors computes views over snapshots and remembers the results for the most
// recent snapshot. Passing a different snapshot drops every cached view.
type Selectors struct {
	opts resolve.Options

	mu      sync.Mutex
	snap    *snapshot.Snapshot
	entries map[memoKey]memoEntry
	hits    uint64
	misses  uint64
}

type memoKey struct {
	view string
	arg  string
}

type memoEntry struct {
	val interface{}
	err error
}

// NewSelectors creates a Selectors resolving references with opts.
func NewSelectors(opts resolve.Options) *Selectors {
	return &Selectors{opts: opts, entries: make(map[memoKey]memoEntry)}
}

// Options returns the resolver options the selectors were built with.
func (s *Selectors) Options() resolve.Options { return s.opts }

// Stats reports memo hits and misses since creation.
func (s *Selectors) Stats() (hits, misses uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses
}

// memo returns the cached result of view(arg) for snap or computes it. Errors are
// cached as well; a construction error does not go away by asking again.
func (s *Selectors) memo(snap *snapshot.Snapshot, view, arg string, compute func() (interface{}, error)) (interface{}, error) {
	if snap == nil {
		return nil, errors.Newf(errors.NoSnapshot, "no snapshot is loaded")
	}
	key := memoKey{view: view, arg: arg}

	s.mu.Lock()
	if s.snap != snap {
		s.snap = snap
		s.entries = make(map[memoKey]memoEntry)
	}
	if e, ok := s.entries[key]; ok {
		s.hits++
		s.mu.Unlock()
		metrics.ViewLookups.WithLabelValues(view, "hit").Inc()
		return e.val, e.err
	}
	s.misses++
	s.mu.Unlock()
	metrics.ViewLookups.WithLabelValues(view, "miss").Inc()

	val, err := compute()

	s.mu.Lock()
	if s.snap == snap {
		s.entries[key] = memoEntry{val: val, err: err}
	}
	s.mu.Unlock()
	return val, err
}

func (s *Selectors) resolver(snap *snapshot.Snapshot) *resolve.Resolver {
	return resolve.New(snap, s.opts)
}

// block returns a required top-level object block.
func block(snap *snapshot.Snapshot, name string) (*snapshot.Object, error) {
	v, ok := snap.Block(name)
	if !ok {
		return nil, errors.Newf(errors.BlockMissing, "block %q is absent", name)
	}
	obj, ok := v.(*snapshot.Object)
	if !ok {
		return nil, errors.Newf(errors.MalformedSnapshot, "block %q must be an object, got %s", name, v.Kind())
	}
	return obj, nil
}

// targetID reads an identifier stored as a reference, a number, a numeric string
// or an identified value.
func targetID(v snapshot.Value) (snapshot.ID, bool) {
	switch t := v.(type) {
	case snapshot.Ref:
		return t.Target, true
	case snapshot.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return snapshot.ID(n), true
	case snapshot.String:
		id, err := snapshot.ParseID(string(t))
		return id, err == nil
	case *snapshot.Object:
		if t == nil {
			return 0, false
		}
		return t.ID, t.HasID
	case snapshot.Array:
		return t.ID, t.HasID
	}
	return 0, false
}

// ids collects the identifiers of every item of a list field.
func ids(obj *snapshot.Object, field string) ([]snapshot.ID, error) {
	v, ok := obj.Get(field)
	if !ok {
		return []snapshot.ID{}, nil
	}
	switch t := v.(type) {
	case snapshot.Null:
		return []snapshot.ID{}, nil
	case snapshot.Array:
		out := make([]snapshot.ID, 0, len(t.Items))
		for i, item := range t.Items {
			id, ok := targetID(item)
			if !ok {
				return nil, errors.Newf(errors.MalformedSnapshot, "%s[%d] is not a reference", field, i)
			}
			out = append(out, id)
		}
		return out, nil
	}
	return nil, errors.Newf(errors.MalformedSnapshot, "%s must be a list, got %s", field, v.Kind())
}
