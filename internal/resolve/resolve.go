// Package resolve expands snapshot references into a self-contained value tree.
//
// Resolution never mutates its input. Every Ref is replaced by a freshly built copy of
// the identified value it names, recursively, so shared objects are expanded once per
// use site. A reference leading back into an object that is still being expanded is a
// cycle; depending on the policy it becomes a snapshot.Cycle marker or an error.
package resolve

import (
	"fmt"
	"strings"

	"supersim/internal/errors"
	"supersim/internal/snapshot"
)

// DefaultMaxDepth bounds the nesting depth of a resolved tree.
const DefaultMaxDepth = 256

// CyclePolicy selects what happens when a reference closes a cycle.
type CyclePolicy int

const (
	// CycleMarker substitutes snapshot.Cycle{Target} for the closing reference.
	CycleMarker CyclePolicy = iota
	// CycleError fails resolution with REFERENCE_CYCLE.
	CycleError
)

func (p CyclePolicy) String() string {
	switch p {
	case CycleError:
		return "error"
	default:
		return "marker"
	}
}

// ParseCyclePolicy parses "marker" or "error". The empty string selects the default.
func ParseCyclePolicy(s string) (CyclePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "marker":
		return CycleMarker, nil
	case "error":
		return CycleError, nil
	}
	return CycleMarker, fmt.Errorf("unknown cycle policy %q (expected marker or error)", s)
}

// Options configures a Resolver.
type Options struct {
	Cycles   CyclePolicy
	MaxDepth int
}

// DefaultOptions returns the marker policy with DefaultMaxDepth.
func DefaultOptions() Options {
	return Options{Cycles: CycleMarker, MaxDepth: DefaultMaxDepth}
}

// Resolver resolves values against one registry.
type Resolver struct {
	lookup snapshot.Lookup
	opts   Options
}

// New creates a Resolver. A non-positive MaxDepth selects DefaultMaxDepth.
func New(lookup snapshot.Lookup, opts Options) *Resolver {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Resolver{lookup: lookup, opts: opts}
}

// Resolve resolves v with the default options.
func Resolve(v snapshot.Value, lookup snapshot.Lookup) (snapshot.Value, error) {
	return New(lookup, DefaultOptions()).Resolve(v)
}

// Options returns the effective options.
func (r *Resolver) Options() Options {
	return r.opts
}

// Resolve returns a copy of v with every reference replaced by its resolved target.
func (r *Resolver) Resolve(v snapshot.Value) (snapshot.Value, error) {
	w := &walker{r: r, onPath: make(map[snapshot.ID]bool)}
	return w.value(v, 0)
}

// ResolveID resolves the identified value with the given ID.
func (r *Resolver) ResolveID(id snapshot.ID) (snapshot.Value, error) {
	return r.Resolve(snapshot.Ref{Target: id})
}

// ResolveObject resolves an identified value that must be an object.
func (r *Resolver) ResolveObject(id snapshot.ID) (*snapshot.Object, error) {
	v, err := r.ResolveID(id)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*snapshot.Object)
	if !ok {
		return nil, errors.Newf(errors.MalformedSnapshot, "identifier %d is a %s, not an object", id, v.Kind())
	}
	return obj, nil
}

// ContainsRefs reports whether any unresolved reference remains in v.
func ContainsRefs(v snapshot.Value) bool {
	return snapshot.CountRefs(v) > 0
}

type walker struct {
	r      *Resolver
	onPath map[snapshot.ID]bool
	path   []snapshot.ID
}

func (w *walker) push(id snapshot.ID) {
	w.onPath[id] = true
	w.path = append(w.path, id)
}

func (w *walker) pop(id snapshot.ID) {
	delete(w.onPath, id)
	w.path = w.path[:len(w.path)-1]
}

func (w *walker) value(v snapshot.Value, depth int) (snapshot.Value, error) {
	if depth > w.r.opts.MaxDepth {
		return nil, errors.Newf(errors.ResolutionTooDeep, "resolution exceeded depth %d", w.r.opts.MaxDepth)
	}

	switch t := v.(type) {
	case snapshot.Ref:
		if w.onPath[t.Target] {
			if w.r.opts.Cycles == CycleError {
				return nil, errors.Newf(errors.ReferenceCycle, "reference %d closes a cycle", t.Target).
					WithDetails(map[string]interface{}{"path": append([]snapshot.ID(nil), w.path...)})
			}
			return snapshot.Cycle{Target: t.Target}, nil
		}
		target, ok := w.r.lookup.Lookup(t.Target)
		if !ok {
			return nil, errors.Newf(errors.UnresolvedReference, "reference %d not found in registry", t.Target)
		}
		return w.value(target, depth+1)

	case *snapshot.Object:
		if t == nil {
			return snapshot.Null{}, nil
		}
		if t.HasID {
			w.push(t.ID)
			defer w.pop(t.ID)
		}
		fields := make([]snapshot.Field, 0, t.Len())
		var err error
		t.Range(func(key string, fv snapshot.Value) bool {
			var rv snapshot.Value
			if rv, err = w.value(fv, depth+1); err != nil {
				return false
			}
			fields = append(fields, snapshot.Field{Key: key, Value: rv})
			return true
		})
		if err != nil {
			return nil, err
		}
		return snapshot.NewObject(t.ID, t.HasID, t.Type, fields), nil

	case snapshot.Array:
		if t.HasID {
			w.push(t.ID)
			defer w.pop(t.ID)
		}
		items := make([]snapshot.Value, len(t.Items))
		for i, item := range t.Items {
			rv, err := w.value(item, depth+1)
			if err != nil {
				return nil, err
			}
			items[i] = rv
		}
		return snapshot.Array{ID: t.ID, HasID: t.HasID, Items: items}, nil

	case nil:
		return snapshot.Null{}, nil
	}
	return v, nil
}
