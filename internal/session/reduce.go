// Package session holds the application state the rendering layer works against:
// the simulated code, the displayed snapshot and the current highlight. State
// changes go through Reduce, a pure function of the previous state and an action.
package session

import (
	"supersim/internal/errors"
	"supersim/internal/snapshot"
)

// State is the application state. Values are replaced, never mutated in place.
type State struct {
	Code     string
	Snapshot *snapshot.Snapshot
	// LastError is the error of the last failed simulation.
	LastError error

	HighlightedSimCode   *snapshot.ID
	HighlightedInputCode *snapshot.ID
}

// Tick is the tick of the displayed snapshot, or 0 without one.
func (s State) Tick() int64 {
	if s.Snapshot == nil {
		return 0
	}
	return s.Snapshot.Tick()
}

// Action is a state transition request.
type Action interface {
	actionName() string
}

// SetCode replaces the code that will be simulated.
type SetCode struct{ Code string }

// SimulationFulfilled installs a new snapshot.
type SimulationFulfilled struct{ Snapshot *snapshot.Snapshot }

// SimulationRejected drops the displayed snapshot.
type SimulationRejected struct{ Err error }

// HighlightSimCode highlights one simulated instruction, or clears with nil.
type HighlightSimCode struct{ ID *snapshot.ID }

// Unhighlight clears the highlight only if it is still ID's.
type Unhighlight struct{ ID *snapshot.ID }

func (SetCode) actionName() string             { return "setCode" }
func (SimulationFulfilled) actionName() string { return "simulationFulfilled" }
func (SimulationRejected) actionName() string  { return "simulationRejected" }
func (HighlightSimCode) actionName() string    { return "highlightSimCode" }
func (Unhighlight) actionName() string         { return "unhighlight" }

// Reduce returns the state after applying a.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case SetCode:
		s.Code = act.Code
	case SimulationFulfilled:
		s.Snapshot = act.Snapshot
		s.LastError = nil
		// identifiers carry no meaning across snapshots
		if s.HighlightedSimCode != nil {
			s.HighlightedInputCode = inputCodeOf(act.Snapshot, *s.HighlightedSimCode)
		}
	case SimulationRejected:
		s.Snapshot = nil
		s.LastError = act.Err
		if s.LastError == nil {
			s.LastError = errors.Newf(errors.NoSnapshot, "simulation failed")
		}
	case HighlightSimCode:
		s.HighlightedSimCode = copyID(act.ID)
		s.HighlightedInputCode = nil
		if act.ID != nil {
			s.HighlightedInputCode = inputCodeOf(s.Snapshot, *act.ID)
		}
	case Unhighlight:
		if sameID(s.HighlightedSimCode, act.ID) {
			s.HighlightedSimCode = nil
			s.HighlightedInputCode = nil
		}
	}
	return s
}

// inputCodeOf finds the input code instruction a simulated instruction came from.
func inputCodeOf(snap *snapshot.Snapshot, simCode snapshot.ID) *snapshot.ID {
	if snap == nil {
		return nil
	}
	v, ok := snap.Registry(snapshot.RegistrySimCode).ByID(simCode)
	if !ok {
		return nil
	}
	obj, ok := v.(*snapshot.Object)
	if !ok {
		return nil
	}
	switch in := field(obj, "inputCodeModel").(type) {
	case snapshot.Ref:
		id := in.Target
		return &id
	case *snapshot.Object:
		if in.HasID {
			id := in.ID
			return &id
		}
	}
	return nil
}

func field(obj *snapshot.Object, key string) snapshot.Value {
	v, _ := obj.Get(key)
	return v
}

func copyID(id *snapshot.ID) *snapshot.ID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func sameID(a, b *snapshot.ID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
