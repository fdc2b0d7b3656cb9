package views

import (
	"slices"
	"sort"
	"strings"

	"supersim/internal/errors"
	"supersim/internal/snapshot"
)

// Unit is a functional-unit class.
type Unit string

const (
	UnitALU       Unit = "alu"
	UnitFP        Unit = "fp"
	UnitBranch    Unit = "branch"
	UnitLoadStore Unit = "ls"
)

// Units lists every unit class.
func Units() []Unit {
	return []Unit{UnitALU, UnitFP, UnitBranch, UnitLoadStore}
}

var unitBlocks = map[Unit]struct{ issue, units string }{
	UnitALU:       {snapshot.BlockAluIssue, snapshot.BlockAluUnits},
	UnitFP:        {snapshot.BlockFpIssue, snapshot.BlockFpUnits},
	UnitBranch:    {snapshot.BlockBranchIssue, snapshot.BlockBranchUnits},
	UnitLoadStore: {snapshot.BlockLoadStoreIssue, snapshot.BlockLoadStoreUnits},
}

// ParseUnit accepts a unit class name. Unknown names are UNKNOWN_UNIT.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alu", "fx", "int", "integer":
		return UnitALU, nil
	case "fp", "float":
		return UnitFP, nil
	case "branch":
		return UnitBranch, nil
	case "ls", "l_s", "loadstore", "load-store":
		return UnitLoadStore, nil
	}
	return "", errors.Newf(errors.UnknownUnit, "unknown unit kind %q", s)
}

func (u Unit) blocks() (issue, units string, err error) {
	b, ok := unitBlocks[u]
	if !ok {
		return "", "", errors.Newf(errors.UnknownUnit, "unknown unit kind %q", string(u))
	}
	return b.issue, b.units, nil
}

// IssueWindow is the issue window of one unit class.
type IssueWindow struct {
	Unit Unit `json:"unit"`
	// Block is the resolved issue window block.
	Block snapshot.Value `json:"block"`
	// Instructions lists the identifiers of instructions waiting for operands,
	// in ascending order.
	Instructions []snapshot.ID `json:"instructions"`
	Count        int           `json:"count"`
}

// IssueWindow selects the issue window of unit.
func (s *Selectors) IssueWindow(snap *snapshot.Snapshot, unit Unit) (*IssueWindow, error) {
	issueBlock, _, err := unit.blocks()
	if err != nil {
		return nil, err
	}
	v, err := s.memo(snap, "issue_window", string(unit), func() (interface{}, error) {
		obj, err := block(snap, issueBlock)
		if err != nil {
			return nil, err
		}
		resolved, err := s.resolver(snap).Resolve(obj)
		if err != nil {
			return nil, err
		}
		waiting, err := validityIDs(obj)
		if err != nil {
			return nil, err
		}
		return &IssueWindow{Unit: unit, Block: resolved, Instructions: waiting, Count: len(waiting)}, nil
	})
	if err != nil {
		return nil, err
	}
	w := *v.(*IssueWindow)
	w.Instructions = slices.Clone(w.Instructions)
	return &w, nil
}

// validityIDs returns the keys of argumentValidityMap as sorted identifiers.
func validityIDs(obj *snapshot.Object) ([]snapshot.ID, error) {
	out := []snapshot.ID{}
	m, ok := obj.Object("argumentValidityMap")
	if !ok {
		return out, nil
	}
	for _, key := range m.Keys() {
		id, err := snapshot.ParseID(key)
		if err != nil {
			return nil, errors.Newf(errors.MalformedSnapshot, "argumentValidityMap key %q is not an identifier", key)
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// FunctionUnits is the functional-unit group of one unit class.
type FunctionUnits struct {
	Unit  Unit             `json:"unit"`
	Units []snapshot.Value `json:"units"`
}

// FunctionUnits selects the functional units of unit, resolved.
func (s *Selectors) FunctionUnits(snap *snapshot.Snapshot, unit Unit) (*FunctionUnits, error) {
	_, unitsBlock, err := unit.blocks()
	if err != nil {
		return nil, err
	}
	v, err := s.memo(snap, "function_units", string(unit), func() (interface{}, error) {
		raw, ok := snap.Block(unitsBlock)
		if !ok {
			return nil, errors.Newf(errors.BlockMissing, "block %q is absent", unitsBlock)
		}
		list, ok := raw.(snapshot.Array)
		if !ok {
			return nil, errors.Newf(errors.MalformedSnapshot, "block %q must be a list, got %s", unitsBlock, raw.Kind())
		}
		resolved, err := s.resolver(snap).Resolve(list)
		if err != nil {
			return nil, err
		}
		return &FunctionUnits{Unit: unit, Units: resolved.(snapshot.Array).Items}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*FunctionUnits), nil
}
