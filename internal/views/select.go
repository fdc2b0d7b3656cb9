package views

import (
	"supersim/internal/errors"
	"supersim/internal/snapshot"
)

// View names accepted by Select.
const (
	ViewRegisters = "registers"
	ViewProgram   = "program"
	ViewIssue     = "issue"
	ViewUnits     = "units"
	ViewCache     = "cache"
	ViewROB       = "rob"
	ViewFetch     = "fetch"
	ViewDecode    = "decode"
	ViewObject    = "object"
)

// Names lists every view Select accepts.
func Names() []string {
	return []string{ViewRegisters, ViewProgram, ViewIssue, ViewUnits, ViewCache, ViewROB, ViewFetch, ViewDecode, ViewObject}
}

// Select runs the named view against snap. arg is the unit class for issue and
// units, an optional register key for registers and the identifier for object.
func (s *Selectors) Select(snap *snapshot.Snapshot, view, arg string) (interface{}, error) {
	switch view {
	case ViewRegisters:
		if arg != "" {
			return s.Register(snap, arg)
		}
		return s.Registers(snap)
	case ViewProgram:
		return s.ProgramWithLabels(snap)
	case ViewIssue, ViewUnits:
		unit, err := ParseUnit(arg)
		if err != nil {
			return nil, err
		}
		if view == ViewIssue {
			return s.IssueWindow(snap, unit)
		}
		return s.FunctionUnits(snap, unit)
	case ViewCache:
		return s.Cache(snap)
	case ViewROB:
		return s.ReorderBuffer(snap)
	case ViewFetch:
		return s.Fetch(snap)
	case ViewDecode:
		return s.Decode(snap)
	case ViewObject:
		id, err := snapshot.ParseID(arg)
		if err != nil {
			return nil, errors.Newf(errors.InvalidRequest, "invalid object id %q", arg)
		}
		return s.Object(snap, id)
	}
	return nil, errors.Newf(errors.InvalidRequest, "unknown view %q", view)
}
