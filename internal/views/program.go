package views

import (
	"encoding/json"
	"slices"

	"supersim/internal/errors"
	"supersim/internal/snapshot"
)

const viewProgram = "program"

// ProgramEntry is either a label or a reference to an input code instruction.
type ProgramEntry struct {
	Label string
	ID    snapshot.ID
}

// IsLabel reports whether the entry is a label.
func (e ProgramEntry) IsLabel() bool { return e.Label != "" }

// MarshalJSON writes labels as strings and instructions as their identifier.
func (e ProgramEntry) MarshalJSON() ([]byte, error) {
	if e.IsLabel() {
		return json.Marshal(e.Label)
	}
	return json.Marshal(int64(e.ID))
}

// ProgramWithLabels returns the instruction memory with each label placed right
// before the first instruction it points to. Labels pointing outside the program
// go to the end. The returned slice belongs to the caller.
func (s *Selectors) ProgramWithLabels(snap *snapshot.Snapshot) ([]ProgramEntry, error) {
	v, err := s.memo(snap, viewProgram, "", func() (interface{}, error) {
		return buildProgram(snap)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]ProgramEntry)), nil
}

func buildProgram(snap *snapshot.Snapshot) ([]ProgramEntry, error) {
	mem, err := block(snap, snapshot.BlockInstructionMemory)
	if err != nil {
		return nil, err
	}
	code, err := ids(mem, "code")
	if err != nil {
		return nil, err
	}

	out := make([]ProgramEntry, 0, len(code))
	for _, id := range code {
		out = append(out, ProgramEntry{ID: id})
	}

	labels, ok := mem.Object("labels")
	if !ok {
		return out, nil
	}

	var labelErr error
	labels.Range(func(name string, target snapshot.Value) bool {
		id, ok := targetID(target)
		if !ok {
			labelErr = errors.Newf(errors.MalformedSnapshot, "label %q has no target", name)
			return false
		}
		out = spliceLabel(out, name, id)
		return true
	})
	if labelErr != nil {
		return nil, labelErr
	}
	return out, nil
}

func spliceLabel(entries []ProgramEntry, label string, target snapshot.ID) []ProgramEntry {
	at := len(entries)
	for i, e := range entries {
		if !e.IsLabel() && e.ID == target {
			at = i
			break
		}
	}
	entries = append(entries, ProgramEntry{})
	copy(entries[at+1:], entries[at:])
	entries[at] = ProgramEntry{Label: label}
	return entries
}
