// Package diagnostics converts simulator diagnostic positions, given as 1-based
// (line, display-column) pairs, into 0-based [from, to) offsets within the source
// text held by an editor. Offsets count Unicode code points.
package diagnostics

import (
	"sort"
	"strings"
	"unicode/utf8"

	"supersim/internal/errors"
)

// Position is a 1-based source coordinate.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"display-column"`
}

// Span is the location of a diagnostic. Finish is inclusive when present.
type Span struct {
	Caret  Position  `json:"caret"`
	Finish *Position `json:"finish,omitempty"`
}

// Item is a diagnostic as reported by the simulator.
type Item struct {
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	Locations []Span `json:"locations"`
}

// Severity classifies a diagnostic for the editor.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ParseSeverity maps a backend kind onto a Severity. Unknown kinds are errors.
func ParseSeverity(kind string) Severity {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "warning", "warn":
		return SeverityWarning
	case "info", "note", "hint":
		return SeverityInfo
	default:
		return SeverityError
	}
}

// Diagnostic is an editor-ready diagnostic.
type Diagnostic struct {
	From     int      `json:"from"`
	To       int      `json:"to"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Mapper converts positions within one source text.
type Mapper struct {
	// prefix[i] is the offset of the first character of line i+1.
	prefix []int
}

// NewMapper indexes the line starts of code.
func NewMapper(code string) *Mapper {
	lines := strings.Split(code, "\n")
	prefix := make([]int, len(lines)+1)
	for i, line := range lines {
		prefix[i+1] = prefix[i] + utf8.RuneCountInString(line) + 1
	}
	return &Mapper{prefix: prefix}
}

// Lines returns the number of lines in the text.
func (m *Mapper) Lines() int {
	return len(m.prefix) - 1
}

// LineStart returns the offset of the first character of a 1-based line.
func (m *Mapper) LineStart(line int) (int, error) {
	if line < 1 || line > m.Lines() {
		return 0, errors.Newf(errors.InvalidPosition, "line %d outside 1..%d", line, m.Lines())
	}
	return m.prefix[line-1], nil
}

// Offset converts a position into a flat 0-based offset.
func (m *Mapper) Offset(p Position) (int, error) {
	start, err := m.LineStart(p.Line)
	if err != nil {
		return 0, err
	}
	if p.Column < 1 {
		return 0, errors.Newf(errors.InvalidPosition, "column %d on line %d is not 1-based", p.Column, p.Line)
	}
	return start + p.Column - 1, nil
}

// Range converts a span into a [from, to) pair. A span without a finish is a
// zero-width marker at its caret. The finish is inclusive, so a finish on the
// caret line yields from + 1 + (finish.Column - caret.Column); a finish on a later
// line ends one past its own column on that line.
func (m *Mapper) Range(s Span) (from, to int, err error) {
	from, err = m.Offset(s.Caret)
	if err != nil {
		return 0, 0, err
	}
	if s.Finish == nil {
		return from, from, nil
	}

	if s.Finish.Line == s.Caret.Line {
		to = from + 1 + (s.Finish.Column - s.Caret.Column)
	} else {
		end, err := m.Offset(*s.Finish)
		if err != nil {
			return 0, 0, err
		}
		to = end + 1
	}
	if to < from {
		return 0, 0, errors.Newf(errors.InvalidPosition, "span ends before it starts (%d < %d)", to, from)
	}
	return from, to, nil
}

// Map converts one item using its first location.
func (m *Mapper) Map(item Item) (Diagnostic, error) {
	if len(item.Locations) == 0 {
		return Diagnostic{}, errors.Newf(errors.MissingSpanLocation, "diagnostic %q has no location", item.Message)
	}
	from, to, err := m.Range(item.Locations[0])
	if err != nil {
		return Diagnostic{}, err
	}
	return Diagnostic{
		From:     from,
		To:       to,
		Message:  item.Message,
		Severity: ParseSeverity(item.Kind),
	}, nil
}

// MapAll converts items in order. The first failing item aborts the conversion.
func (m *Mapper) MapAll(items []Item) ([]Diagnostic, error) {
	out := make([]Diagnostic, 0, len(items))
	for _, item := range items {
		d, err := m.Map(item)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Position converts a flat offset back into a 1-based position.
func (m *Mapper) Position(offset int) (Position, error) {
	last := m.prefix[len(m.prefix)-1] - 1
	if offset < 0 || offset > last {
		return Position{}, errors.Newf(errors.InvalidPosition, "offset %d outside 0..%d", offset, last)
	}
	i := sort.Search(len(m.prefix), func(i int) bool { return m.prefix[i] > offset }) - 1
	return Position{Line: i + 1, Column: offset - m.prefix[i] + 1}, nil
}

// Transform maps items against code in one call.
func Transform(items []Item, code string) ([]Diagnostic, error) {
	return NewMapper(code).MapAll(items)
}
