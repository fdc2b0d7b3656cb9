package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"supersim/internal/archive"
	"supersim/internal/storage"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatHuman formats the response in human-readable format
func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *TickSummary:
		return formatSummaryTable([]*TickSummary{v}), nil
	case []*TickSummary:
		return formatSummaryTable(v), nil
	case *DiagReport:
		return formatDiagHuman(v), nil
	case *ValidationReport:
		return formatValidationHuman(v), nil
	case *InstructionList:
		return formatInstructionListHuman(v), nil
	case []*storage.Preset:
		return formatPresetsHuman(v), nil
	case []archive.Meta:
		return formatArchivesHuman(v), nil
	case *archive.Meta:
		return formatArchivesHuman([]archive.Meta{*v}), nil
	default:
		// views and single records read best as JSON
		return formatJSON(resp)
	}
}

func formatSummaryTable(rows []*TickSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-6s %-10s %8s %9s %6s %8s\n", "TICK", "STATE", "OBJECTS", "ROB", "ISSUE", "PROGRAM"))
	for _, s := range rows {
		rob := fmt.Sprintf("%d/%d", s.ROBOccupancy, s.ROBCapacity)
		b.WriteString(fmt.Sprintf("%-6d %-10s %8d %9s %6d %8d\n",
			s.Tick, s.State, s.Objects, rob, s.IssueOccupancy, s.ProgramLength))
	}
	for _, s := range rows {
		if s.SelectorWarnings != "" {
			b.WriteString(fmt.Sprintf("\nWarning (tick %d): %s", s.Tick, s.SelectorWarnings))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDiagHuman(r *DiagReport) string {
	var b strings.Builder
	for _, d := range r.Diagnostics {
		b.WriteString(fmt.Sprintf("%s:%d:%d: %s: %s\n", d.File, d.Line, d.Column, d.Severity, d.Message))
	}
	if r.Error != "" {
		b.WriteString(fmt.Sprintf("%s: %s\n", r.File, r.Error))
	}
	if r.Program != "" {
		b.WriteString("\n" + r.Program + "\n")
	}
	if r.Success && len(r.Diagnostics) == 0 {
		b.WriteString(fmt.Sprintf("%s: ok\n", r.File))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatValidationHuman(r *ValidationReport) string {
	if r.Valid {
		return fmt.Sprintf("%s: valid", r.File)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s: %d problem(s)", r.File, len(r.Errors)))
	for _, fe := range r.Errors {
		b.WriteString("\n  " + fe.String())
	}
	return b.String()
}

func formatInstructionListHuman(l *InstructionList) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d instructions\n", l.Count))
	const perLine = 8
	for i, name := range l.Names {
		if i%perLine == 0 {
			b.WriteString("\n ")
		}
		b.WriteString(fmt.Sprintf(" %-10s", name))
	}
	return strings.TrimRight(b.String(), " ")
}

func formatPresetsHuman(presets []*storage.Preset) string {
	if len(presets) == 0 {
		return "No presets"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-20s %-18s %s\n", "NAME", "UPDATED", "DESCRIPTION"))
	for _, p := range presets {
		b.WriteString(fmt.Sprintf("%-20s %-18s %s\n", p.Name, formatAge(p.UpdatedAt), p.Description))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatArchivesHuman(metas []archive.Meta) string {
	if len(metas) == 0 {
		return "No archived snapshots"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-36s %6s %8s %-18s %s\n", "ID", "TICK", "OBJECTS", "SAVED", "LABEL"))
	for _, m := range metas {
		b.WriteString(fmt.Sprintf("%-36s %6d %8d %-18s %s\n", m.ID, m.Tick, m.Objects, formatAge(m.SavedAt), m.Label))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatAge renders t relative to now, e.g. "5m ago".
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("2006-01-02")
	}
}
