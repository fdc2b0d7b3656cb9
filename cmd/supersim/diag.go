package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"supersim/internal/diagnostics"
)

var (
	diagSim      simulationFlags
	diagFlags    []string
	diagPrintAsm bool
)

var diagCmd = &cobra.Command{
	Use:   "diag <file>",
	Short: "Check an assembly or C file on the simulator",
	Long: `Check a program with the simulator backend and print its diagnostics with line and
column. Files ending in .c are compiled to RISC-V assembly; anything else is parsed as
assembly against the memory locations of --sim.

Examples:
  supersim diag loop.s
  supersim diag matmul.c --optimize O2 --print-asm`,
	Args: cobra.ExactArgs(1),
	RunE: runDiag,
}

func init() {
	diagSim.register(diagCmd)
	diagCmd.Flags().StringSliceVar(&diagFlags, "optimize", nil, "Compiler optimization flags for C files")
	diagCmd.Flags().BoolVar(&diagPrintAsm, "print-asm", false, "Print the compiled assembly")
	rootCmd.AddCommand(diagCmd)
}

// DiagnosticLine is a diagnostic with its position in the checked source.
type DiagnosticLine struct {
	File     string               `json:"file"`
	Line     int                  `json:"line"`
	Column   int                  `json:"column"`
	From     int                  `json:"from"`
	To       int                  `json:"to"`
	Severity diagnostics.Severity `json:"severity"`
	Message  string               `json:"message"`
}

// DiagReport is the result of one diag run.
type DiagReport struct {
	File        string           `json:"file"`
	Success     bool             `json:"success"`
	Error       string           `json:"error,omitempty"`
	Program     string           `json:"program,omitempty"`
	Diagnostics []DiagnosticLine `json:"diagnostics"`
}

// locate maps editor ranges back to 1-based line and column for printing.
func locate(file, code string, diags []diagnostics.Diagnostic) ([]DiagnosticLine, error) {
	m := diagnostics.NewMapper(code)
	out := make([]DiagnosticLine, 0, len(diags))
	for _, d := range diags {
		pos, err := m.Position(d.From)
		if err != nil {
			return nil, err
		}
		out = append(out, DiagnosticLine{
			File:     file,
			Line:     pos.Line,
			Column:   pos.Column,
			From:     d.From,
			To:       d.To,
			Severity: d.Severity,
			Message:  d.Message,
		})
	}
	return out, nil
}

func runDiag(cmd *cobra.Command, args []string) error {
	file := args[0]
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	code := string(data)

	env, err := setup("diag")
	if err != nil {
		return err
	}
	defer env.Close()

	client, err := env.client()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	report := &DiagReport{File: file}
	var items []diagnostics.Item
	if strings.EqualFold(filepath.Ext(file), ".c") {
		resp, err := client.Compile(ctx, code, diagFlags)
		if err != nil {
			return err
		}
		report.Success = resp.Success
		report.Error = resp.Error
		if diagPrintAsm {
			report.Program = resp.Program
		}
		items = resp.CompilerErrors
	} else {
		simCfg, err := diagSim.load()
		if err != nil {
			return err
		}
		resp, err := client.ParseAsm(ctx, code, simCfg.MemoryLocations)
		if err != nil {
			return err
		}
		report.Success = resp.Success
		items = resp.Errors
	}

	diags, err := diagnostics.Transform(items, code)
	if err != nil {
		return err
	}
	if report.Diagnostics, err = locate(file, code, diags); err != nil {
		return err
	}

	if err := printResult(cmd, report); err != nil {
		return err
	}
	if !report.Success {
		return fmt.Errorf("%s: %d problem(s)", file, len(report.Diagnostics))
	}
	return nil
}
