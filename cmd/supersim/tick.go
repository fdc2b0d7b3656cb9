package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"supersim/internal/snapshot"
	"supersim/internal/tick"
	"supersim/internal/views"
)

var (
	tickSim  simulationFlags
	tickView string
	tickArg  string
)

var tickCmd = &cobra.Command{
	Use:   "tick <n>",
	Short: "Simulate up to a tick and print a view",
	Long: `Run the program up to tick n on the simulator backend and print one view of the
resulting CPU state. Without --view a summary is printed.

Views: ` + strings.Join(views.Names(), ", ") + `

Examples:
  supersim tick 5 --program loop.s
  supersim tick 5 --program loop.s --view registers --arg a0
  supersim tick 12 --sim config.yaml --view issue --arg alu --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runTick,
}

func init() {
	tickSim.register(tickCmd)
	tickCmd.Flags().StringVar(&tickView, "view", "", "View to print")
	tickCmd.Flags().StringVar(&tickArg, "arg", "", "View argument (unit class, register key or object id)")
	rootCmd.AddCommand(tickCmd)
}

// TickSummary is the one-line overview of a simulated tick.
type TickSummary struct {
	Tick             int64  `json:"tick"`
	State            string `json:"state"`
	Objects          int    `json:"objects"`
	ROBOccupancy     int    `json:"robOccupancy"`
	ROBCapacity      int64  `json:"robCapacity"`
	IssueOccupancy   int    `json:"issueOccupancy"`
	ProgramLength    int    `json:"programLength"`
	SelectorWarnings string `json:"warnings,omitempty"`
}

// summarize collects the summary of snap. Views that the state does not carry
// are reported as warnings rather than failures.
func summarize(sel *views.Selectors, snap *snapshot.Snapshot, st tick.Status) *TickSummary {
	sum := &TickSummary{Tick: snap.Tick(), State: st.State.String(), Objects: snap.Len()}
	var warnings []string

	if rob, err := sel.ReorderBuffer(snap); err == nil {
		sum.ROBOccupancy = rob.Occupancy
		sum.ROBCapacity = rob.Capacity
	} else {
		warnings = append(warnings, err.Error())
	}
	for _, unit := range views.Units() {
		if w, err := sel.IssueWindow(snap, unit); err == nil {
			sum.IssueOccupancy += w.Count
		}
	}
	if program, err := sel.ProgramWithLabels(snap); err == nil {
		for _, e := range program {
			if !e.IsLabel() {
				sum.ProgramLength++
			}
		}
	} else {
		warnings = append(warnings, err.Error())
	}
	sum.SelectorWarnings = strings.Join(warnings, "; ")
	return sum
}

func runTick(cmd *cobra.Command, args []string) error {
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("tick must be a non-negative integer, got %q", args[0])
	}

	env, err := setup("tick")
	if err != nil {
		return err
	}
	defer env.Close()

	client, err := env.client()
	if err != nil {
		return err
	}
	simCfg, err := tickSim.load()
	if err != nil {
		return err
	}
	opts, err := env.cfg.Resolver.Options()
	if err != nil {
		return err
	}

	ctx, cancel := newContext()
	defer cancel()

	ctrl := tick.NewController(client, simCfg, env.logger)
	snap, err := ctrl.Request(ctx, n)
	if err != nil {
		return err
	}

	sel := views.NewSelectors(opts)
	if tickView == "" {
		return printResult(cmd, summarize(sel, snap, ctrl.Status()))
	}
	v, err := sel.Select(snap, tickView, tickArg)
	if err != nil {
		return err
	}
	return printResult(cmd, v)
}
