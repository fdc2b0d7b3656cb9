package main

import (
	"github.com/spf13/cobra"

	"supersim/internal/tick"
	"supersim/internal/views"
)

var (
	stepSim      simulationFlags
	stepFrom     int64
	stepCount    int
	stepBackward bool
)

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Step through ticks and print a summary of each",
	Long: `Simulate tick --from and then step --count times, printing a summary after every
step. Each step is a fresh backend request; the backend recomputes the state from
program start.

Examples:
  supersim step --program loop.s --count 10
  supersim step --program loop.s --from 20 --count 5 --backward`,
	Args: cobra.NoArgs,
	RunE: runStep,
}

func init() {
	stepSim.register(stepCmd)
	stepCmd.Flags().Int64Var(&stepFrom, "from", 0, "First tick")
	stepCmd.Flags().IntVarP(&stepCount, "count", "n", 5, "Number of steps after the first tick")
	stepCmd.Flags().BoolVar(&stepBackward, "backward", false, "Step backward instead of forward")
	rootCmd.AddCommand(stepCmd)
}

func runStep(cmd *cobra.Command, args []string) error {
	env, err := setup("step")
	if err != nil {
		return err
	}
	defer env.Close()

	client, err := env.client()
	if err != nil {
		return err
	}
	simCfg, err := stepSim.load()
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
	sel := views.NewSelectors(opts)

	snap, err := ctrl.Request(ctx, stepFrom)
	if err != nil {
		return err
	}
	summaries := []*TickSummary{summarize(sel, snap, ctrl.Status())}

	step := ctrl.StepForward
	if stepBackward {
		step = ctrl.StepBackward
	}
	for i := 0; i < stepCount; i++ {
		if snap, err = step(ctx); err != nil {
			return err
		}
		summaries = append(summaries, summarize(sel, snap, ctrl.Status()))
	}
	return printResult(cmd, summaries)
}
