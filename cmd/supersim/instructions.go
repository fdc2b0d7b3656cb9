package main

import (
	"github.com/spf13/cobra"

	"supersim/internal/errors"
	"supersim/internal/instrdesc"
)

var instructionsCmd = &cobra.Command{
	Use:   "instructions [name]",
	Short: "List instructions or describe one",
	Long: `Fetch the instruction descriptions from the simulator backend. Without a name the
instruction names are listed; with one its operands are shown.

Examples:
  supersim instructions
  supersim instructions addi --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstructions,
}

func init() {
	rootCmd.AddCommand(instructionsCmd)
}

// InstructionList is the output of instructions without a name.
type InstructionList struct {
	Names []string `json:"names"`
	Count int      `json:"count"`
}

func runInstructions(cmd *cobra.Command, args []string) error {
	env, err := setup("instructions")
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

	svc := instrdesc.NewService(client, env.logger)
	if err := svc.Load(ctx); err != nil {
		return err
	}

	if len(args) == 0 {
		names, err := svc.Names()
		if err != nil {
			return err
		}
		return printResult(cmd, &InstructionList{Names: names, Count: len(names)})
	}

	desc, ok, err := svc.Lookup(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return errors.Newf(errors.ObjectNotFound, "no instruction named %q", args[0])
	}
	return printResult(cmd, &desc)
}
