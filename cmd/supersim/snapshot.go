package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"supersim/internal/archive"
	"supersim/internal/tick"
	"supersim/internal/views"
)

var (
	snapshotSim   simulationFlags
	snapshotLabel string
	snapshotArg   string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Archive CPU states and inspect them offline",
	Long: `Archive the CPU state of a tick as a compressed file and run views against archived
states without a simulator backend.`,
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save <tick>",
	Short: "Simulate a tick and archive its state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotSave,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived states, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotList,
}

var snapshotViewCmd = &cobra.Command{
	Use:   "view <id> <view>",
	Short: "Print a view of an archived state",
	Long: `Print a view of an archived state.

Examples:
  supersim snapshot view 0b6f... registers --arg sp
  supersim snapshot view 0b6f... issue --arg fp`,
	Args: cobra.ExactArgs(2),
	RunE: runSnapshotView,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an archived state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotDelete,
}

func init() {
	snapshotSim.register(snapshotSaveCmd)
	snapshotSaveCmd.Flags().StringVar(&snapshotLabel, "label", "", "Label stored with the archive")
	snapshotViewCmd.Flags().StringVar(&snapshotArg, "arg", "", "View argument (unit class, register key or object id)")

	snapshotCmd.AddCommand(snapshotSaveCmd, snapshotListCmd, snapshotViewCmd, snapshotDeleteCmd)
	rootCmd.AddCommand(snapshotCmd)
}

// withArchives runs fn against the configured archive directory.
func withArchives(fn func(env *cliEnv, store *archive.Store) error) error {
	env, err := setup("snapshot")
	if err != nil {
		return err
	}
	defer env.Close()

	dir, err := env.cfg.ArchivePath()
	if err != nil {
		return err
	}
	store, err := archive.Open(dir, env.logger)
	if err != nil {
		return err
	}
	return fn(env, store)
}

func runSnapshotSave(cmd *cobra.Command, args []string) error {
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("tick must be a non-negative integer, got %q", args[0])
	}
	simCfg, err := snapshotSim.load()
	if err != nil {
		return err
	}

	return withArchives(func(env *cliEnv, store *archive.Store) error {
		client, err := env.client()
		if err != nil {
			return err
		}
		ctx, cancel := newContext()
		defer cancel()

		snap, err := tick.NewController(client, simCfg, env.logger).Request(ctx, n)
		if err != nil {
			return err
		}
		meta, err := store.Save(snap, snapshotLabel)
		if err != nil {
			return err
		}
		return printResult(cmd, &meta)
	})
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	return withArchives(func(env *cliEnv, store *archive.Store) error {
		metas, err := store.List()
		if err != nil {
			return err
		}
		return printResult(cmd, metas)
	})
}

func runSnapshotView(cmd *cobra.Command, args []string) error {
	return withArchives(func(env *cliEnv, store *archive.Store) error {
		entry, err := store.Load(args[0])
		if err != nil {
			return err
		}
		opts, err := env.cfg.Resolver.Options()
		if err != nil {
			return err
		}
		v, err := views.NewSelectors(opts).Select(entry.Snapshot, args[1], snapshotArg)
		if err != nil {
			return err
		}
		return printResult(cmd, v)
	})
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	return withArchives(func(env *cliEnv, store *archive.Store) error {
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted snapshot %s\n", args[0])
		return nil
	})
}
