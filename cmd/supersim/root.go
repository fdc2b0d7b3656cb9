package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"supersim/internal/config"
	"supersim/internal/isa"
	"supersim/internal/simclient"
	"supersim/internal/slogutil"
	"supersim/internal/version"
)

var (
	configPath   string
	verbosity    int
	quiet        bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "supersim",
	Short: "supersim - superscalar simulator client",
	Long: `supersim talks to a superscalar RISC-V simulator backend, resolves the CPU state it
returns for each tick, and serves the derived views (registers, program, issue windows,
function units, cache, reorder buffer) over HTTP or prints them on the command line.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("supersim version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.supersim/config.json)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Disable logging")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", string(FormatHuman), "Output format (json, human)")
}

// cliEnv is what every command needs: the validated configuration and a logger.
type cliEnv struct {
	cfg     *config.Config
	factory *slogutil.Factory
	logger  *slog.Logger
}

// setup loads the configuration and builds the logger for subsystem. Commands
// log to stderr so that stdout carries only their output.
func setup(subsystem string) (*cliEnv, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factory := slogutil.NewFactory(cfg.Logging, os.Stderr)
	if verbosity > 0 || quiet {
		factory.OverrideLevel(slogutil.LevelFromVerbosity(verbosity, quiet))
	} else if subsystem != "serve" {
		// one-shot commands stay quiet unless asked
		factory.OverrideLevel(slog.LevelWarn)
	}
	logger, err := factory.Logger(subsystem)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return &cliEnv{cfg: cfg, factory: factory, logger: logger}, nil
}

// Close flushes remote logs and closes the log file.
func (e *cliEnv) Close() {
	_ = e.factory.Close()
}

// client creates the simulator client from the backend section.
func (e *cliEnv) client() (*simclient.Client, error) {
	logger, err := e.factory.Logger(slogutil.SubsystemClient)
	if err != nil {
		return nil, err
	}
	return simclient.New(simclient.Options{
		BaseURL:           e.cfg.Backend.URL,
		Timeout:           e.cfg.Backend.Timeout(),
		MaxBodySize:       e.cfg.Backend.MaxBodyBytes,
		RequestsPerSecond: e.cfg.Backend.RateLimit,
		Burst:             e.cfg.Backend.Burst,
	}, logger)
}

// newContext returns a context cancelled on SIGINT or SIGTERM.
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// simulationFlags selects what a command simulates.
type simulationFlags struct {
	program string
	cpu     string
	sim     string
}

func (f *simulationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.program, "program", "", "Assembly file to simulate")
	cmd.Flags().StringVar(&f.cpu, "cpu", "", "CPU configuration file (json, toml or yaml)")
	cmd.Flags().StringVar(&f.sim, "sim", "", "Complete simulation configuration file (json, toml or yaml)")
}

// load builds the simulation configuration. --sim provides the base, --cpu
// replaces its CPU and --program its code.
func (f *simulationFlags) load() (isa.SimulationConfig, error) {
	cfg := isa.DefaultSimulationConfig()
	if f.sim != "" {
		loaded, err := isa.LoadSimulationConfig(f.sim)
		if err != nil {
			return isa.SimulationConfig{}, err
		}
		cfg = loaded
	}
	if f.cpu != "" {
		cpu, err := isa.LoadCpuConfig(f.cpu)
		if err != nil {
			return isa.SimulationConfig{}, err
		}
		cfg.CpuConfig = cpu
	}
	if f.program != "" {
		code, err := os.ReadFile(f.program)
		if err != nil {
			return isa.SimulationConfig{}, fmt.Errorf("failed to read program: %w", err)
		}
		cfg = cfg.WithCode(string(code))
	}
	return cfg, nil
}

// printResult formats v with the global --format and writes it to stdout.
func printResult(cmd *cobra.Command, v interface{}) error {
	out, err := FormatResponse(v, OutputFormat(outputFormat))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
