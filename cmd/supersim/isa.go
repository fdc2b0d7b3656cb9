package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"supersim/internal/isa"
	"supersim/internal/storage"
)

var (
	isaDescription  string
	isaExportFormat string
	isaOutput       string
)

var isaCmd = &cobra.Command{
	Use:   "isa",
	Short: "Manage CPU configurations",
	Long:  "Validate CPU configuration files and manage the named presets stored in the supersim database.",
}

var isaValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a CPU configuration file",
	Args:  cobra.ExactArgs(1),
	RunE:  runISAValidate,
}

var isaDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the default CPU configuration",
	Long: `Print the default CPU configuration as a starting point for a new file.

Examples:
  supersim isa default --as toml > cpu.toml`,
	Args: cobra.NoArgs,
	RunE: runISADefault,
}

var isaPresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage stored CPU presets",
}

var isaPresetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored presets",
	Args:  cobra.NoArgs,
	RunE:  runPresetsList,
}

var isaPresetsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one preset",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresetsShow,
}

var isaPresetsSaveCmd = &cobra.Command{
	Use:   "save <name> <file>",
	Short: "Store a CPU configuration file as a preset",
	Args:  cobra.ExactArgs(2),
	RunE:  runPresetsSave,
}

var isaPresetsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a preset",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresetsDelete,
}

var isaPresetsExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Export a preset as json, toml or yaml",
	Long: `Export a preset. With --output the format follows the file extension.

Examples:
  supersim isa presets export Default --as yaml
  supersim isa presets export wide --output wide.toml`,
	Args: cobra.ExactArgs(1),
	RunE: runPresetsExport,
}

func init() {
	isaDefaultCmd.Flags().StringVar(&isaExportFormat, "as", "json", "Encoding (json, toml, yaml)")
	isaPresetsSaveCmd.Flags().StringVar(&isaDescription, "description", "", "Preset description")
	isaPresetsExportCmd.Flags().StringVar(&isaExportFormat, "as", "json", "Encoding (json, toml, yaml)")
	isaPresetsExportCmd.Flags().StringVarP(&isaOutput, "output", "o", "", "Write to a file instead of stdout")

	isaPresetsCmd.AddCommand(isaPresetsListCmd, isaPresetsShowCmd, isaPresetsSaveCmd, isaPresetsDeleteCmd, isaPresetsExportCmd)
	isaCmd.AddCommand(isaValidateCmd, isaDefaultCmd, isaPresetsCmd)
	rootCmd.AddCommand(isaCmd)
}

// openDB opens the configured database with the default preset in place.
func (e *cliEnv) openDB() (*storage.DB, error) {
	path, err := e.cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(path, e.logger)
	if err != nil {
		return nil, err
	}
	if err := db.SeedDefaultPreset(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// withDB runs fn against the configured database.
func withDB(fn func(env *cliEnv, db *storage.DB) error) error {
	env, err := setup("isa")
	if err != nil {
		return err
	}
	defer env.Close()

	db, err := env.openDB()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(env, db)
}

// ValidationReport is the outcome of isa validate.
type ValidationReport struct {
	File   string           `json:"file"`
	Valid  bool             `json:"valid"`
	Errors []isa.FieldError `json:"errors,omitempty"`
	Config *isa.CpuConfig   `json:"config,omitempty"`
}

func runISAValidate(cmd *cobra.Command, args []string) error {
	cfg, err := isa.LoadCpuConfig(args[0])
	report := &ValidationReport{File: args[0], Valid: err == nil}
	if err != nil {
		report.Errors = isa.FieldErrors(err)
		if report.Errors == nil {
			// not a validation failure: unreadable or undecodable
			return err
		}
	} else {
		report.Config = &cfg
	}
	if perr := printResult(cmd, report); perr != nil {
		return perr
	}
	if !report.Valid {
		return fmt.Errorf("%s: invalid CPU configuration", args[0])
	}
	return nil
}

func runISADefault(cmd *cobra.Command, args []string) error {
	return encodeTo(cmd, isa.DefaultCpuConfig(), isaExportFormat, "")
}

// encodeTo writes cfg to path, or to stdout in the named format.
func encodeTo(cmd *cobra.Command, cfg isa.CpuConfig, format, path string) error {
	if path != "" {
		if err := isa.SaveFile(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
		return nil
	}
	f, err := isa.ParseFormat(format)
	if err != nil {
		return err
	}
	data, err := isa.Encode(cfg, f)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runPresetsList(cmd *cobra.Command, args []string) error {
	return withDB(func(env *cliEnv, db *storage.DB) error {
		presets, err := db.ListPresets()
		if err != nil {
			return err
		}
		return printResult(cmd, presets)
	})
}

func runPresetsShow(cmd *cobra.Command, args []string) error {
	return withDB(func(env *cliEnv, db *storage.DB) error {
		p, err := db.GetPreset(args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, p)
	})
}

func runPresetsSave(cmd *cobra.Command, args []string) error {
	cfg, err := isa.LoadCpuConfig(args[1])
	if err != nil {
		return err
	}
	return withDB(func(env *cliEnv, db *storage.DB) error {
		p, err := db.SavePreset(args[0], isaDescription, cfg)
		if err != nil {
			return err
		}
		env.logger.Info("Preset saved", "name", p.Name)
		return printResult(cmd, p)
	})
}

func runPresetsDelete(cmd *cobra.Command, args []string) error {
	return withDB(func(env *cliEnv, db *storage.DB) error {
		if err := db.DeletePreset(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted preset %s\n", args[0])
		return nil
	})
}

func runPresetsExport(cmd *cobra.Command, args []string) error {
	return withDB(func(env *cliEnv, db *storage.DB) error {
		p, err := db.GetPreset(args[0])
		if err != nil {
			return err
		}
		return encodeTo(cmd, p.Config, isaExportFormat, isaOutput)
	})
}
