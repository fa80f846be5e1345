package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Settings are the effective tool settings after merging flags,
// environment (CDD_ prefix), the config file, and built-in defaults.
type Settings struct {
	ArtifactsRoot    string `mapstructure:"artifacts_root"`
	ContractsDir     string `mapstructure:"contracts_dir"`
	RequireExactSpec bool   `mapstructure:"require_exact_spec"`
	History          bool   `mapstructure:"history"`
}

// NewRootCommand creates the root command for the cdd CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cdd",
		Short: "CDD - contract driven development",
		Long:  "Write component contracts first, then hold the implementation to them.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			initConfig(opts)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", filepath.Join(".cdd", "config.yaml"), "config file path")

	// Add subcommands
	cmd.AddCommand(NewSpecCommand(opts))
	cmd.AddCommand(NewLintCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewCoverageCommand(opts))
	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewCompareCommand(opts))
	cmd.AddCommand(NewPathsCommand(opts))
	cmd.AddCommand(NewIsolateCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// initConfig points viper at the config file and registers defaults and
// the CDD_ environment binding. Reading happens in loadSettings so each
// command decides when settings are needed.
func initConfig(opts *RootOptions) {
	path := opts.ConfigFile
	if path == "" {
		path = filepath.Join(".cdd", "config.yaml")
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("CDD")
	viper.AutomaticEnv()

	viper.SetDefault("artifacts_root", "artifacts")
	viper.SetDefault("contracts_dir", "contracts")
	viper.SetDefault("require_exact_spec", false)
	viper.SetDefault("history", true)
}

// loadSettings resolves the effective settings. A missing config file
// falls back to environment and defaults; a malformed one is an error.
func loadSettings() (Settings, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}
	return s, nil
}
