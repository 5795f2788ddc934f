// Package cli wires the cobra command surface around the sync engine
package cli

import (
	"errors"
	"fmt"

	"github.com/dl-alexandre/gsyncd/internal/config"
	"github.com/dl-alexandre/gsyncd/internal/logging"
	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/dl-alexandre/gsyncd/internal/utils"
	"github.com/dl-alexandre/gsyncd/pkg/version"
	"github.com/spf13/cobra"
)

var (
	globalFlags types.GlobalFlags
	logger      logging.Logger
	cfg         *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gsyncd",
	Short: "File synchronization engine for Drive-backed application data",
	Long: `gsyncd keeps per-application local directories in sync with a
Drive backend. Applications register a sync root; local and remote
changes are reconciled through a serialized background pipeline.

All commands support JSON output for automation and scripting.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}

		var err error
		if globalFlags.ConfigPath != "" {
			cfg, err = config.LoadFrom(globalFlags.ConfigPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if globalFlags.LogFile != "" {
			cfg.LogFile = globalFlags.LogFile
		}

		logConfig := logging.LogConfig{
			Level:           logging.INFO,
			OutputFile:      cfg.LogFile,
			EnableConsole:   !globalFlags.Quiet,
			EnableDebug:     globalFlags.Debug,
			RedactSensitive: true,
			EnableColor:     true,
			EnableTimestamp: true,
		}
		if globalFlags.Verbose {
			logConfig.Level = logging.DEBUG
		}
		if globalFlags.OutputFormat == types.OutputFormatJSON && !globalFlags.Verbose && !globalFlags.Debug {
			logConfig.EnableConsole = false
		}

		logger, err = logging.NewLogger(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "json", "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags() error {
	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s", globalFlags.OutputFormat)
	}
	return nil
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)

		var syncErr *utils.SyncError
		if errors.As(err, &syncErr) {
			return utils.GetExitCode(syncErr.Code)
		}
		return utils.ExitUnknown
	}
	return utils.ExitSuccess
}
