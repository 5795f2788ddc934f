package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dl-alexandre/gsyncd/internal/config"
	"github.com/dl-alexandre/gsyncd/internal/sync/conflict"
	"github.com/dl-alexandre/gsyncd/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing gsyncd configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Use 'config show' to see available keys",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	RunE:  runConfigReset,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	return NewOutputWriter().WriteResult("config.show", utils.CodeOK, cfg)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	switch strings.ToLower(key) {
	case "indexpath":
		cfg.IndexPath = value
	case "localroot":
		cfg.LocalRoot = value
	case "maxretries":
		retries, err := strconv.Atoi(value)
		if err != nil || retries < 0 || retries > 10 {
			return invalidValue("max retries must be between 0 and 10")
		}
		cfg.MaxRetries = retries
	case "retrybasedelay":
		delay, err := strconv.Atoi(value)
		if err != nil || delay < 100 || delay > 60000 {
			return invalidValue("retry base delay must be between 100 and 60000 ms")
		}
		cfg.RetryBaseDelay = delay
	case "fetchpagesize":
		size, err := strconv.Atoi(value)
		if err != nil || size < 1 || size > 1000 {
			return invalidValue("fetch page size must be between 1 and 1000")
		}
		cfg.FetchPageSize = size
	case "maxbackgroundtasks":
		tasks, err := strconv.Atoi(value)
		if err != nil || tasks < 1 {
			return invalidValue("max background tasks must be at least 1")
		}
		cfg.MaxBackgroundTasks = tasks
	case "preferlocaldrain":
		cfg.PreferLocalDrain = parseBool(value)
	case "defaultconflictpolicy":
		if !conflict.ValidPolicy(value) {
			return invalidValue("unknown conflict policy: " + value)
		}
		cfg.DefaultConflictPolicy = value
	case "loglevel":
		validLevels := []string{"quiet", "normal", "verbose", "debug"}
		valid := false
		for _, level := range validLevels {
			if value == level {
				valid = true
				break
			}
		}
		if !valid {
			return invalidValue(fmt.Sprintf("invalid log level, must be one of: %s", strings.Join(validLevels, ", ")))
		}
		cfg.LogLevel = value
	case "logfile":
		cfg.LogFile = value
	default:
		return invalidValue("unknown configuration key: " + key)
	}

	path := globalFlags.ConfigPath
	if path == "" {
		var err error
		path, err = config.ConfigPath()
		if err != nil {
			return err
		}
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := NewOutputWriter()
	out.Log("Configuration updated: %s = %s", key, value)
	return out.WriteResult("config.set", utils.CodeOK, map[string]string{
		"key":   key,
		"value": value,
	})
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	path := globalFlags.ConfigPath
	if path == "" {
		var err error
		path, err = config.ConfigPath()
		if err != nil {
			return err
		}
	}

	cfg = config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to reset configuration: %w", err)
	}

	out := NewOutputWriter()
	out.Log("Configuration reset to defaults")
	return out.WriteResult("config.reset", utils.CodeOK, cfg)
}

func invalidValue(message string) error {
	return utils.NewSyncError(utils.CodeInvalidArgument, message).Build()
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
