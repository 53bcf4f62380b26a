package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hmrc/bintray-backup-restore/internal/config"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing bintray-backup-restore configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the configuration after the config file and environment are applied",
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
	Long:  "Reset all configuration settings to their default values",
	RunE:  runConfigReset,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	return newOutput().WriteSuccess("config.show", effectiveConfig())
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	out := newOutput()

	key := args[0]
	value := args[1]

	cfg, err := loadConfig()
	if err != nil {
		return out.WriteErr("config.set", err)
	}

	if err := setConfigValue(cfg, key, value); err != nil {
		return out.WriteError("config.set", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}

	if err := saveConfig(cfg); err != nil {
		return out.WriteError("config.set", utils.NewCLIError(utils.ErrCodeConfiguration,
			fmt.Sprintf("Failed to save configuration: %v", err)).Build())
	}

	out.Log("Configuration updated: %s = %s", key, value)
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

// setConfigValue parses value for key. Range checks are left to Validate on save.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "organisation":
		cfg.Organisation = value
	case "username":
		cfg.Username = value
	case "apibaseurl":
		cfg.APIBaseURL = value
	case "downloadbaseurl":
		cfg.DownloadBaseURL = value
	case "localdir":
		cfg.LocalDir = value
	case "repositories":
		cfg.Repositories = splitList(value)
	case "excludepatterns":
		cfg.ExcludePatterns = splitList(value)
	case "concurrency":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("concurrency must be an integer")
		}
		cfg.Concurrency = n
	case "maxretries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max retries must be an integer")
		}
		cfg.MaxRetries = retries
	case "retrybasedelay":
		delay, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("retry base delay must be an integer number of milliseconds")
		}
		cfg.RetryBaseDelay = delay
	case "requesttimeout":
		timeout, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("request timeout must be an integer number of seconds")
		}
		cfg.RequestTimeout = timeout
	case "requestspersecond":
		rps, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("requests per second must be a number")
		}
		cfg.RequestsPerSecond = rps
	case "defaultoutputformat":
		cfg.DefaultOutputFormat = types.OutputFormat(value)
	case "loglevel":
		cfg.LogLevel = value
	case "coloroutput":
		cfg.ColorOutput = parseBool(value)
	case "historyenabled":
		cfg.HistoryEnabled = parseBool(value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return cfg.Validate()
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg := config.DefaultConfig()
	if err := saveConfig(cfg); err != nil {
		return out.WriteError("config.reset", utils.NewCLIError(utils.ErrCodeConfiguration,
			fmt.Sprintf("Failed to reset configuration: %v", err)).Build())
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", cfg)
}

// saveConfig writes to the file named by --config, or the default one
func saveConfig(cfg *config.Config) error {
	if path := GetGlobalFlags().Config; path != "" {
		return cfg.SaveTo(path)
	}
	return cfg.Save()
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
