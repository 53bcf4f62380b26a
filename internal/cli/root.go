package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hmrc/bintray-backup-restore/internal/config"
	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
	"github.com/hmrc/bintray-backup-restore/pkg/version"
)

var (
	globalFlags    types.GlobalFlags
	logger         logging.Logger = logging.NewNoOpLogger()
	debugTransport *logging.DebugTransport
	appConfig      *config.Config
	traceID        string
)

var rootCmd = &cobra.Command{
	Use:   "bintray-backup-restore",
	Short: "Back up and restore Bintray repositories",
	Long: `bintray-backup-restore copies the packages and files of a Bintray
organisation to a local directory tree and restores them from it.

Files are compared by SHA-1, so only new or changed content is transferred
and repeated runs are safe. All commands support JSON output for automation.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		appConfig = cfg
		if !cmd.Flags().Changed("output") && !globalFlags.JSON {
			globalFlags.OutputFormat = cfg.DefaultOutputFormat
		}

		logConfig := logging.DefaultLogConfig()
		logConfig.OutputFile = globalFlags.LogFile
		logConfig.EnableConsole = !globalFlags.Quiet && cfg.LogLevel != "quiet"
		logConfig.EnableColor = cfg.ColorOutput
		logConfig.EnableDebug = globalFlags.Debug || cfg.LogLevel == "debug"
		if globalFlags.Verbose || logConfig.EnableDebug || cfg.LogLevel == "verbose" {
			logConfig.Level = logging.DEBUG
		}
		if globalFlags.OutputFormat == types.OutputFormatJSON && !globalFlags.Verbose && !globalFlags.Debug {
			logConfig.EnableConsole = false
		}

		logger, debugTransport, err = logging.NewDebugLoggerWithTransport(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		traceID = uuid.New().String()
		logger = logger.WithTraceID(traceID)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if globalFlags.OutputFormat == types.OutputFormatJSON {
			return newOutput().WriteSuccess("version", info)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalFlags.Profile, "profile", "default", "Credential profile to use")
	flags.StringVar(&globalFlags.Organisation, "org", "", "Bintray organisation (overrides BINTRAY_ORGANISATION)")
	flags.StringVar(&globalFlags.Username, "username", "", "Bintray username (overrides BINTRAY_USERNAME)")
	flags.StringVar(&globalFlags.Token, "token", "", "Bintray API token (overrides BINTRAY_TOKEN)")
	flags.StringVar(&globalFlags.LocalDir, "dir", "", "Local backup directory")
	flags.StringVar((*string)(&globalFlags.OutputFormat), "output", "table", "Output format (json, table)")
	flags.BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	flags.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	flags.BoolVar(&globalFlags.Debug, "debug", false, "Log every HTTP request")
	flags.StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	flags.StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	flags.BoolVar(&globalFlags.DryRun, "dry-run", false, "Show what would be done without making changes")
	flags.IntVar(&globalFlags.Concurrency, "concurrency", 0, "Parallel catalog reads and transfers (default from config)")
	flags.BoolVar(&globalFlags.NoHistory, "no-history", false, "Do not record this run in the history database")
	flags.BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")
	_ = flags.MarkHidden("token")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags() error {
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}

	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid output format: %s", globalFlags.OutputFormat)).Build())
	}
	if globalFlags.Concurrency < 0 {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"concurrency must not be negative").Build())
	}
	return nil
}

// loadConfig reads the config file named by --config, or the default one
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if globalFlags.Config != "" {
		cfg, err = config.LoadFrom(globalFlags.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeConfiguration, err.Error()).Build(), err)
	}
	return cfg, nil
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if logger != nil {
		_ = logger.Close()
	}
	if err == nil {
		return utils.ExitSuccess
	}

	var reported *reportedError
	if errors.As(err, &reported) {
		return utils.GetExitCode(reported.cliErr.Code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, context.Canceled) {
		return utils.ExitCancelled
	}
	return utils.GetExitCode(utils.ErrorCode(err))
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	return logger
}

// commandContext attaches the invocation trace ID to the command context
func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if traceID == "" {
		return ctx
	}
	return logging.ContextWithTraceID(ctx, traceID)
}
