package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hmrc/bintray-backup-restore/internal/config"
	syncengine "github.com/hmrc/bintray-backup-restore/internal/sync"
	"github.com/hmrc/bintray-backup-restore/internal/sync/diff"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Download new and changed packages to the local directory",
	Long: `Download every file of the selected repositories whose SHA-1 differs from
the local copy, and write each package's metadata next to its files.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, diff.DirectionBackup, "backup", false)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Upload new and changed files from the local directory",
	Long: `Create packages that exist locally but not remotely, then upload every
local file whose SHA-1 differs from the remote copy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, diff.DirectionRestore, "restore", false)
	},
}

var planCmd = &cobra.Command{
	Use:       "plan <backup|restore>",
	Short:     "Show what a backup or restore would transfer",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(diff.DirectionBackup), string(diff.DirectionRestore)},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := diff.Direction(args[0])
		if direction != diff.DirectionBackup && direction != diff.DirectionRestore {
			return newOutput().WriteError("plan", utils.NewCLIError(utils.ErrCodeInvalidArgument,
				fmt.Sprintf("unknown direction %q (must be backup or restore)", args[0])).Build())
		}
		return runTransfer(cmd, direction, "plan."+args[0], true)
	},
}

var (
	transferRepos   []string
	transferExclude []string
	backupAll       bool
)

func init() {
	for _, cmd := range []*cobra.Command{backupCmd, restoreCmd, planCmd} {
		cmd.Flags().StringSliceVar(&transferRepos, "repo", nil, "Repository to include, repeatable (default from config)")
		cmd.Flags().StringSliceVar(&transferExclude, "exclude", nil, "Local path patterns to skip, added to the configured ones")
	}
	for _, cmd := range []*cobra.Command{backupCmd, planCmd} {
		cmd.Flags().BoolVar(&backupAll, "all", false, "Back up every repository of the organisation")
		cmd.MarkFlagsMutuallyExclusive("all", "repo")
	}

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(planCmd)
}

func runTransfer(cmd *cobra.Command, direction diff.Direction, command string, planOnly bool) error {
	ctx := commandContext(cmd)
	out := newOutput()
	cfg := effectiveConfig()

	repos, err := selectRepositories(cfg, direction)
	if err != nil {
		return out.WriteErr(command, err)
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return out.WriteErr(command, err)
	}
	defer engine.Close()

	progress := newProgressReporter(out)
	result, err := engine.Run(ctx, syncengine.Options{
		Direction:       direction,
		LocalDir:        cfg.LocalDir,
		Repositories:    repos,
		ExcludePatterns: append(append([]string{}, cfg.ExcludePatterns...), transferExclude...),
		Concurrency:     cfg.Concurrency,
		DryRun:          planOnly || GetGlobalFlags().DryRun,
		Progress:        progress,
		Reporter:        progress,
	})
	if err != nil {
		return out.WriteErr(command, err)
	}

	view := resultView{Result: result}
	if result.Failed() {
		cliErr := utils.NewCLIError(utils.ErrCodeBatchPartialFailure,
			fmt.Sprintf("%d files and %d packages failed", result.Tally.FilesFailed, result.Tally.PackagesFailed)).
			WithContext("runId", result.RunID).
			Build()
		return out.WriteResult(command, view, &cliErr)
	}
	return out.WriteSuccess(command, view)
}

// selectRepositories returns the repositories named on the command line, or
// the configured ones. An empty result asks a backup to discover them.
func selectRepositories(cfg *config.Config, direction diff.Direction) ([]string, error) {
	if len(transferRepos) > 0 {
		for _, repo := range transferRepos {
			if repo == "" || repo == "." || repo == ".." || strings.ContainsAny(repo, `/\`) {
				return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
					fmt.Sprintf("invalid repository name: %q", repo)).Build())
			}
		}
		return transferRepos, nil
	}
	if backupAll && direction == diff.DirectionBackup {
		return nil, nil
	}
	return cfg.Repositories, nil
}
