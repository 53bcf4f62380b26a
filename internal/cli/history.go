package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hmrc/bintray-backup-restore/internal/sync/index"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded backup and restore runs",
	Long: `Without arguments, list recent runs newest first. With a run ID, show that
run and every item that failed in it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Remove a run from the history",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list (0 for all)")

	historyCmd.AddCommand(historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := newOutput()

	db, err := openHistory()
	if err != nil {
		return out.WriteError("history", utils.NewCLIError(utils.ErrCodeLocalIO, err.Error()).Build())
	}
	defer db.Close()

	if len(args) == 0 {
		runs, err := db.ListRuns(ctx, historyLimit)
		if err != nil {
			return out.WriteError("history", utils.NewCLIError(utils.ErrCodeLocalIO, err.Error()).Build())
		}
		if runs == nil {
			runs = []index.Run{}
		}
		return out.WriteSuccess("history", runList{Runs: runs})
	}

	run, err := db.GetRun(ctx, args[0])
	if err != nil {
		return out.WriteError("history.show", historyLookupError(args[0], err))
	}
	failures, err := db.ListFailures(ctx, run.ID)
	if err != nil {
		return out.WriteError("history.show", utils.NewCLIError(utils.ErrCodeLocalIO, err.Error()).Build())
	}
	if failures == nil {
		failures = []index.Failure{}
	}
	return out.WriteSuccess("history.show", runDetail{Run: *run, Failures: failures})
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := newOutput()

	db, err := openHistory()
	if err != nil {
		return out.WriteError("history.delete", utils.NewCLIError(utils.ErrCodeLocalIO, err.Error()).Build())
	}
	defer db.Close()

	if _, err := db.GetRun(ctx, args[0]); err != nil {
		return out.WriteError("history.delete", historyLookupError(args[0], err))
	}
	if err := db.DeleteRun(ctx, args[0]); err != nil {
		return out.WriteError("history.delete", utils.NewCLIError(utils.ErrCodeLocalIO, err.Error()).Build())
	}

	out.Log("Run %s removed from history", args[0])
	return out.WriteSuccess("history.delete", map[string]interface{}{
		"runId":   args[0],
		"deleted": true,
	})
}

func historyLookupError(runID string, err error) types.CLIError {
	if errors.Is(err, index.ErrRunNotFound) {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, fmt.Sprintf("no run with ID %s", runID)).Build()
	}
	return utils.NewCLIError(utils.ErrCodeLocalIO, err.Error()).Build()
}
