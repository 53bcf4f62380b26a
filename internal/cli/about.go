package cli

import (
	"github.com/spf13/cobra"

	"github.com/hmrc/bintray-backup-restore/internal/config"
	"github.com/hmrc/bintray-backup-restore/pkg/version"
)

var aboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Display the effective setup and supported operations",
	Long:  "Show where configuration, credentials and run history live, and which operations are supported",
	Args:  cobra.NoArgs,
	RunE:  runAbout,
}

func init() {
	rootCmd.AddCommand(aboutCmd)
}

func runAbout(cmd *cobra.Command, args []string) error {
	cfg := effectiveConfig()
	configPath, _ := config.GetConfigPath()
	historyPath, _ := config.GetHistoryPath()
	mgr := newAuthManager()

	return newOutput().WriteSuccess("about", map[string]interface{}{
		"version":      version.Get(),
		"organisation": cfg.Organisation,
		"api": map[string]interface{}{
			"baseUrl":         cfg.APIBaseURL,
			"downloadBaseUrl": cfg.DownloadBaseURL,
			"supported_operations": []string{
				"backup", "restore", "plan.backup", "plan.restore", "repos",
				"history", "history.show", "history.delete",
				"auth.login", "auth.logout", "auth.status",
				"config.show", "config.set", "config.reset",
			},
			"features": []string{
				"sha1_change_detection", "package_metadata_sidecars", "package_creation",
				"dry_run", "run_history", "exclude_patterns", "retry_backoff", "rate_limiting",
			},
		},
		"output_formats": []string{"json", "table"},
		"configuration": map[string]interface{}{
			"config_file":     configPath,
			"history_db":      historyPath,
			"credentials_dir": mgr.ConfigDir(),
			"storage_backend": mgr.GetStorageBackend(),
			"local_dir":       cfg.LocalDir,
			"repositories":    cfg.Repositories,
		},
	})
}
