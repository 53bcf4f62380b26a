package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hmrc/bintray-backup-restore/internal/auth"
	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage the Bintray username and API token used for every request",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store Bintray credentials",
	Long: `Store a Bintray username and API token in the system keyring, or in an
encrypted file when no keyring is available. The token is read from
--token, BINTRAY_TOKEN or standard input.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Long:  "Delete stored credentials for the current or specified profile",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  "Display which credentials a run would use and where they come from",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var authNoVerify bool

func init() {
	authLoginCmd.Flags().BoolVar(&authNoVerify, "no-verify", false, "Store the credentials without checking them against Bintray")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	flags := GetGlobalFlags()
	out := newOutput()
	cfg := effectiveConfig()

	creds := types.Credentials{Username: cfg.Username, Token: flags.Token}
	if creds.Token == "" {
		creds.Token = os.Getenv(auth.EnvToken)
	}
	if creds.Token == "" {
		token, err := readToken(cmd, out)
		if err != nil {
			return out.WriteError("auth.login", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
		}
		creds.Token = token
	}
	if !creds.Complete() {
		return out.WriteError("auth.login", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("username and token required. Set via --username/--token or %s/%s", auth.EnvUsername, auth.EnvToken)).Build())
	}

	mgr := newAuthManager()
	if warning := mgr.GetStorageWarning(); warning != "" {
		out.Log("%s", warning)
	}

	verified := false
	if !authNoVerify {
		if cfg.Organisation == "" {
			out.AddWarning("NOT_VERIFIED", "no organisation configured; credentials stored without a check", "warning")
		} else {
			client, err := newClientWith(cfg, creds)
			if err != nil {
				return out.WriteErr("auth.login", err)
			}
			if _, err := client.ListRepositoryNames(ctx); err != nil {
				return out.WriteErr("auth.login", err)
			}
			verified = true
		}
	}

	if err := mgr.SaveCredentials(flags.Profile, creds); err != nil {
		return out.WriteErr("auth.login", err)
	}
	GetLogger().Info("Credentials stored",
		logging.F("profile", flags.Profile),
		logging.F("backend", mgr.GetStorageBackend()),
	)

	out.Log("Credentials stored for profile: %s", flags.Profile)
	return out.WriteSuccess("auth.login", map[string]interface{}{
		"profile":        flags.Profile,
		"username":       creds.Username,
		"verified":       verified,
		"storageBackend": mgr.GetStorageBackend(),
	})
}

// readToken reads one line from standard input
func readToken(cmd *cobra.Command, out *OutputWriter) (string, error) {
	out.Log("Bintray API token: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("no token given: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := newOutput()

	mgr := newAuthManager()
	if err := mgr.DeleteCredentials(flags.Profile); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return out.WriteError("auth.logout", utils.NewCLIError(utils.ErrCodeAuthRequired,
				fmt.Sprintf("No credentials found for profile '%s'", flags.Profile)).Build())
		}
		return out.WriteError("auth.logout", utils.NewCLIError(utils.ErrCodeLocalIO, err.Error()).Build())
	}

	out.Log("Credentials removed for profile: %s", flags.Profile)
	return out.WriteSuccess("auth.logout", map[string]interface{}{
		"profile": flags.Profile,
		"status":  "logged_out",
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := newOutput()
	cfg := effectiveConfig()

	mgr := newAuthManager()
	if warning := mgr.GetStorageWarning(); warning != "" && flags.Verbose {
		out.Log("%s", warning)
	}

	creds, source, err := mgr.ResolveCredentials(flags.Profile, types.Credentials{
		Username: cfg.Username,
		Token:    flags.Token,
	})
	status := map[string]interface{}{
		"profile":        flags.Profile,
		"organisation":   cfg.Organisation,
		"authenticated":  err == nil,
		"source":         string(source),
		"storageBackend": mgr.GetStorageBackend(),
	}
	if err == nil {
		status["username"] = creds.Username
	}
	return out.WriteSuccess("auth.status", status)
}
