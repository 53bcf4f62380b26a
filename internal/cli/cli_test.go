package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zalando/go-keyring"

	syncengine "github.com/hmrc/bintray-backup-restore/internal/sync"
	"github.com/hmrc/bintray-backup-restore/internal/sync/diff"
	testhelpers "github.com/hmrc/bintray-backup-restore/internal/testing"
	"github.com/hmrc/bintray-backup-restore/internal/testing/mocks"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// envelope mirrors types.CLIOutput with raw data for decoding in tests
type envelope struct {
	SchemaVersion string           `json:"schemaVersion"`
	TraceID       string           `json:"traceId"`
	Command       string           `json:"command"`
	Data          json.RawMessage  `json:"data"`
	Errors        []types.CLIError `json:"errors"`
}

func resetCommandState(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetCommandState(c)
	}
}

// runCLI executes the root command in process and returns stdout
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetCommandState(rootCmd)
	globalFlags = types.GlobalFlags{}
	appConfig = nil
	debugTransport = nil
	traceID = ""

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func decodeEnvelope(t *testing.T, stdout string) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal([]byte(stdout), &env); err != nil {
		t.Fatalf("stdout is not a JSON envelope: %v\n%s", err, stdout)
	}
	return env
}

func exitCode(err error) int {
	var reported *reportedError
	if errors.As(err, &reported) {
		return utils.GetExitCode(reported.cliErr.Code)
	}
	if err != nil {
		return utils.GetExitCode(utils.ErrorCode(err))
	}
	return utils.ExitSuccess
}

// setupEnvironment points configuration, credentials and history at a fake server
func setupEnvironment(t *testing.T, fake *mocks.FakeBintray) {
	t.Helper()
	keyring.MockInit()
	t.Setenv("BBR_CONFIG_DIR", t.TempDir())
	t.Setenv("BBR_API_BASE_URL", fake.APIBaseURL())
	t.Setenv("BBR_DOWNLOAD_BASE_URL", fake.DownloadBaseURL())
	t.Setenv("BBR_MAX_RETRIES", "0")
	t.Setenv("BBR_RETRY_BASE_DELAY", "100")
	t.Setenv("BINTRAY_ORGANISATION", fake.Organisation)
	t.Setenv("BINTRAY_USERNAME", "builder")
	t.Setenv("BINTRAY_TOKEN", "t0ken")
}

func seedFake(t *testing.T) *mocks.FakeBintray {
	fake := mocks.NewFakeBintray(t, "hmrc")
	fake.AddPackage(testhelpers.TestPackage("releases", "fake_package", nil))
	fake.AddFile(testhelpers.TestFileRecord("releases", "fake_package", "0.0.1", "this/is/my/path/foo.txt", ""), []byte("1234567890"))
	fake.AddFile(testhelpers.TestFileRecord("releases", "fake_package", "0.0.1", "this/is/my/path/bar.txt", ""), []byte("this is a test file"))
	return fake
}

func TestBackupCommandWritesFilesAndHistory(t *testing.T) {
	fake := seedFake(t)
	setupEnvironment(t, fake)
	base := t.TempDir()

	stdout, err := runCLI(t, "backup", "--dir", base, "--repo", "releases", "--output", "json")
	if err != nil {
		t.Fatalf("backup error = %v\n%s", err, stdout)
	}
	env := decodeEnvelope(t, stdout)
	if env.Command != "backup" || len(env.Errors) != 0 || env.TraceID == "" {
		t.Fatalf("envelope = %+v", env)
	}
	var result syncengine.Result
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Tally.FilesTransferred != 2 || result.Tally.PackagesCreated != 1 {
		t.Errorf("tally = %+v", result.Tally)
	}
	if result.RunID != env.TraceID {
		t.Errorf("run ID %s differs from trace ID %s", result.RunID, env.TraceID)
	}
	if got := testhelpers.ReadFile(t, base, "releases/fake_package/0.0.1/this/is/my/path/foo.txt"); string(got) != "1234567890" {
		t.Errorf("foo.txt = %q", got)
	}

	stdout, err = runCLI(t, "history", "--json")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	var runs runList
	if err := json.Unmarshal(decodeEnvelope(t, stdout).Data, &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs.Runs) != 1 || runs.Runs[0].ID != result.RunID || runs.Runs[0].Status != "completed" {
		t.Fatalf("runs = %+v", runs.Runs)
	}

	stdout, err = runCLI(t, "history", result.RunID, "--json")
	if err != nil {
		t.Fatalf("history show error = %v", err)
	}
	if env := decodeEnvelope(t, stdout); env.Command != "history.show" {
		t.Errorf("command = %s", env.Command)
	}
}

func TestBackupCommandPartialFailureExitCode(t *testing.T) {
	fake := seedFake(t)
	fake.Fail(http.MethodGet, "/dl/hmrc/releases/this/is/my/path/bar.txt", http.StatusNotFound)
	setupEnvironment(t, fake)

	stdout, err := runCLI(t, "backup", "--dir", t.TempDir(), "--repo", "releases", "--output", "json")
	if code := exitCode(err); code != utils.ExitBatchPartialFailure {
		t.Fatalf("exit code = %d (%v), want %d", code, err, utils.ExitBatchPartialFailure)
	}
	env := decodeEnvelope(t, stdout)
	if len(env.Errors) != 1 || env.Errors[0].Code != utils.ErrCodeBatchPartialFailure {
		t.Fatalf("errors = %+v", env.Errors)
	}
	var result syncengine.Result
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Tally.FilesTransferred != 1 || result.Tally.FilesFailed != 1 {
		t.Errorf("tally = %+v", result.Tally)
	}
	if len(result.Failures) != 1 || result.Failures[0].Path != "releases/fake_package/0.0.1/this/is/my/path/bar.txt" {
		t.Errorf("failures = %+v", result.Failures)
	}
}

func TestRestoreCommandMissingRootIsConfigurationError(t *testing.T) {
	fake := seedFake(t)
	setupEnvironment(t, fake)

	_, err := runCLI(t, "restore", "--dir", t.TempDir(), "--repo", "releases", "--json")
	if code := exitCode(err); code != utils.ExitConfiguration {
		t.Fatalf("exit code = %d (%v), want %d", code, err, utils.ExitConfiguration)
	}
	if n := len(fake.Requests()); n != 0 {
		t.Errorf("restore made %d requests before checking local roots", n)
	}
}

func TestPlanCommandHasNoSideEffects(t *testing.T) {
	fake := seedFake(t)
	setupEnvironment(t, fake)
	base := t.TempDir()

	stdout, err := runCLI(t, "plan", "backup", "--dir", base, "--repo", "releases", "--json")
	if err != nil {
		t.Fatalf("plan error = %v", err)
	}
	var result syncengine.Result
	if err := json.Unmarshal(decodeEnvelope(t, stdout).Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.DryRun || result.Plan == nil || len(result.Plan.Transfers) != 2 {
		t.Fatalf("result = %+v", result)
	}
	if matches, _ := filepath.Glob(filepath.Join(base, "releases", "*")); len(matches) != 0 {
		t.Errorf("plan wrote %v", matches)
	}

	_, err = runCLI(t, "plan", "sideways")
	if code := exitCode(err); code != utils.ExitInvalidArgument {
		t.Errorf("unknown direction exit code = %d, want %d", code, utils.ExitInvalidArgument)
	}
}

func TestReposCommand(t *testing.T) {
	fake := seedFake(t)
	fake.AddRepository("sbt-plugin-releases")
	fake.AddRepository("scratch")
	setupEnvironment(t, fake)

	stdout, err := runCLI(t, "repos", "--json")
	if err != nil {
		t.Fatalf("repos error = %v", err)
	}
	var list repositoryList
	if err := json.Unmarshal(decodeEnvelope(t, stdout).Data, &list); err != nil {
		t.Fatalf("decode repos: %v", err)
	}
	if list.Organisation != "hmrc" || len(list.Repositories) != 3 {
		t.Errorf("repos = %+v", list)
	}
}

func TestAuthCommands(t *testing.T) {
	fake := seedFake(t)
	setupEnvironment(t, fake)
	t.Setenv("BINTRAY_USERNAME", "")
	t.Setenv("BINTRAY_TOKEN", "")

	if _, err := runCLI(t, "auth", "login", "--username", "builder", "--token", "t0ken", "--json"); err != nil {
		t.Fatalf("auth login error = %v", err)
	}
	if n := fake.CountRequests(http.MethodGet); n != 1 {
		t.Errorf("login verified with %d requests, want 1", n)
	}

	stdout, err := runCLI(t, "auth", "status", "--json")
	if err != nil {
		t.Fatalf("auth status error = %v", err)
	}
	var status map[string]interface{}
	if err := json.Unmarshal(decodeEnvelope(t, stdout).Data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["authenticated"] != true || status["source"] != string(types.CredentialSourceStored) || status["username"] != "builder" {
		t.Errorf("status = %v", status)
	}
	if strings.Contains(stdout, "t0ken") {
		t.Errorf("status leaked the token")
	}

	if _, err := runCLI(t, "auth", "logout", "--json"); err != nil {
		t.Fatalf("auth logout error = %v", err)
	}
	_, err = runCLI(t, "auth", "logout", "--json")
	if code := exitCode(err); code != utils.ExitAuthRequired {
		t.Errorf("second logout exit code = %d, want %d", code, utils.ExitAuthRequired)
	}
}

func TestAuthLoginRejectsBadCredentials(t *testing.T) {
	fake := seedFake(t)
	fake.Fail(http.MethodGet, "/api/repos/hmrc/", http.StatusUnauthorized)
	setupEnvironment(t, fake)

	_, err := runCLI(t, "auth", "login", "--json")
	if code := exitCode(err); code != utils.ExitAuthRequired {
		t.Fatalf("exit code = %d (%v), want %d", code, err, utils.ExitAuthRequired)
	}
	if _, err := newAuthManager().LoadCredentials("default"); err == nil {
		t.Errorf("rejected credentials were stored")
	}
}

func TestConfigSetValidates(t *testing.T) {
	t.Setenv("BBR_CONFIG_DIR", t.TempDir())
	keyring.MockInit()

	if _, err := runCLI(t, "config", "set", "repositories", "releases, sbt-plugin-releases, extra", "--json"); err != nil {
		t.Fatalf("config set error = %v", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if len(cfg.Repositories) != 3 || cfg.Repositories[2] != "extra" {
		t.Errorf("repositories = %v", cfg.Repositories)
	}

	_, err = runCLI(t, "config", "set", "concurrency", "500", "--json")
	if code := exitCode(err); code != utils.ExitInvalidArgument {
		t.Errorf("out of range exit code = %d, want %d", code, utils.ExitInvalidArgument)
	}
	_, err = runCLI(t, "config", "set", "nonsense", "1", "--json")
	if code := exitCode(err); code != utils.ExitInvalidArgument {
		t.Errorf("unknown key exit code = %d, want %d", code, utils.ExitInvalidArgument)
	}
}

func TestSelectRepositories(t *testing.T) {
	globalFlags = types.GlobalFlags{}
	appConfig = nil
	cfg := effectiveConfig()
	t.Cleanup(func() {
		transferRepos = nil
		backupAll = false
	})

	transferRepos, backupAll = nil, false
	if got, _ := selectRepositories(cfg, diff.DirectionRestore); len(got) != len(utils.DefaultRepositories) {
		t.Errorf("configured repositories = %v", got)
	}

	backupAll = true
	if got, _ := selectRepositories(cfg, diff.DirectionBackup); got != nil {
		t.Errorf("--all should ask for discovery, got %v", got)
	}
	if got, _ := selectRepositories(cfg, diff.DirectionRestore); len(got) == 0 {
		t.Errorf("--all must not apply to restore")
	}

	transferRepos = []string{"releases", "../etc"}
	if _, err := selectRepositories(cfg, diff.DirectionBackup); utils.ErrorCode(err) != utils.ErrCodeInvalidArgument {
		t.Errorf("error = %v, want INVALID_ARGUMENT", err)
	}
}

func TestOutputWriterEnvelope(t *testing.T) {
	var stdout, stderr bytes.Buffer
	w := NewOutputWriter(types.OutputFormatJSON, false, false).WithTraceID("trace-1").SetWriters(&stdout, &stderr)
	w.AddWarning("NOT_VERIFIED", "skipped", "warning")

	if err := w.WriteSuccess("repos", map[string]int{"n": 1}); err != nil {
		t.Fatalf("WriteSuccess() error = %v", err)
	}
	env := decodeEnvelope(t, stdout.String())
	if env.TraceID != "trace-1" || env.SchemaVersion != utils.SchemaVersion || env.Errors == nil {
		t.Errorf("envelope = %+v", env)
	}

	stdout.Reset()
	err := w.WriteErr("repos", utils.NewAppError(utils.NewCLIError(utils.ErrCodeRateLimited, "slow down").WithRetryable(true).Build()))
	if exitCode(err) != utils.ExitRateLimited {
		t.Errorf("exit code = %d", exitCode(err))
	}
	env = decodeEnvelope(t, stdout.String())
	if len(env.Errors) != 1 || !env.Errors[0].Retryable {
		t.Errorf("errors = %+v", env.Errors)
	}

	if code := exitCode(w.WriteErr("backup", context.Canceled)); code != utils.ExitCancelled {
		t.Errorf("cancelled exit code = %d", code)
	}
}

func TestResultViewTables(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	view := resultView{Result: syncengine.Result{
		RunID:        "run-1",
		Direction:    diff.DirectionRestore,
		Organisation: "hmrc",
		Repositories: []string{"releases"},
		LocalDir:     "/backup",
		DryRun:       true,
		Tally:        diff.Tally{FilesSkipped: 3, FilesTransferred: 1, PackagesCreated: 1, FilesFailed: 1},
		Failures:     []diff.Failure{{Kind: diff.FailureFile, Path: "releases/p/1/a.jar", Code: utils.ErrCodeTransfer, Message: "500"}},
		StartedAt:    start,
		FinishedAt:   start.Add(1500 * time.Millisecond),
		Plan: &diff.Plan{
			Packages:  []diff.Action{{Type: diff.ActionCreatePackage, Package: testhelpers.TestPackage("releases", "p", nil)}},
			Transfers: []diff.Action{{Type: diff.ActionUpload, File: testhelpers.TestFileRecord("releases", "p", "1", "b.jar", "")}},
		},
	}}

	var stdout bytes.Buffer
	w := NewOutputWriter(types.OutputFormatTable, false, false).SetWriters(&stdout, &bytes.Buffer{})
	if err := w.WriteSuccess("plan.restore", view); err != nil {
		t.Fatalf("WriteSuccess() error = %v", err)
	}
	for _, want := range []string{"run-1", "restore (dry run)", "1.5s", "create_package", "releases/p/1/b.jar", "releases/p/1/a.jar", "TRANSFER_ERROR"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("table output missing %q:\n%s", want, stdout.String())
		}
	}

	if tables := view.Tables(); len(tables) != 4 {
		t.Errorf("tables = %d, want summary, tally, plan and failures", len(tables))
	}
}
