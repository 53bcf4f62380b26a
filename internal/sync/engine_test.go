package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hmrc/bintray-backup-restore/internal/api"
	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/sync/diff"
	"github.com/hmrc/bintray-backup-restore/internal/sync/index"
	testhelpers "github.com/hmrc/bintray-backup-restore/internal/testing"
	"github.com/hmrc/bintray-backup-restore/internal/testing/mocks"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

func newTestEngine(t *testing.T, fake *mocks.FakeBintray, withHistory bool) (*Engine, *index.DB) {
	t.Helper()
	client, err := api.NewClient(api.ClientOptions{
		APIBaseURL:      fake.APIBaseURL(),
		DownloadBaseURL: fake.DownloadBaseURL(),
		Organisation:    fake.Organisation,
		Credentials:     types.Credentials{Username: "builder", Token: "t0ken"},
		Retry:           api.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	var history *index.DB
	if withHistory {
		history, err = index.Open(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatalf("index.Open() error = %v", err)
		}
	}
	engine := NewEngine(client, history, logging.NewNoOpLogger())
	t.Cleanup(func() { _ = engine.Close() })
	return engine, history
}

func seedRemote(fake *mocks.FakeBintray) {
	fake.AddPackage(testhelpers.TestPackage("releases", "fake_package", map[string]types.Value{
		"labels":  types.Strings("something"),
		"vcs_url": types.String("https://github.com/hmrc/fake_package"),
	}))
	fake.AddFile(testhelpers.TestFileRecord("releases", "fake_package", "0.0.1", "this/is/my/path/foo.txt", ""), []byte("1234567890"))
	fake.AddFile(testhelpers.TestFileRecord("releases", "fake_package", "0.0.1", "this/is/my/path/bar.txt", ""), []byte("this is a test file"))
	fake.AddRepository("sbt-plugin-releases")
}

func TestBackupSkipsInSyncFilesAndDownloadsTheRest(t *testing.T) {
	fake := mocks.NewFakeBintray(t, "hmrc")
	seedRemote(fake)
	engine, history := newTestEngine(t, fake, true)

	base := t.TempDir()
	testhelpers.WriteFile(t, base, "releases/fake_package/0.0.1/this/is/my/path/foo.txt", []byte("1234567890"))

	opts := Options{LocalDir: base, Repositories: []string{"releases", "sbt-plugin-releases"}, Concurrency: 2}
	result, err := engine.Backup(context.Background(), opts)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	want := diff.Tally{FilesSkipped: 1, FilesTransferred: 1, PackagesCreated: 1}
	if d := cmp.Diff(want, result.Tally); d != "" {
		t.Errorf("tally mismatch (-want +got):\n%s", d)
	}
	if got := testhelpers.ReadFile(t, base, "releases/fake_package/0.0.1/this/is/my/path/bar.txt"); string(got) != "this is a test file" {
		t.Errorf("downloaded content = %q", got)
	}
	if fake.CountRequests(http.MethodPost)+fake.CountRequests(http.MethodPut) != 0 {
		t.Errorf("backup must not write to the remote side")
	}

	meta := testhelpers.ReadFile(t, base, "releases/fake_package/package_metadata.json")
	var doc types.PackageMetadata
	if err := json.Unmarshal(meta, &doc); err != nil {
		t.Fatalf("metadata not valid JSON: %v", err)
	}
	if vcs, _ := doc.StringField("vcs_url"); vcs != "https://github.com/hmrc/fake_package" {
		t.Errorf("vcs_url = %q", vcs)
	}

	run, err := history.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != index.StatusCompleted || run.FilesTransferred != 1 {
		t.Errorf("recorded run = %+v", run)
	}

	// A second run finds everything in sync.
	again, err := engine.Backup(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Backup() error = %v", err)
	}
	if d := cmp.Diff(diff.Tally{FilesSkipped: 2, PackagesSkipped: 1}, again.Tally); d != "" {
		t.Errorf("second tally mismatch (-want +got):\n%s", d)
	}
}

func TestBackupAllRepositories(t *testing.T) {
	fake := mocks.NewFakeBintray(t, "hmrc")
	seedRemote(fake)
	fake.AddPackage(testhelpers.TestPackage("sbt-plugin-releases", "plugin", nil))
	fake.AddFile(testhelpers.TestFileRecord("sbt-plugin-releases", "plugin", "1.0", "plugin.jar", ""), []byte("abc"))
	engine, _ := newTestEngine(t, fake, false)

	base := t.TempDir()
	result, err := engine.Backup(context.Background(), Options{LocalDir: base})
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if d := cmp.Diff([]string{"releases", "sbt-plugin-releases"}, result.Repositories); d != "" {
		t.Errorf("repositories mismatch (-want +got):\n%s", d)
	}
	if result.Tally.FilesTransferred != 3 || result.Tally.PackagesCreated != 2 {
		t.Errorf("tally = %+v", result.Tally)
	}
	testhelpers.ReadFile(t, base, "sbt-plugin-releases/plugin/1.0/plugin.jar")
}

func TestBackupRecordsFailedDownloads(t *testing.T) {
	fake := mocks.NewFakeBintray(t, "hmrc")
	seedRemote(fake)
	fake.Fail(http.MethodGet, "/dl/hmrc/releases/this/is/my/path/bar.txt", http.StatusNotFound)
	engine, history := newTestEngine(t, fake, true)

	result, err := engine.Backup(context.Background(), Options{LocalDir: t.TempDir(), Repositories: []string{"releases"}})
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if !result.Failed() || result.Tally.FilesFailed != 1 || result.Tally.FilesTransferred != 1 {
		t.Fatalf("tally = %+v", result.Tally)
	}

	failures, err := history.ListFailures(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("ListFailures() error = %v", err)
	}
	if len(failures) != 1 || failures[0].Path != "releases/fake_package/0.0.1/this/is/my/path/bar.txt" || failures[0].Code != utils.ErrCodeTransfer {
		t.Errorf("failures = %+v", failures)
	}
	run, _ := history.GetRun(context.Background(), result.RunID)
	if run.Status != index.StatusPartial {
		t.Errorf("status = %s, want %s", run.Status, index.StatusPartial)
	}
}

func TestBackupAbortsOnCatalogError(t *testing.T) {
	fake := mocks.NewFakeBintray(t, "hmrc")
	seedRemote(fake)
	fake.Fail(http.MethodGet, "/api/packages/hmrc/releases/fake_package/files", http.StatusForbidden)
	engine, history := newTestEngine(t, fake, true)

	result, err := engine.Backup(context.Background(), Options{LocalDir: t.TempDir(), Repositories: []string{"releases"}})
	if utils.ErrorCode(err) != utils.ErrCodeAuthRequired {
		t.Fatalf("Backup() error = %v, want AUTH_REQUIRED", err)
	}
	if fake.CountRequests(http.MethodGet) != 3 {
		t.Errorf("unexpected requests after the failure: %+v", fake.Requests())
	}
	run, _ := history.GetRun(context.Background(), result.RunID)
	if run == nil || run.Status != index.StatusFailed {
		t.Errorf("recorded run = %+v", run)
	}
}

func TestRestoreCreatesMissingPackagesAndUploads(t *testing.T) {
	fake := mocks.NewFakeBintray(t, "hmrc")
	seedRemote(fake)
	engine, _ := newTestEngine(t, fake, false)

	base := t.TempDir()
	testhelpers.WriteFile(t, base, "releases/fake_package/package_metadata.json", []byte(`{"name":"fake_package","repo":"releases"}`))
	testhelpers.WriteFile(t, base, "releases/fake_package/0.0.1/this/is/my/path/foo.txt", []byte("1234567890"))
	testhelpers.WriteFile(t, base, "releases/fake_package_4/package_metadata.json",
		[]byte(`{"name":"fake_package_4","repo":"releases","labels":["something"],"otherkey":1}`))
	testhelpers.WriteFile(t, base, "releases/fake_package_4/0.0.1/this/is/my/path/qux.txt", []byte("this is a test file"))

	opts := Options{LocalDir: base, Repositories: []string{"releases"}, Concurrency: 2}
	result, err := engine.Restore(context.Background(), opts)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	want := diff.Tally{FilesSkipped: 1, FilesTransferred: 1, PackagesSkipped: 1, PackagesCreated: 1}
	if d := cmp.Diff(want, result.Tally); d != "" {
		t.Errorf("tally mismatch (-want +got):\n%s", d)
	}

	created := fake.CreateRequests()
	if len(created) != 1 {
		t.Fatalf("create requests = %+v", created)
	}
	wantBody := map[string]interface{}{
		"name":                      "fake_package_4",
		"licenses":                  []interface{}{"Apache-2.0"},
		"vcs_url":                   "https://github.com/hmrc",
		"desc":                      nil,
		"labels":                    []interface{}{"something"},
		"website_url":               nil,
		"issue_tracker_url":         nil,
		"github_repo":               nil,
		"github_release_notes_file": nil,
	}
	if d := cmp.Diff(wantBody, created[0]); d != "" {
		t.Errorf("create body mismatch (-want +got):\n%s", d)
	}

	data, ok := fake.Content("releases", "this/is/my/path/qux.txt")
	if !ok || string(data) != "this is a test file" {
		t.Errorf("uploaded content = %q, %v", data, ok)
	}
	for _, r := range fake.Requests() {
		if r.Method == http.MethodPut && r.Query != "publish=1&override=1" {
			t.Errorf("upload without publish/override: %+v", r)
		}
	}

	again, err := engine.Restore(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Restore() error = %v", err)
	}
	if again.Tally.FilesTransferred != 0 || again.Tally.PackagesCreated != 0 {
		t.Errorf("second restore did work: %+v", again.Tally)
	}
}

func TestRestoreMissingRootMakesNoRequests(t *testing.T) {
	fake := mocks.NewFakeBintray(t, "hmrc")
	engine, history := newTestEngine(t, fake, true)

	base := t.TempDir()
	testhelpers.WriteFile(t, base, "releases/p/package_metadata.json", []byte(`{}`))

	result, err := engine.Restore(context.Background(), Options{LocalDir: base, Repositories: []string{"releases", "sbt-plugin-releases"}})
	if utils.ErrorCode(err) != utils.ErrCodeConfiguration {
		t.Fatalf("Restore() error = %v, want CONFIGURATION_ERROR", err)
	}
	if n := len(fake.Requests()); n != 0 {
		t.Errorf("made %d requests before failing", n)
	}
	run, _ := history.GetRun(context.Background(), result.RunID)
	if run == nil || run.Status != index.StatusFailed {
		t.Errorf("recorded run = %+v", run)
	}
}

func TestRestoreRequiresRepositories(t *testing.T) {
	fake := mocks.NewFakeBintray(t, "hmrc")
	engine, _ := newTestEngine(t, fake, false)

	_, err := engine.Restore(context.Background(), Options{LocalDir: t.TempDir()})
	if utils.ErrorCode(err) != utils.ErrCodeConfiguration {
		t.Fatalf("Restore() error = %v, want CONFIGURATION_ERROR", err)
	}
}

func TestDryRunPlansWithoutSideEffects(t *testing.T) {
	fake := mocks.NewFakeBintray(t, "hmrc")
	seedRemote(fake)
	engine, history := newTestEngine(t, fake, true)

	base := t.TempDir()
	result, err := engine.Backup(context.Background(), Options{LocalDir: base, Repositories: []string{"releases"}, DryRun: true})
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if result.Plan == nil || len(result.Plan.Transfers) != 2 {
		t.Fatalf("plan = %+v", result.Plan)
	}
	if result.Tally.FilesTransferred != 2 {
		t.Errorf("tally = %+v", result.Tally)
	}
	if matches, _ := filepath.Glob(filepath.Join(base, "*")); len(matches) != 0 {
		t.Errorf("dry run wrote %v", matches)
	}
	if runs, _ := history.ListRuns(context.Background(), 0); len(runs) != 0 {
		t.Errorf("dry run was recorded: %+v", runs)
	}
}

func TestRunUsesTraceIDFromContext(t *testing.T) {
	fake := mocks.NewFakeBintray(t, "hmrc")
	fake.AddRepository("releases")
	engine, _ := newTestEngine(t, fake, false)

	ctx := logging.ContextWithTraceID(context.Background(), "trace-1234")
	result, err := engine.Backup(ctx, Options{LocalDir: t.TempDir(), Repositories: []string{"releases"}})
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if result.RunID != "trace-1234" {
		t.Errorf("RunID = %s", result.RunID)
	}
}
