package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	syncengine "github.com/hmrc/bintray-backup-restore/internal/sync"
	"github.com/hmrc/bintray-backup-restore/internal/sync/diff"
	"github.com/hmrc/bintray-backup-restore/internal/sync/index"
	"github.com/hmrc/bintray-backup-restore/internal/types"
)

// staticTable is a TableRenderer over precomputed rows
type staticTable struct {
	headers []string
	rows    [][]string
	empty   string
}

func (t staticTable) Headers() []string    { return t.headers }
func (t staticTable) Rows() [][]string     { return t.rows }
func (t staticTable) EmptyMessage() string { return t.empty }

// resultView renders a run result as JSON or as summary, plan and failure tables
type resultView struct {
	syncengine.Result
}

func (v resultView) Tables() []types.TableRenderer {
	r := v.Result
	repos := strings.Join(r.Repositories, ", ")
	if repos == "" {
		repos = "-"
	}
	summary := staticTable{
		headers: []string{"Run", "Direction", "Organisation", "Repositories", "Local Dir", "Duration"},
		rows: [][]string{{
			r.RunID,
			string(r.Direction) + dryRunSuffix(r.DryRun),
			r.Organisation,
			repos,
			r.LocalDir,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		}},
	}
	tally := staticTable{
		headers: []string{"Item", "Skipped", "Transferred/Created", "Failed"},
		rows: [][]string{
			{"files", strconv.Itoa(r.Tally.FilesSkipped), strconv.Itoa(r.Tally.FilesTransferred), strconv.Itoa(r.Tally.FilesFailed)},
			{"packages", strconv.Itoa(r.Tally.PackagesSkipped), strconv.Itoa(r.Tally.PackagesCreated), strconv.Itoa(r.Tally.PackagesFailed)},
		},
	}

	tables := []types.TableRenderer{summary, tally}
	if r.Plan != nil {
		tables = append(tables, planTable(*r.Plan))
	}
	return append(tables, failureTable(r.Failures))
}

func dryRunSuffix(dryRun bool) string {
	if dryRun {
		return " (dry run)"
	}
	return ""
}

func planTable(plan diff.Plan) staticTable {
	t := staticTable{headers: []string{"Action", "Path"}, empty: "Nothing to do"}
	for _, a := range plan.Packages {
		t.rows = append(t.rows, []string{string(a.Type), a.Path()})
	}
	for _, a := range plan.Transfers {
		t.rows = append(t.rows, []string{string(a.Type), a.Path()})
	}
	return t
}

func failureTable(failures []diff.Failure) staticTable {
	t := staticTable{headers: []string{"Kind", "Path", "Code", "Message"}, empty: "No failures"}
	for _, f := range failures {
		t.rows = append(t.rows, []string{string(f.Kind), f.Path, f.Code, truncate(f.Message, 80)})
	}
	return t
}

// runList renders recorded runs, newest first
type runList struct {
	Runs []index.Run `json:"runs"`
}

func (l runList) AsTableRenderer() types.TableRenderer {
	t := staticTable{
		headers: []string{"Run", "Direction", "Status", "Started", "Duration", "Files (skip/done/fail)", "Packages (skip/done/fail)"},
		empty:   "No runs recorded",
	}
	for _, run := range l.Runs {
		t.rows = append(t.rows, []string{
			run.ID,
			run.Direction,
			run.Status,
			formatUnix(run.StartedAt),
			(time.Duration(run.FinishedAt-run.StartedAt) * time.Second).String(),
			fmt.Sprintf("%d/%d/%d", run.FilesSkipped, run.FilesTransferred, run.FilesFailed),
			fmt.Sprintf("%d/%d/%d", run.PackagesSkipped, run.PackagesCreated, run.PackagesFailed),
		})
	}
	return t
}

// runDetail renders one recorded run with its failed items
type runDetail struct {
	Run      index.Run       `json:"run"`
	Failures []index.Failure `json:"failures"`
}

func (d runDetail) Tables() []types.TableRenderer {
	summary := runList{Runs: []index.Run{d.Run}}.AsTableRenderer()
	failures := staticTable{headers: []string{"Kind", "Path", "Code", "Message"}, empty: "No failures"}
	for _, f := range d.Failures {
		failures.rows = append(failures.rows, []string{f.Kind, f.Path, f.Code, truncate(f.Message, 80)})
	}
	tables := []types.TableRenderer{summary}
	if d.Run.Error != "" {
		tables = append(tables, staticTable{headers: []string{"Error"}, rows: [][]string{{d.Run.Error}}})
	}
	return append(tables, failures)
}

func formatUnix(sec int64) string {
	if sec == 0 {
		return "-"
	}
	return time.Unix(sec, 0).Local().Format("2006-01-02 15:04:05")
}

// repositoryList renders the organisation's repositories
type repositoryList struct {
	Organisation string   `json:"organisation"`
	Repositories []string `json:"repositories"`
	Configured   []string `json:"configured"`
}

func (l repositoryList) AsTableRenderer() types.TableRenderer {
	configured := make(map[string]bool, len(l.Configured))
	for _, repo := range l.Configured {
		configured[repo] = true
	}
	t := staticTable{headers: []string{"Repository", "Backed Up By Default"}, empty: "No repositories"}
	for _, repo := range l.Repositories {
		mark := "no"
		if configured[repo] {
			mark = "yes"
		}
		t.rows = append(t.rows, []string{repo, mark})
	}
	return t
}
