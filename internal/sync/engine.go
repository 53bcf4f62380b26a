package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/sync/diff"
	"github.com/hmrc/bintray-backup-restore/internal/sync/exclude"
	"github.com/hmrc/bintray-backup-restore/internal/sync/executor"
	"github.com/hmrc/bintray-backup-restore/internal/sync/index"
	"github.com/hmrc/bintray-backup-restore/internal/sync/scanner"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// RemoteClient is everything a run needs from the remote service
type RemoteClient interface {
	scanner.CatalogClient
	executor.Transport
	ListRepositoryNames(ctx context.Context) ([]string, error)
	Organisation() string
}

type Engine struct {
	client  RemoteClient
	history *index.DB
	logger  logging.Logger
}

type Options struct {
	Direction       diff.Direction
	LocalDir        string
	Repositories    []string
	ExcludePatterns []string
	Concurrency     int
	DryRun          bool
	Progress        scanner.ProgressReporter
	Reporter        executor.Reporter
}

type Result struct {
	RunID        string         `json:"runId"`
	Direction    diff.Direction `json:"direction"`
	Organisation string         `json:"organisation"`
	Repositories []string       `json:"repositories"`
	LocalDir     string         `json:"localDir"`
	DryRun       bool           `json:"dryRun"`
	Tally        diff.Tally     `json:"tally"`
	Failures     []diff.Failure `json:"failures"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
	Plan         *diff.Plan     `json:"plan,omitempty"`
}

// Failed reports whether any item of the run failed
func (r Result) Failed() bool {
	return r.Tally.HasFailures()
}

// NewEngine creates an engine. history may be nil to disable the run ledger.
func NewEngine(client RemoteClient, history *index.DB, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Engine{
		client:  client,
		history: history,
		logger:  logger,
	}
}

func (e *Engine) Close() error {
	if e == nil || e.history == nil {
		return nil
	}
	return e.history.Close()
}

func (e *Engine) Backup(ctx context.Context, opts Options) (Result, error) {
	opts.Direction = diff.DirectionBackup
	return e.Run(ctx, opts)
}

func (e *Engine) Restore(ctx context.Context, opts Options) (Result, error) {
	opts.Direction = diff.DirectionRestore
	return e.Run(ctx, opts)
}

// ResolveRepositories returns the repositories a run covers. An empty list
// means every repository of the organisation, which only a backup may ask for.
func (e *Engine) ResolveRepositories(ctx context.Context, opts Options) ([]string, error) {
	if len(opts.Repositories) > 0 {
		return opts.Repositories, nil
	}
	if opts.Direction == diff.DirectionRestore {
		return nil, utils.NewConfigurationError("restore needs an explicit list of repositories")
	}
	repos, err := e.client.ListRepositoryNames(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Discovered repositories", logging.F("repositories", repos))
	return repos, nil
}

func (e *Engine) localScanner(opts Options) *scanner.LocalScanner {
	return scanner.NewLocalScanner(opts.LocalDir, exclude.New(opts.ExcludePatterns), e.logger)
}

// Plan reads both catalogs and compares them without side effects. For a
// restore the local repository roots are checked before any remote call.
func (e *Engine) Plan(ctx context.Context, opts Options) (diff.Plan, []string, error) {
	local := e.localScanner(opts)
	remote := scanner.NewRemoteScanner(e.client, scanner.RemoteOptions{
		Concurrency: opts.Concurrency,
		Reporter:    opts.Progress,
		Logger:      e.logger,
	})

	switch opts.Direction {
	case diff.DirectionBackup:
		repos, err := e.ResolveRepositories(ctx, opts)
		if err != nil {
			return diff.Plan{}, nil, err
		}
		remoteSnap, err := remote.GetCatalog(ctx, repos)
		if err != nil {
			return diff.Plan{}, repos, err
		}
		localSnap, err := local.GetCatalog(ctx, repos)
		if err != nil {
			return diff.Plan{}, repos, err
		}
		return diff.PlanBackup(remoteSnap, localSnap, scanner.HashFile), repos, nil

	case diff.DirectionRestore:
		repos, err := e.ResolveRepositories(ctx, opts)
		if err != nil {
			return diff.Plan{}, nil, err
		}
		if err := local.CheckRoots(repos); err != nil {
			return diff.Plan{}, repos, err
		}
		localSnap, err := local.GetCatalog(ctx, repos)
		if err != nil {
			return diff.Plan{}, repos, err
		}
		remoteSnap, err := remote.GetCatalog(ctx, repos)
		if err != nil {
			return diff.Plan{}, repos, err
		}
		return diff.PlanRestore(localSnap, remoteSnap, scanner.HashFile), repos, nil

	default:
		return diff.Plan{}, nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"unknown direction "+string(opts.Direction)).Build())
	}
}

// Run plans and applies one backup or restore. Item failures are reported
// in the result; the error is reserved for failures that stop the run.
func (e *Engine) Run(ctx context.Context, opts Options) (Result, error) {
	runID := logging.TraceIDFromContext(ctx)
	if runID == "" {
		runID = uuid.New().String()
		ctx = logging.ContextWithTraceID(ctx, runID)
	}
	logger := e.logger.WithTraceID(runID)

	result := Result{
		RunID:        runID,
		Direction:    opts.Direction,
		Organisation: e.client.Organisation(),
		Repositories: opts.Repositories,
		LocalDir:     opts.LocalDir,
		DryRun:       opts.DryRun,
		StartedAt:    time.Now(),
	}
	logger.Info("Run started",
		logging.F("direction", string(opts.Direction)),
		logging.F("localDir", opts.LocalDir),
		logging.F("dryRun", opts.DryRun),
	)

	plan, repos, err := e.Plan(ctx, opts)
	if repos != nil {
		result.Repositories = repos
	}
	if err != nil {
		result.FinishedAt = time.Now()
		e.record(ctx, result, err)
		return result, err
	}
	if opts.DryRun {
		result.Plan = &plan
	}

	exec := executor.New(e.client, e.localScanner(opts), logger)
	summary, err := exec.Apply(ctx, plan, executor.Options{
		Concurrency: opts.Concurrency,
		DryRun:      opts.DryRun,
		Reporter:    opts.Reporter,
	})
	result.Tally = plan.Tally.Add(summary.Tally)
	result.Failures = append(append([]diff.Failure{}, plan.Failures...), summary.Failures...)
	result.FinishedAt = time.Now()

	e.record(ctx, result, err)
	logger.Info("Run finished",
		logging.F("direction", string(opts.Direction)),
		logging.F("filesSkipped", result.Tally.FilesSkipped),
		logging.F("filesTransferred", result.Tally.FilesTransferred),
		logging.F("filesFailed", result.Tally.FilesFailed),
		logging.F("packagesSkipped", result.Tally.PackagesSkipped),
		logging.F("packagesCreated", result.Tally.PackagesCreated),
		logging.F("packagesFailed", result.Tally.PackagesFailed),
		logging.F("duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds()),
	)
	return result, err
}

// record writes a finished run to the history ledger. Dry runs are not
// recorded and a ledger error never fails the run.
func (e *Engine) record(ctx context.Context, result Result, runErr error) {
	if e.history == nil || result.DryRun {
		return
	}
	ctx = context.WithoutCancel(ctx)

	run := index.Run{
		ID:               result.RunID,
		Direction:        string(result.Direction),
		Organisation:     result.Organisation,
		Repositories:     result.Repositories,
		LocalDir:         result.LocalDir,
		Status:           index.StatusCompleted,
		StartedAt:        result.StartedAt.Unix(),
		FinishedAt:       result.FinishedAt.Unix(),
		FilesSkipped:     result.Tally.FilesSkipped,
		FilesTransferred: result.Tally.FilesTransferred,
		FilesFailed:      result.Tally.FilesFailed,
		PackagesSkipped:  result.Tally.PackagesSkipped,
		PackagesCreated:  result.Tally.PackagesCreated,
		PackagesFailed:   result.Tally.PackagesFailed,
	}
	switch {
	case runErr != nil:
		run.Status = index.StatusFailed
		run.Error = runErr.Error()
	case result.Failed():
		run.Status = index.StatusPartial
	}

	failures := make([]index.Failure, 0, len(result.Failures))
	for _, f := range result.Failures {
		failures = append(failures, index.Failure{
			RunID:   result.RunID,
			Kind:    string(f.Kind),
			Path:    f.Path,
			Code:    f.Code,
			Message: f.Message,
		})
	}

	if err := e.history.UpsertRun(ctx, run); err != nil {
		e.logger.Warn("Failed to record run", logging.F("runId", run.ID), logging.F("error", err))
		return
	}
	if err := e.history.ReplaceFailures(ctx, run.ID, failures); err != nil {
		e.logger.Warn("Failed to record run failures", logging.F("runId", run.ID), logging.F("error", err))
	}
}

// ListRuns returns recent runs from the history ledger
func (e *Engine) ListRuns(ctx context.Context, limit int) ([]index.Run, error) {
	if e.history == nil {
		return nil, nil
	}
	return e.history.ListRuns(ctx, limit)
}
