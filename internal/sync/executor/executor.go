package executor

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/sync/diff"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// Transport moves content and packages to and from the remote side
type Transport interface {
	DownloadFile(ctx context.Context, record types.FileRecord, dest string) error
	UploadFile(ctx context.Context, localPath string, target types.FileRecord) error
	CreatePackage(ctx context.Context, meta types.PackageMetadata) error
}

// LocalStore is the local backup tree
type LocalStore interface {
	WriteMetadata(meta types.PackageMetadata) (string, error)
	LocalPath(record types.FileRecord) string
}

// Reporter is told about every finished action. It must be safe for
// concurrent use.
type Reporter interface {
	ActionDone(action diff.Action, err error)
}

type Executor struct {
	transport Transport
	store     LocalStore
	logger    logging.Logger
}

type Options struct {
	Concurrency int
	DryRun      bool
	Reporter    Reporter
}

// Summary is what Apply did
type Summary struct {
	Tally    diff.Tally
	Failures []diff.Failure
}

func New(transport Transport, store LocalStore, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Executor{
		transport: transport,
		store:     store,
		logger:    logger,
	}
}

// Apply runs a plan's package actions, then its transfers. A failed item is
// recorded in the summary and never stops the batch; only cancellation of
// ctx ends Apply early, in which case ctx's error is returned with the
// partial summary.
func (e *Executor) Apply(ctx context.Context, plan diff.Plan, opts Options) (Summary, error) {
	if opts.DryRun {
		return dryRunSummary(plan), nil
	}

	var summary Summary
	pkgErrs := make([]error, len(plan.Packages))
	if err := runConcurrent(ctx, len(plan.Packages), opts.Concurrency, func(ctx context.Context, i int) {
		pkgErrs[i] = e.applyPackage(ctx, plan.Packages[i])
		report(opts.Reporter, plan.Packages[i], pkgErrs[i])
	}); err != nil {
		return summary, err
	}

	failedPackages := make(map[types.PackageIdentity]struct{})
	for i, action := range plan.Packages {
		switch {
		case pkgErrs[i] != nil:
			failedPackages[action.Package.Identity()] = struct{}{}
			summary.Tally.PackagesFailed++
			summary.Failures = append(summary.Failures, failure(diff.FailurePackage, action, pkgErrs[i]))
		case action.NewPackage:
			summary.Tally.PackagesCreated++
		default:
			summary.Tally.PackagesSkipped++
		}
	}

	fileErrs := make([]error, len(plan.Transfers))
	if err := runConcurrent(ctx, len(plan.Transfers), opts.Concurrency, func(ctx context.Context, i int) {
		action := plan.Transfers[i]
		if _, failed := failedPackages[action.File.Identity()]; failed && action.NewPackage {
			fileErrs[i] = utils.NewAppError(utils.NewCLIError(utils.ErrCodeTransfer,
				"package "+action.File.Identity().String()+" could not be created").Build())
		} else {
			fileErrs[i] = e.applyTransfer(ctx, action)
		}
		report(opts.Reporter, action, fileErrs[i])
	}); err != nil {
		return summary, err
	}

	for i, action := range plan.Transfers {
		if fileErrs[i] != nil {
			summary.Tally.FilesFailed++
			summary.Failures = append(summary.Failures, failure(diff.FailureFile, action, fileErrs[i]))
			continue
		}
		summary.Tally.FilesTransferred++
	}
	return summary, nil
}

func (e *Executor) applyPackage(ctx context.Context, action diff.Action) error {
	id := action.Package.Identity()
	switch action.Type {
	case diff.ActionWriteMetadata:
		target, err := e.store.WriteMetadata(action.Package)
		if err != nil {
			e.logger.Warn("Failed to write package metadata", logging.F("package", id.String()), logging.F("error", err))
			return err
		}
		e.logger.Debug("Wrote package metadata", logging.F("package", id.String()), logging.F("path", target))
		return nil
	case diff.ActionCreatePackage:
		if err := e.transport.CreatePackage(ctx, action.Package); err != nil {
			e.logger.Warn("Failed to create package", logging.F("package", id.String()), logging.F("error", err))
			return err
		}
		e.logger.Info("Created package", logging.F("package", id.String()))
		return nil
	default:
		return unsupported(action)
	}
}

func (e *Executor) applyTransfer(ctx context.Context, action diff.Action) error {
	path := action.File.CanonicalPath()
	var err error
	switch action.Type {
	case diff.ActionDownload:
		err = e.transport.DownloadFile(ctx, action.File, e.store.LocalPath(action.File))
	case diff.ActionUpload:
		err = e.transport.UploadFile(ctx, action.File.LocalPath, action.File)
	default:
		err = unsupported(action)
	}
	if err != nil {
		e.logger.Warn("Transfer failed",
			logging.F("action", string(action.Type)),
			logging.F("path", path),
			logging.F("error", err),
		)
		return err
	}
	e.logger.Info("Transferred", logging.F("action", string(action.Type)), logging.F("path", path))
	return nil
}

// runConcurrent calls handler for 0..n-1 with at most concurrency calls in
// flight. Handlers record their own outcome; the returned error is only
// ever ctx's.
func runConcurrent(ctx context.Context, n, concurrency int, handler func(ctx context.Context, i int)) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			handler(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func dryRunSummary(plan diff.Plan) Summary {
	var summary Summary
	for _, action := range plan.Packages {
		if action.NewPackage {
			summary.Tally.PackagesCreated++
		} else {
			summary.Tally.PackagesSkipped++
		}
	}
	summary.Tally.FilesTransferred = len(plan.Transfers)
	return summary
}

func report(r Reporter, action diff.Action, err error) {
	if r != nil {
		r.ActionDone(action, err)
	}
}

func failure(kind diff.FailureKind, action diff.Action, err error) diff.Failure {
	code := utils.ErrorCode(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = utils.ErrCodeCancelled
	}
	return diff.Failure{
		Kind:    kind,
		Path:    action.Path(),
		Code:    code,
		Message: err.Error(),
	}
}

func unsupported(action diff.Action) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
		"unsupported action "+string(action.Type)).Build())
}
