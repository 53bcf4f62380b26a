package scanner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// RemoteScanner loads the remote catalog of a set of repositories
type RemoteScanner struct {
	client      CatalogClient
	concurrency int
	reporter    ProgressReporter
	logger      logging.Logger
}

type RemoteOptions struct {
	Concurrency int
	Reporter    ProgressReporter
	Logger      logging.Logger
}

func NewRemoteScanner(client CatalogClient, opts RemoteOptions) *RemoteScanner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Reporter == nil {
		opts.Reporter = NoOpReporter{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	return &RemoteScanner{
		client:      client,
		concurrency: opts.Concurrency,
		reporter:    opts.Reporter,
		logger:      opts.Logger,
	}
}

type packageResult struct {
	meta  types.PackageMetadata
	files []types.FileRecord
}

// GetCatalog lists every package of every repository and loads its metadata
// and files. Packages are fetched concurrently but the catalog keeps
// repository then package listing order. The first failed request aborts
// the scan.
func (s *RemoteScanner) GetCatalog(ctx context.Context, repositories []string) (Snapshot, error) {
	var snap Snapshot
	for _, repo := range repositories {
		names, err := s.client.ListPackageNames(ctx, repo)
		if err != nil {
			return Snapshot{}, err
		}
		s.reporter.RepositoryListed(repo, len(names))

		results := make([]packageResult, len(names))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for i, name := range names {
			g.Go(func() error {
				meta, err := s.client.GetPackageMetadata(gctx, repo, name)
				if err != nil {
					return err
				}
				files, err := s.client.GetPackageFiles(gctx, repo, name)
				if err != nil {
					return err
				}
				results[i] = packageResult{meta: meta, files: files}
				s.reporter.PackageLoaded(repo, name, len(files))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Snapshot{}, err
		}

		for _, r := range results {
			snap.Packages = append(snap.Packages, r.meta)
			for _, f := range r.files {
				if err := f.Validate(); err != nil {
					snap.Rejected = append(snap.Rejected, Rejection{
						Path:   f.CanonicalPath(),
						Code:   utils.ErrCodeInvalidArgument,
						Reason: err.Error(),
					})
					continue
				}
				snap.Files = append(snap.Files, f)
			}
		}
	}

	s.logger.Debug("Loaded remote catalog",
		logging.F("repositories", len(repositories)),
		logging.F("packages", len(snap.Packages)),
		logging.F("files", len(snap.Files)),
		logging.F("rejected", len(snap.Rejected)),
	)
	return snap, nil
}
