package scanner

import (
	"context"

	"github.com/hmrc/bintray-backup-restore/internal/types"
)

// Snapshot is one side's catalog plus the entries that could not be
// turned into records.
type Snapshot struct {
	types.Catalog
	Rejected []Rejection
}

// Rejection is a file or package document the scanner refused
type Rejection struct {
	Path   string
	Code   string
	Reason string
}

// CatalogClient is the part of the remote client a scan reads through
type CatalogClient interface {
	ListPackageNames(ctx context.Context, repository string) ([]string, error)
	GetPackageMetadata(ctx context.Context, repository, pkg string) (types.PackageMetadata, error)
	GetPackageFiles(ctx context.Context, repository, pkg string) ([]types.FileRecord, error)
}

// ProgressReporter is told about catalog loading as it happens.
// Implementations must be safe for concurrent use.
type ProgressReporter interface {
	RepositoryListed(repository string, packages int)
	PackageLoaded(repository, pkg string, files int)
}

// NoOpReporter discards progress
type NoOpReporter struct{}

func (NoOpReporter) RepositoryListed(string, int)      {}
func (NoOpReporter) PackageLoaded(string, string, int) {}
