package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/sync/exclude"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// LocalScanner reads the backup tree rooted at a base directory:
//
//	{base}/{repository}/{package}/package_metadata.json
//	{base}/{repository}/{package}/{version}/{path...}
type LocalScanner struct {
	baseDir string
	matcher *exclude.Matcher
	logger  logging.Logger
}

func NewLocalScanner(baseDir string, matcher *exclude.Matcher, logger logging.Logger) *LocalScanner {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &LocalScanner{baseDir: baseDir, matcher: matcher, logger: logger}
}

// BaseDir returns the directory repositories are stored under
func (s *LocalScanner) BaseDir() string {
	return s.baseDir
}

// RepositoryRoot returns the directory holding one repository
func (s *LocalScanner) RepositoryRoot(repository string) string {
	return filepath.Join(s.baseDir, repository)
}

// CheckRoots fails unless every repository root exists and is a directory
func (s *LocalScanner) CheckRoots(repositories []string) error {
	var missing []string
	for _, repo := range repositories {
		info, err := os.Stat(s.RepositoryRoot(repo))
		if err != nil || !info.IsDir() {
			missing = append(missing, s.RepositoryRoot(repo))
		}
	}
	if len(missing) > 0 {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeConfiguration,
			fmt.Sprintf("repository root not found: %s", strings.Join(missing, ", "))).
			WithContext("missing", missing).
			WithContext("suggestedAction", "run a backup first or point --dir at an existing backup").
			Build())
	}
	return nil
}

// GetCatalog walks each repository root in order. A missing root yields no
// entries; callers that need the roots call CheckRoots first.
func (s *LocalScanner) GetCatalog(ctx context.Context, repositories []string) (Snapshot, error) {
	var snap Snapshot
	for _, repo := range repositories {
		if err := s.scanRepository(ctx, repo, &snap); err != nil {
			return Snapshot{}, err
		}
	}
	s.logger.Debug("Scanned local catalog",
		logging.F("baseDir", s.baseDir),
		logging.F("files", len(snap.Files)),
		logging.F("packages", len(snap.Packages)),
		logging.F("rejected", len(snap.Rejected)),
	)
	return snap, nil
}

func (s *LocalScanner) scanRepository(ctx context.Context, repo string, snap *Snapshot) error {
	root := s.RepositoryRoot(repo)
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("Repository root absent", logging.F("root", root))
		return nil
	}

	err := filepath.WalkDir(root, func(current string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return utils.NewLocalIOError(current, walkErr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, current)
		if err != nil {
			return utils.NewLocalIOError(current, err)
		}
		if rel == "." {
			return nil
		}
		rel = path.Clean(filepath.ToSlash(rel))

		if s.matcher.IsExcluded(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if utils.IsPartialDownload(d.Name()) {
			s.logger.Warn("Skipping partial download", logging.F("path", current))
			return nil
		}

		if isMetadataPath(rel) {
			meta, err := readMetadata(current, repo, path.Dir(rel))
			if err != nil {
				snap.Rejected = append(snap.Rejected, Rejection{
					Path:   repo + "/" + rel,
					Code:   utils.ErrorCode(err),
					Reason: err.Error(),
				})
				return nil
			}
			snap.Packages = append(snap.Packages, meta)
			return nil
		}

		record, err := types.ParseCanonicalPath(repo + "/" + rel)
		if err != nil {
			snap.Rejected = append(snap.Rejected, Rejection{
				Path:   repo + "/" + rel,
				Code:   utils.ErrCodeInvalidArgument,
				Reason: err.Error(),
			})
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return utils.NewLocalIOError(current, err)
		}
		record.Size = info.Size()
		record.LocalPath = current
		snap.Files = append(snap.Files, record)
		return nil
	})
	return err
}

// isMetadataPath reports whether rel is {package}/package_metadata.json
func isMetadataPath(rel string) bool {
	dir, name := path.Split(rel)
	return name == utils.PackageMetadataFileName && dir != "" && !strings.Contains(strings.TrimSuffix(dir, "/"), "/")
}

// readMetadata loads a package document, filling identity keys from its location
func readMetadata(file, repo, pkg string) (types.PackageMetadata, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, utils.NewLocalIOError(file, err)
	}
	var meta types.PackageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeLocalIO,
			fmt.Sprintf("invalid package metadata: %v", err)).
			WithContext("path", file).
			Build(), err)
	}
	if meta == nil {
		meta = types.PackageMetadata{}
	}
	if meta.Name() == "" {
		meta[types.MetadataKeyName] = types.String(pkg)
	}
	if meta.Repository() == "" {
		meta[types.MetadataKeyRepository] = types.String(repo)
	}
	return meta, nil
}

// WriteMetadata stores meta as {base}/{repository}/{package}/package_metadata.json,
// replacing any previous document.
func (s *LocalScanner) WriteMetadata(meta types.PackageMetadata) (string, error) {
	id := meta.Identity()
	if id.Repository == "" || id.Name == "" || strings.ContainsAny(id.Repository+id.Name, `/\`) {
		return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("package identity %q cannot be stored locally", id.String())).Build())
	}

	dir := filepath.Join(s.baseDir, id.Repository, id.Name)
	target := filepath.Join(dir, utils.PackageMetadataFileName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", utils.NewLocalIOError(dir, err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err)
	}
	if err := os.WriteFile(target, append(data, '\n'), 0644); err != nil {
		return "", utils.NewLocalIOError(target, err)
	}
	return target, nil
}

// LocalPath maps a record onto the backup tree
func (s *LocalScanner) LocalPath(record types.FileRecord) string {
	return filepath.Join(s.baseDir, record.Repository, record.Package, record.Version, filepath.FromSlash(record.Path))
}
