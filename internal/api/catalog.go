package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

type namedEntry struct {
	Name   string `json:"name"`
	Linked bool   `json:"linked,omitempty"`
}

type fileEntry struct {
	Repo    string `json:"repo"`
	Package string `json:"package"`
	Version string `json:"version"`
	Path    string `json:"path"`
	SHA1    string `json:"sha1"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
}

// ListRepositoryNames returns the organisation's repositories in server order
func (c *Client) ListRepositoryNames(ctx context.Context) ([]string, error) {
	reqCtx := NewRequestContext(ctx, "", "", types.RequestTypeList)

	var entries []namedEntry
	if _, err := c.getJSON(ctx, reqCtx, c.apiURL("repos", c.organisation)+"/", &entries); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

// ListPackageNames pages through a repository's packages using start_pos.
// It stops when the range headers are absent or the last page is reached,
// and fails rather than loop when the server stops making progress.
func (c *Client) ListPackageNames(ctx context.Context, repository string) ([]string, error) {
	reqCtx := NewRequestContext(ctx, repository, "", types.RequestTypeList)
	base := c.apiURL("repos", c.organisation, repository, "packages")

	var names []string
	startPos := 0
	for page := 0; page < utils.MaxListPages; page++ {
		var entries []namedEntry
		header, err := c.getJSON(ctx, reqCtx, base+"?start_pos="+url.QueryEscape(strconv.Itoa(startPos)), &entries)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			names = append(names, e.Name)
		}

		next, done, err := nextStartPos(header, startPos)
		if err != nil {
			return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeRemoteRequest, err.Error()).
				WithContext("repository", repository).
				WithContext("traceId", reqCtx.TraceID).
				Build())
		}
		if done {
			c.logger.WithTraceID(reqCtx.TraceID).Debug("Listed packages",
				logging.F("repository", repository),
				logging.F("packages", len(names)),
				logging.F("pages", page+1),
			)
			return names, nil
		}
		startPos = next
	}

	return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeRemoteRequest,
		fmt.Sprintf("package listing for %s exceeded %d pages", repository, utils.MaxListPages)).
		WithContext("repository", repository).
		Build())
}

// nextStartPos interprets the X-RangeLimit headers of a page that began at startPos
func nextStartPos(header http.Header, startPos int) (next int, done bool, err error) {
	rawEnd := header.Get(utils.HeaderRangeEndPos)
	if rawEnd == "" {
		return 0, true, nil
	}
	endPos, err := strconv.Atoi(rawEnd)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s header %q", utils.HeaderRangeEndPos, rawEnd)
	}
	rawTotal := header.Get(utils.HeaderRangeTotal)
	total, err := strconv.Atoi(rawTotal)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s header %q", utils.HeaderRangeTotal, rawTotal)
	}
	if endPos+1 >= total {
		return 0, true, nil
	}
	if endPos+1 <= startPos {
		return 0, false, fmt.Errorf("pagination made no progress at start_pos=%d (end=%d, total=%d)", startPos, endPos, total)
	}
	return endPos + 1, false, nil
}

// GetPackageMetadata fetches one package's metadata document. The identity keys
// are filled from the request when the server omits them.
func (c *Client) GetPackageMetadata(ctx context.Context, repository, pkg string) (types.PackageMetadata, error) {
	reqCtx := NewRequestContext(ctx, repository, pkg, types.RequestTypeMetadata)

	var meta types.PackageMetadata
	if _, err := c.getJSON(ctx, reqCtx, c.apiURL("packages", c.organisation, repository, pkg), &meta); err != nil {
		return nil, err
	}
	if meta == nil {
		meta = types.PackageMetadata{}
	}
	if meta.Name() == "" {
		meta[types.MetadataKeyName] = types.String(pkg)
	}
	if meta.Repository() == "" {
		meta[types.MetadataKeyRepository] = types.String(repository)
	}
	return meta, nil
}

// GetPackageFiles lists every file of every version of a package.
// Paths are normalised to be relative; records are not validated here.
func (c *Client) GetPackageFiles(ctx context.Context, repository, pkg string) ([]types.FileRecord, error) {
	reqCtx := NewRequestContext(ctx, repository, pkg, types.RequestTypeMetadata)

	var entries []fileEntry
	if _, err := c.getJSON(ctx, reqCtx, c.apiURL("packages", c.organisation, repository, pkg, "files"), &entries); err != nil {
		return nil, err
	}

	records := make([]types.FileRecord, 0, len(entries))
	for _, e := range entries {
		record := types.FileRecord{
			Repository: e.Repo,
			Package:    e.Package,
			Version:    e.Version,
			Path:       types.NormalizeRelativePath(e.Path),
			SHA1:       e.SHA1,
			Name:       e.Name,
			Size:       e.Size,
		}
		if record.Repository == "" {
			record.Repository = repository
		}
		if record.Package == "" {
			record.Package = pkg
		}
		records = append(records, record)
	}
	return records, nil
}
