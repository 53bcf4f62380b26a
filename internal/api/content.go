package api

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// Keys copied from local metadata into a package creation request
var passThroughKeys = []string{
	"desc",
	"labels",
	"website_url",
	"issue_tracker_url",
	"github_repo",
	"github_release_notes_file",
}

// CreatePackageRequest is the body of POST /packages/{org}/{repo}.
// Absent descriptive fields are sent as explicit nulls.
type CreatePackageRequest struct {
	Name                   string      `json:"name"`
	Licenses               []string    `json:"licenses"`
	VCSURL                 types.Value `json:"vcs_url"`
	Desc                   types.Value `json:"desc"`
	Labels                 types.Value `json:"labels"`
	WebsiteURL             types.Value `json:"website_url"`
	IssueTrackerURL        types.Value `json:"issue_tracker_url"`
	GithubRepo             types.Value `json:"github_repo"`
	GithubReleaseNotesFile types.Value `json:"github_release_notes_file"`
}

// NewCreatePackageRequest shapes local metadata into a creation request,
// applying the default license. The default VCS URL replaces an absent or
// null vcs_url only; any other value is sent as stored.
func NewCreatePackageRequest(meta types.PackageMetadata) CreatePackageRequest {
	req := CreatePackageRequest{
		Name:     meta.Name(),
		Licenses: []string{utils.DefaultLicense},
		VCSURL:   types.String(utils.DefaultVCSURL),
	}
	if vcs, ok := meta.Get("vcs_url"); ok && !vcs.IsNull() {
		req.VCSURL = vcs
	}

	fields := []*types.Value{
		&req.Desc,
		&req.Labels,
		&req.WebsiteURL,
		&req.IssueTrackerURL,
		&req.GithubRepo,
		&req.GithubReleaseNotesFile,
	}
	for i, key := range passThroughKeys {
		if v, ok := meta.Get(key); ok {
			*fields[i] = v
		} else {
			*fields[i] = types.Null()
		}
	}
	return req
}

// CreatePackage creates the package described by meta in its repository.
// A 409 means the package already exists and counts as success.
func (c *Client) CreatePackage(ctx context.Context, meta types.PackageMetadata) error {
	id := meta.Identity()
	reqCtx := NewRequestContext(ctx, id.Repository, id.Name, types.RequestTypeMutation)

	body, err := json.Marshal(NewCreatePackageRequest(meta))
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err)
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	target := c.apiURL("packages", c.organisation, id.Repository)

	_, err = ExecuteWithRetry(ctx, c.retry, c.logger, reqCtx, func() (struct{}, error) {
		resp, err := c.send(ctx, reqCtx, http.MethodPost, target, bytes.NewReader(body), int64(len(body)), header)
		if err != nil {
			return struct{}{}, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return struct{}{}, resp.Body.Close()
	})

	var appErr *utils.AppError
	if errors.As(err, &appErr) && appErr.CLIError.HTTPStatus == http.StatusConflict {
		c.logger.WithTraceID(reqCtx.TraceID).Warn("Package already exists",
			logging.F("repository", id.Repository),
			logging.F("package", id.Name),
		)
		return nil
	}
	return err
}

// DownloadURL returns the content delivery URL of a remote file
func (c *Client) DownloadURL(record types.FileRecord) string {
	return c.downloadBase + "/" + joinEscaped(c.organisation, record.Repository, record.Path)
}

// DownloadFile fetches record into dest. Content is written to a temporary file
// in dest's directory, checked against the listed SHA-1, then renamed into place.
func (c *Client) DownloadFile(ctx context.Context, record types.FileRecord, dest string) error {
	reqCtx := NewRequestContext(ctx, record.Repository, record.Package, types.RequestTypeDownload)

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return utils.NewLocalIOError(dest, err)
	}

	source := c.DownloadURL(record)
	_, err := ExecuteWithRetry(ctx, c.retry, c.logger, reqCtx, func() (struct{}, error) {
		resp, err := c.send(ctx, reqCtx, http.MethodGet, source, nil, -1, nil)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		return struct{}{}, writeVerified(ctx, resp.Body, dest, record, reqCtx)
	})
	return err
}

// writeVerified streams body into dest via a temp file, verifying the digest
func writeVerified(ctx context.Context, body io.Reader, dest string, record types.FileRecord, reqCtx *types.RequestContext) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), utils.PartialDownloadPattern(filepath.Base(dest)))
	if err != nil {
		return utils.NewLocalIOError(dest, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	hasher := sha1.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), body); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// A broken stream is transient; the next attempt starts from scratch.
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeTransfer, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("path", record.CanonicalPath()).
			Build(), err)
	}

	if record.SHA1 != "" {
		if got := hex.EncodeToString(hasher.Sum(nil)); got != record.SHA1 {
			return utils.NewAppError(utils.NewCLIError(utils.ErrCodeTransfer,
				fmt.Sprintf("checksum mismatch: got %s, want %s", got, record.SHA1)).
				WithRetryable(true).
				WithContext("traceId", reqCtx.TraceID).
				WithContext("path", record.CanonicalPath()).
				Build())
		}
	}

	if err := tmp.Close(); err != nil {
		return utils.NewLocalIOError(dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return utils.NewLocalIOError(dest, err)
	}
	committed = true
	return nil
}

// UploadURL returns the publish URL for a file
func (c *Client) UploadURL(target types.FileRecord) string {
	return c.apiURL("content", c.organisation, target.Repository, target.Package, target.Version, target.Path) +
		"?publish=1&override=1"
}

// UploadFile streams localPath to target's canonical location, publishing it.
// The file is reopened for every attempt.
func (c *Client) UploadFile(ctx context.Context, localPath string, target types.FileRecord) error {
	reqCtx := NewRequestContext(ctx, target.Repository, target.Package, types.RequestTypeUpload)
	destination := c.UploadURL(target)
	header := http.Header{"Content-Type": []string{"application/octet-stream"}}

	_, err := ExecuteWithRetry(ctx, c.retry, c.logger, reqCtx, func() (struct{}, error) {
		file, err := os.Open(localPath)
		if err != nil {
			return struct{}{}, utils.NewLocalIOError(localPath, err)
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			return struct{}{}, utils.NewLocalIOError(localPath, err)
		}

		var body io.Reader = file
		if info.Size() == 0 {
			body = http.NoBody
		}
		resp, err := c.send(ctx, reqCtx, http.MethodPut, destination, body, info.Size(), header)
		if err != nil {
			return struct{}{}, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return struct{}{}, resp.Body.Close()
	})
	return err
}
