package errors

import (
	"net/http"
	"strings"

	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// bodySnippetLimit bounds how much of an error body ends up in messages
const bodySnippetLimit = 256

// ClassifyHTTPError converts a non-success response status into an AppError.
// Reads surface as REMOTE_REQUEST_ERROR, downloads and uploads as TRANSFER_ERROR.
// 429 and 5xx are retryable, every other status is terminal.
func ClassifyHTTPError(status int, body string, reqCtx *types.RequestContext, logger logging.Logger) error {
	if reqCtx == nil {
		reqCtx = &types.RequestContext{}
	}

	code := utils.ErrCodeRemoteRequest
	if reqCtx.RequestType == types.RequestTypeDownload || reqCtx.RequestType == types.RequestTypeUpload {
		code = utils.ErrCodeTransfer
	}
	retryable := false

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = utils.ErrCodeAuthRequired
	case status == http.StatusTooManyRequests:
		code = utils.ErrCodeRateLimited
		retryable = true
	case status >= 500:
		retryable = true
	}

	message := http.StatusText(status)
	if snippet := strings.TrimSpace(body); snippet != "" {
		if len(snippet) > bodySnippetLimit {
			snippet = snippet[:bodySnippetLimit]
		}
		message = message + ": " + snippet
	}

	logger.Debug("HTTP error classified",
		logging.F("httpStatus", status),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("requestType", string(reqCtx.RequestType)),
	)

	builder := utils.NewCLIError(code, message).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType))

	if reqCtx.Repository != "" {
		builder.WithContext("repository", reqCtx.Repository)
	}
	if reqCtx.Package != "" {
		builder.WithContext("package", reqCtx.Package)
	}

	switch code {
	case utils.ErrCodeAuthRequired:
		builder.WithContext("suggestedAction", "check BINTRAY_USERNAME and BINTRAY_TOKEN or run 'bintray-backup-restore auth login'")
	case utils.ErrCodeRateLimited:
		builder.WithContext("suggestedAction", "rate limit exceeded, retrying with backoff")
	}

	if status >= 500 {
		builder.WithContext("serverError", true)
	}

	return utils.NewAppError(builder.Build())
}

// ClassifyNetworkError wraps a transport failure (no response received) as a retryable error
func ClassifyNetworkError(err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	if reqCtx == nil {
		reqCtx = &types.RequestContext{}
	}
	logger.Debug("Network error",
		logging.F("error", err.Error()),
		logging.F("traceId", reqCtx.TraceID),
	)
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError, err.Error()).
		WithRetryable(true).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		Build(), err)
}
