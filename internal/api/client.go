package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apierrors "github.com/hmrc/bintray-backup-restore/internal/errors"
	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
	"github.com/hmrc/bintray-backup-restore/pkg/version"
)

// errorBodyLimit bounds how much of an error response is read
const errorBodyLimit = 4096

// Client talks to the Bintray REST API and content delivery host
type Client struct {
	httpClient   *http.Client
	apiBase      string
	downloadBase string
	organisation string
	credentials  types.Credentials
	limiter      *rate.Limiter
	retry        RetryPolicy
	logger       logging.Logger
}

// ClientOptions configures NewClient
type ClientOptions struct {
	APIBaseURL        string
	DownloadBaseURL   string
	Organisation      string
	Credentials       types.Credentials
	Transport         http.RoundTripper
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             RetryPolicy
	Logger            logging.Logger
}

// NewClient creates a new Bintray client
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Organisation == "" {
		return nil, utils.NewConfigurationError("organisation is required (set BINTRAY_ORGANISATION or --org)")
	}
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = utils.APIBaseURL
	}
	if opts.DownloadBaseURL == "" {
		opts.DownloadBaseURL = utils.DownloadBaseURL
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: opts.Transport,
			Timeout:   opts.Timeout,
		},
		apiBase:      strings.TrimRight(opts.APIBaseURL, "/"),
		downloadBase: strings.TrimRight(opts.DownloadBaseURL, "/"),
		organisation: opts.Organisation,
		credentials:  opts.Credentials,
		limiter:      limiter,
		retry:        opts.Retry,
		logger:       opts.Logger,
	}, nil
}

// Organisation returns the organisation every request is scoped to
func (c *Client) Organisation() string {
	return c.organisation
}

// NewRequestContext creates a request context, reusing the run trace ID on ctx when present
func NewRequestContext(ctx context.Context, repository, pkg string, requestType types.RequestType) *types.RequestContext {
	traceID := logging.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return &types.RequestContext{
		Repository:  repository,
		Package:     pkg,
		RequestType: requestType,
		TraceID:     traceID,
	}
}

// escapePath escapes each segment of a slash separated path
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func (c *Client) apiURL(segments ...string) string {
	return c.apiBase + "/" + joinEscaped(segments...)
}

func joinEscaped(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = escapePath(s)
	}
	return strings.Join(escaped, "/")
}

// send performs one HTTP exchange. Non-2xx responses are closed and classified;
// the caller owns the body of a successful response.
func (c *Client) send(ctx context.Context, reqCtx *types.RequestContext, method, rawURL string, body io.Reader, contentLength int64, header http.Header) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, invalidRequestError(err)
	}
	if body != nil && contentLength >= 0 {
		req.ContentLength = contentLength
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.SetBasicAuth(c.credentials.Username, c.credentials.Token)
	req.Header.Set("User-Agent", version.Get().UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apierrors.ClassifyNetworkError(err, reqCtx, c.logger)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		_ = resp.Body.Close()
		return nil, apierrors.ClassifyHTTPError(resp.StatusCode, string(snippet), reqCtx, c.logger)
	}
	return resp, nil
}

// invalidRequestError wraps a request that could not be built; it is never retried
func invalidRequestError(err error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err)
}

// getJSON issues a GET with retries, decoding the body into out and returning the headers
func (c *Client) getJSON(ctx context.Context, reqCtx *types.RequestContext, rawURL string, out interface{}) (http.Header, error) {
	return ExecuteWithRetry(ctx, c.retry, c.logger, reqCtx, func() (http.Header, error) {
		resp, err := c.send(ctx, reqCtx, http.MethodGet, rawURL, nil, -1, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeRemoteRequest,
				fmt.Sprintf("invalid response from %s: %v", logging.RedactSensitiveData(rawURL), err)).
				WithRetryable(true).
				WithContext("traceId", reqCtx.TraceID).
				Build(), err)
		}
		return resp.Header, nil
	})
}
