package logging

import (
	"net/http"
	"time"
)

// DebugTransport logs every outbound request and its outcome at DEBUG level.
// Headers are never logged, so credentials stay out of the log.
type DebugTransport struct {
	base   http.RoundTripper
	logger Logger
}

// NewDebugTransport wraps base (http.DefaultTransport when nil)
func NewDebugTransport(base http.RoundTripper, logger Logger) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base, logger: logger}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := t.logger.WithContext(req.Context())
	start := time.Now()

	logger.Debug("HTTP request",
		F("method", req.Method),
		F("url", RedactURL(req.URL)),
		F("contentLength", req.ContentLength),
	)

	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.Debug("HTTP request failed",
			F("method", req.Method),
			F("url", RedactURL(req.URL)),
			F("durationMs", elapsed),
			F("error", err.Error()),
		)
		return nil, err
	}

	logger.Debug("HTTP response",
		F("method", req.Method),
		F("url", RedactURL(req.URL)),
		F("status", resp.StatusCode),
		F("durationMs", elapsed),
	)
	return resp, nil
}
