package api

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hmrc/bintray-backup-restore/internal/logging"
	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

// RetryPolicy decides how often and how long a failed request is retried.
// Only errors flagged retryable (network errors, 429, 5xx) are retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NewRetryPolicy returns a policy with exponential backoff capped at MaxRetryDelayMs
func NewRetryPolicy(maxRetries int, baseDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   time.Duration(utils.MaxRetryDelayMs) * time.Millisecond,
	}
}

// DefaultRetryPolicy uses the default retry constants
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(utils.DefaultMaxRetries, time.Duration(utils.DefaultRetryDelayMs)*time.Millisecond)
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.25
	bo.MaxInterval = p.MaxDelay
	if bo.MaxInterval < bo.InitialInterval {
		bo.MaxInterval = bo.InitialInterval
	}
	bo.MaxElapsedTime = 0

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries)), ctx)
}

// ExecuteWithRetry runs fn under policy, logging each attempt against reqCtx.
// Callers never see whether a result needed retries.
func ExecuteWithRetry[T any](ctx context.Context, policy RetryPolicy, logger logging.Logger, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	logger = logger.WithTraceID(reqCtx.TraceID)
	start := time.Now()
	attempts := 0

	operation := func() (T, error) {
		attempts++
		result, err := fn()
		if err != nil && !utils.IsRetryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	notify := func(err error, delay time.Duration) {
		logger.Warn("Request failed (retryable)",
			logging.F("requestType", string(reqCtx.RequestType)),
			logging.F("attempt", attempts),
			logging.F("maxRetries", policy.MaxRetries),
			logging.F("delay_ms", delay.Milliseconds()),
			logging.F("error", err.Error()),
		)
	}

	result, err := backoff.RetryNotifyWithData(operation, policy.backOff(ctx), notify)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Debug("Request failed",
			logging.F("requestType", string(reqCtx.RequestType)),
			logging.F("repository", reqCtx.Repository),
			logging.F("package", reqCtx.Package),
			logging.F("attempts", attempts),
			logging.F("duration_ms", duration),
			logging.F("error", err.Error()),
		)
		return result, err
	}

	logger.Debug("Request completed",
		logging.F("requestType", string(reqCtx.RequestType)),
		logging.F("attempts", attempts),
		logging.F("duration_ms", duration),
	)
	return result, nil
}
