package service

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/logger"
)

// DefaultRetryBackoff is the first delay of the Fibonacci backoff used for
// transient upstream failures.
const DefaultRetryBackoff = 500 * time.Millisecond

// retryUpstream runs task, retrying up to maxRetries times while it fails with
// ErrUpstream. Other errors and context cancellation end the loop at once.
func retryUpstream(ctx context.Context, maxRetries int, base time.Duration, op string, task func(ctx context.Context) error) error {
	if maxRetries <= 0 {
		return task(ctx)
	}

	attempt := 0
	b := retry.WithMaxRetries(uint64(maxRetries), retry.NewFibonacci(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := task(ctx)
		if err == nil || !errors.Is(err, domain.ErrUpstream) || ctx.Err() != nil {
			return err
		}
		logger.With(logger.Fields{
			logger.FieldErrorKind: domain.ErrorKind(err),
			logger.FieldCount:     attempt,
		}).Warn(ctx, "%s failed, retrying: %v", op, err)
		return retry.RetryableError(err)
	})
}
