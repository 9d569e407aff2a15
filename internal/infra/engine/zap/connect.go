package zap

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/ahrav/webscan-armada/pkg/common/logger"
)

// ConnectWithRetry waits for the engine to answer a version probe, retrying
// with exponential backoff for up to maxElapsed. Only reachability failures
// are retried.
func ConnectWithRetry(ctx context.Context, c *Client, maxElapsed time.Duration, log *logger.Logger) (string, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = time.Second
	expBackoff.MaxElapsedTime = maxElapsed

	var version string
	operation := func() error {
		v, err := c.Version(ctx)
		if err != nil {
			if !IsUnavailable(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			log.Warn(ctx, "scanning engine not reachable yet", "error", err)
			return err
		}
		version = v
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return "", fmt.Errorf("failed to reach scanning engine after retries: %w", err)
	}

	return version, nil
}
