package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

// WithRetry wraps a single executor invocation with the monitor's configured
// retry policy. It is applied exactly once, at the scheduler
// layer: the inner invocation always runs with retries effectively disabled
// (the wrapper itself does not recurse), so an executor that also embeds a
// retry loop internally (port, icmp, database) must be built to honor that
// by running a single attempt per Check call — none of this package's
// executors loop internally, keeping the policy in one place.
func WithRetry(ctx context.Context, monitor *database.Monitor, prober Prober) (CheckResult, error) {
	first, err := prober.Check(ctx, monitor)
	if err != nil {
		return first, err
	}
	if first.Status != database.StatusDown || monitor.Retries <= 0 || strings.HasPrefix(first.Message, "配置无效") {
		return first, nil
	}

	pause := time.Duration(monitor.RetryInterval) * time.Second
	if pause <= 0 {
		pause = time.Second
	}

	// backoff.Retry runs its first operation without waiting, so the pause
	// between the failed first check and the first retry happens here.
	wait := time.NewTimer(pause)
	select {
	case <-wait.C:
	case <-ctx.Done():
		wait.Stop()
		return first, nil
	}

	// WithMaxRetries(cb, max) runs the wrapped operation 1+max times. Here the
	// operation itself represents one additional attempt past the already
	// failed first check above, so max = retries-1 yields exactly `retries`
	// additional invocations in total.
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(pause), uint64(monitor.Retries-1))

	attempt := 0
	var last CheckResult
	operation := func() error {
		attempt++
		result, checkErr := prober.Check(ctx, monitor)
		last = result
		if checkErr != nil {
			return backoff.Permanent(checkErr)
		}
		if result.Status != database.StatusDown {
			return nil
		}
		return fmt.Errorf("attempt %d down: %s", attempt, result.Message)
	}

	retryErr := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if retryErr != nil {
		var permanent *backoff.PermanentError
		if asPermanent(retryErr, &permanent) {
			return last, permanent.Err
		}
		// Spec: return the *first* DOWN result with its message rewritten,
		// not the last attempt's — only the message carries retry context.
		first.Message = fmt.Sprintf("重试%d次后仍然失败: %s", monitor.Retries, first.Message)
		return first, nil
	}

	last.Message = fmt.Sprintf("重试成功 (%d/%d): %s", attempt, monitor.Retries, last.Message)
	return last, nil
}

func asPermanent(err error, target **backoff.PermanentError) bool {
	pe, ok := err.(*backoff.PermanentError)
	if ok {
		*target = pe
	}
	return ok
}
