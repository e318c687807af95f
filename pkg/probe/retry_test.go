package probe

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

// flakyProber fails the first N-1 calls then succeeds, counting invocations.
type flakyProber struct {
	failUntil int32
	calls     int32
}

func (f *flakyProber) Check(ctx context.Context, monitor *database.Monitor) (CheckResult, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failUntil {
		return CheckResult{Status: database.StatusDown, Message: "fail"}, nil
	}
	return CheckResult{Status: database.StatusUp, Message: "OK"}, nil
}

type alwaysDownProber struct{ calls int32 }

func (a *alwaysDownProber) Check(ctx context.Context, monitor *database.Monitor) (CheckResult, error) {
	atomic.AddInt32(&a.calls, 1)
	return CheckResult{Status: database.StatusDown, Message: "still failing"}, nil
}

func TestWithRetry_NoRetryWhenRetriesZero(t *testing.T) {
	m := &database.Monitor{Retries: 0, RetryInterval: 1}
	p := &alwaysDownProber{}

	result, err := WithRetry(context.Background(), m, p)
	require.NoError(t, err)
	assert.Equal(t, database.StatusDown, result.Status)
	assert.EqualValues(t, 1, p.calls)
}

func TestWithRetry_SucceedsOnFirstRetry(t *testing.T) {
	m := &database.Monitor{Retries: 2, RetryInterval: 0}
	p := &flakyProber{failUntil: 1}

	result, err := WithRetry(context.Background(), m, p)
	require.NoError(t, err)
	assert.Equal(t, database.StatusUp, result.Status)
	assert.Contains(t, result.Message, "重试成功 (1/2)")
	assert.EqualValues(t, 2, p.calls)
}

func TestWithRetry_ExhaustsAllRetries(t *testing.T) {
	m := &database.Monitor{Retries: 3, RetryInterval: 0}
	p := &alwaysDownProber{}

	result, err := WithRetry(context.Background(), m, p)
	require.NoError(t, err)
	assert.Equal(t, database.StatusDown, result.Status)
	assert.Contains(t, result.Message, "重试3次后仍然失败")
	// One initial attempt + 3 retry attempts.
	assert.EqualValues(t, 4, p.calls)
}

func TestWithRetry_UpOnFirstAttemptSkipsRetryEntirely(t *testing.T) {
	m := &database.Monitor{Retries: 5, RetryInterval: 1}
	p := &flakyProber{failUntil: 0}

	start := time.Now()
	result, err := WithRetry(context.Background(), m, p)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, database.StatusUp, result.Status)
	assert.EqualValues(t, 1, p.calls)
}
