package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/pharmacy_backend/config"
)

var ErrPostingInProgress = errors.New("document is being posted by another request")

const postingLockTTL = 30 * time.Second

// AcquireDocumentPostingLock serializes posting of one document across instances with a Redis lock.
// Row locks inside the transaction remain the source of correctness; this only turns a concurrent
// double submit into a fast failure instead of a lock wait. No-op unless POSTING_REDIS_LOCK is set
// and Redis is connected.
func AcquireDocumentPostingLock(ctx context.Context, docType string, docId int) (release func(), err error) {
	noop := func() {}
	if !config.UseRedisPostingLock() {
		return noop, nil
	}
	locker := config.GetRedisLock()
	if locker == nil {
		return noop, nil
	}

	lockKey := fmt.Sprintf("posting:%s:%d", docType, docId)
	lock, err := locker.Obtain(ctx, lockKey, postingLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(config.GetLogger(), "workflow", "AcquireDocumentPostingLock", "could not obtain lock", lockKey, err)
		return nil, ErrPostingInProgress
	}
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
