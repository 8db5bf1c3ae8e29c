package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TryLock attempts to take key for ttl. On success the returned release
// function frees the lock only if it is still owned by this caller.
func TryLock(ctx context.Context, c Cache, key string, ttl time.Duration) (release func(), ok bool, err error) {
	token := uuid.NewString()
	ok, err = c.SetNX(ctx, key, token, ttl)
	if err != nil || !ok {
		return func() {}, false, err
	}
	return func() {
		// Detached from ctx so a cancelled request still frees its lock.
		_, _ = c.DelIfEqual(context.Background(), key, token)
	}, true, nil
}

const lockRetry = 10 * time.Millisecond

// Lock waits for key until it is taken or ctx ends, in which case the
// context error is returned.
func Lock(ctx context.Context, c Cache, key string, ttl time.Duration) (release func(), err error) {
	t := time.NewTicker(lockRetry)
	defer t.Stop()
	for {
		release, ok, err := TryLock(ctx, c, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
