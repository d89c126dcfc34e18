// Package resource prepares the on-disk resources extractors consume:
// bare clones, worktrees, and downloaded build logs, per spec §4.4.
// Distributed locks protect shared clone/worktree paths across
// concurrent workers using Redis SET NX PX leases, the same coordination
// store pkg/tokenpool uses for atomic acquisition.
package resource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/metrics"
)

// RedisConnGetter abstracts acquiring a pooled redis connection.
type RedisConnGetter interface {
	Get() redis.Conn
}

// Lock is a held distributed lease; call Release (or let the watchdog
// goroutine die via ctx cancellation) when the critical section ends.
type Lock struct {
	redis   RedisConnGetter
	key     string
	token   string
	cancel  context.CancelFunc
	done    chan struct{}
}

// LockManager acquires named distributed locks with a TTL, renewing them
// with a background watchdog for as long as the caller holds them — the
// same "lease + background renewal" idea boskos/ranch/priority.go's
// RequestManager applies to garbage-collecting stale requests, here
// applied to holding a lock instead of expiring one.
type LockManager struct {
	redis RedisConnGetter
}

func NewLockManager(r RedisConnGetter) *LockManager {
	return &LockManager{redis: r}
}

const lockKeyPrefix = "lock:"

// cloneLockKey and worktreeLockKey build the key names spec §4.4 names
// explicitly.
func cloneLockKey(repoID int64) string { return fmt.Sprintf("%sclone:%d", lockKeyPrefix, repoID) }
func worktreeLockKey(repoID int64, shortSHA string) string {
	return fmt.Sprintf("%sworktree:%d:%s", lockKeyPrefix, repoID, shortSHA)
}

// releaseScript deletes the lock key only if it is still held by the
// caller's token, preventing a slow caller from releasing a lease another
// holder has since acquired after TTL expiry.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// Acquire blocks (polling) until key is locked by this caller or ctx is
// done. ttl bounds how long the lease lives between watchdog renewals;
// the lock is automatically renewed at ttl/3 intervals until Release is
// called or ctx is cancelled.
func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	waitStart := time.Now()
	token := uuid.NewString()

	const pollInterval = 200 * time.Millisecond
	for {
		conn := m.redis.Get()
		reply, err := redis.String(conn.Do("SET", key, token, "PX", ttl.Milliseconds(), "NX"))
		conn.Close()
		if err == nil && reply == "OK" {
			break
		}
		if err != nil && err != redis.ErrNil {
			return nil, fmt.Errorf("resource: acquire lock %s: %w", key, err)
		}
		select {
		case <-ctx.Done():
			return nil, &common.TimeoutError{Op: "acquire_lock:" + key}
		case <-time.After(pollInterval):
		}
	}

	lockKind := "clone"
	if strings.HasPrefix(key, lockKeyPrefix+"worktree:") {
		lockKind = "worktree"
	}
	metrics.ResourceLockWaitSeconds.WithLabelValues(lockKind).Observe(time.Since(waitStart).Seconds())

	lockCtx, cancel := context.WithCancel(ctx)
	l := &Lock{redis: m.redis, key: key, token: token, cancel: cancel, done: make(chan struct{})}
	go l.watchdog(lockCtx, ttl)
	return l, nil
}

func (l *Lock) watchdog(ctx context.Context, ttl time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn := l.redis.Get()
			_, err := conn.Do("SET", l.key, l.token, "PX", ttl.Milliseconds(), "XX")
			conn.Close()
			if err != nil {
				logrus.WithError(err).WithField("lock_key", l.key).Warn("resource: failed to renew lock lease")
			}
		}
	}
}

// Release deletes the lock if still held by this holder's token and stops
// the renewal watchdog.
func (l *Lock) Release() error {
	l.cancel()
	<-l.done

	conn := l.redis.Get()
	defer conn.Close()
	_, err := conn.Do("EVAL", releaseScript, 1, l.key, l.token)
	if err != nil {
		return fmt.Errorf("resource: release lock %s: %w", l.key, err)
	}
	return nil
}
