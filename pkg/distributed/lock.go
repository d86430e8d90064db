package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotHeld is returned by Unlock when the lock expired or belongs to
	// someone else.
	ErrNotHeld = errors.New("lock is not held by this instance")
	// ErrLockTimeout is returned when Lock gives up waiting.
	ErrLockTimeout = errors.New("lock acquisition timeout")
)

const lockPollInterval = 100 * time.Millisecond

var (
	unlockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// DistributedLock is a Redis lease held by one instance at a time. While
// held it is renewed at half its TTL. A lock may be acquired again after
// Unlock.
type DistributedLock struct {
	client *redis.Client
	key    string
	value  string // unique per lock holder
	ttl    time.Duration

	mu        sync.Mutex
	stopRenew chan struct{}
	renewDone chan struct{}
}

// NewDistributedLock creates a new distributed lock
func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    key,
		value:  generateLockValue(),
		ttl:    ttl,
	}
}

func generateLockValue() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (l *DistributedLock) Key() string {
	return l.key
}

// TryLock attempts to acquire the lock without blocking
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to try lock: %w", err)
	}
	if acquired {
		l.startRenewal()
	}
	return acquired, nil
}

// Lock polls until the lock is acquired, timeout passes or ctx is done.
func (l *DistributedLock) Lock(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		acquired, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Unlock releases the lock if this instance still holds it.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	l.stopRenewal()

	released, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to unlock: %w", err)
	}
	if released == 0 {
		return ErrNotHeld
	}
	return nil
}

// IsLocked reports whether anyone holds the lock.
func (l *DistributedLock) IsLocked(ctx context.Context) (bool, error) {
	exists, err := l.client.Exists(ctx, l.key).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (l *DistributedLock) startRenewal() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopRenew != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	l.stopRenew, l.renewDone = stop, done
	go l.renew(stop, done)
}

func (l *DistributedLock) stopRenewal() {
	l.mu.Lock()
	stop, done := l.stopRenew, l.renewDone
	l.stopRenew, l.renewDone = nil, nil
	l.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// renew extends the lease until stopped or until the lock is lost.
func (l *DistributedLock) renew(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil || renewed == 0 {
				return
			}
		}
	}
}

// LockManager hands out locks under a common key prefix.
type LockManager struct {
	client *redis.Client
	prefix string
}

// NewLockManager creates a new lock manager
func NewLockManager(client *redis.Client, prefix string) *LockManager {
	return &LockManager{
		client: client,
		prefix: prefix,
	}
}

// NewLock returns a lock for key under the manager's prefix.
func (lm *LockManager) NewLock(key string, ttl time.Duration) *DistributedLock {
	return NewDistributedLock(lm.client, lm.prefix+"lock:"+key, ttl)
}
