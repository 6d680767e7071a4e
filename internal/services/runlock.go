package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/paperscope/backend/internal/config"
	"github.com/paperscope/backend/internal/platform/logger"
)

// ErrLockHeld is returned by Acquire when another sync run already holds
// the lock.
var ErrLockHeld = fmt.Errorf("sync run lock already held")

// RunLock serializes sync runs across processes with a Redis SET NX key.
// A nil *RunLock is valid and means locking is disabled (no redis.addr
// configured); all methods no-op.
type RunLock struct {
	log   *logger.Logger
	rdb   *goredis.Client
	key   string
	token string
	ttl   time.Duration
}

// NewRunLock connects to Redis and pings it. Returns (nil, nil) when cfg
// has no address, so single-process deployments need no Redis at all.
func NewRunLock(log *logger.Logger, cfg config.RedisConfig, collection string) (*RunLock, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := time.Duration(cfg.LockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &RunLock{
		log:   log.With("service", "RunLock"),
		rdb:   rdb,
		key:   "paperscope:sync:" + collection,
		token: uuid.NewString(),
		ttl:   ttl,
	}, nil
}

// Acquire takes the lock or returns ErrLockHeld. The TTL bounds how long
// a crashed run can block its successors.
func (l *RunLock) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	l.log.Info("Acquired run lock", "key", l.key, "ttl", l.ttl.String())
	return nil
}

// releaseScript deletes the key only if this process still owns it, so a
// run that outlived its TTL cannot release a successor's lock.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RunLock) Release(ctx context.Context) {
	if l == nil {
		return
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && err != goredis.Nil {
		l.log.Warn("Failed to release run lock", "key", l.key, "error", err)
	}
}

func (l *RunLock) Close() {
	if l == nil {
		return
	}
	_ = l.rdb.Close()
}
