package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"

	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/redis"
)

const DefaultTTL = 30 * time.Second

// Locker serialises work on a single resource across API instances.
type Locker interface {
	WithLock(ctx context.Context, scope, id string, fn func(context.Context) error) error
}

// RedisLocker holds a redislock lease for the duration of fn.
type RedisLocker struct {
	locker *redislock.Client
	keys   *redis.Client
	ttl    time.Duration
	logg   *logger.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logg *logger.Logger) (*RedisLocker, error) {
	if client == nil || client.Raw() == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{
		locker: redislock.New(client.Raw()),
		keys:   client,
		ttl:    ttl,
		logg:   logg,
	}, nil
}

func (l *RedisLocker) WithLock(ctx context.Context, scope, id string, fn func(context.Context) error) error {
	key := l.keys.LockKey(scope, id)
	lease, err := l.locker.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("%s %s is being modified by another request", scope, id)).
			WithDetails(map[string]any{"scope": scope, "id": id})
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "obtain lock")
	}
	defer func() {
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil && l.logg != nil {
			logCtx := l.logg.WithFields(ctx, map[string]any{"lock_key": key})
			l.logg.Warn(logCtx, "release lock: "+relErr.Error())
		}
	}()
	return fn(ctx)
}

// Noop runs fn directly; used when Redis is not configured.
type Noop struct{}

func (Noop) WithLock(ctx context.Context, _, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}
