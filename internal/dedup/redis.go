package dedup

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

const redisMarkerPrefix = "argo-signal:dedup:"

// RedisGate implements Gate across processes with SET NX PX; the TTL
// replaces the in-memory sweep. Same best-effort semantics: a marker that
// expires before completion allows a duplicate execution.
type RedisGate struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewRedisGate wraps the given client; retention <= 0 uses DefaultRetention.
func NewRedisGate(client redis.UniversalClient, retention time.Duration) *RedisGate {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisGate{client: client, retention: retention}
}

// TryMarkProcessing claims the marker via SET NX with the retention TTL.
func (g *RedisGate) TryMarkProcessing(ctx context.Context, key string, timestamp int64) (bool, error) {
	ok, err := g.client.SetNX(ctx, redisMarkerPrefix+markerKey(key, timestamp), 1, g.retention).Result()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeDedupUnavailable, "dedup marker claim failed", err)
	}

	return ok, nil
}

// MarkCompleted deletes the marker.
func (g *RedisGate) MarkCompleted(ctx context.Context, key string, timestamp int64) error {
	if err := g.client.Del(ctx, redisMarkerPrefix+markerKey(key, timestamp)).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeDedupUnavailable, "dedup marker release failed", err)
	}

	return nil
}
