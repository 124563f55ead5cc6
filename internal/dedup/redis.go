package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/billie/servicing-projector/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisDedup shares its Redis connection with internal/streamlog, per
// spec.md §6: the dedup namespace lives on the same broker host.
type RedisDedup struct {
	client redis.UniversalClient
	logger *logger.Logger
	tracer trace.Tracer
}

func NewRedisDedup(client redis.UniversalClient, log *logger.Logger) *RedisDedup {
	return &RedisDedup{client: client, logger: log, tracer: otel.Tracer("dedup")}
}

func (d *RedisDedup) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := d.tracer.Start(ctx, "dedup.exists", trace.WithAttributes(attribute.String("dedup.key", key)))
	defer span.End()

	n, err := d.client.Exists(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("check dedup key %s: %w", key, err)
	}
	return n > 0, nil
}

func (d *RedisDedup) Mark(ctx context.Context, key string, ttl time.Duration) error {
	ctx, span := d.tracer.Start(ctx, "dedup.mark", trace.WithAttributes(attribute.String("dedup.key", key)))
	defer span.End()

	if err := d.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("mark dedup key %s: %w", key, err)
	}
	return nil
}

func (d *RedisDedup) Close() error {
	return nil
}

func (d *RedisDedup) Health(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

var _ Dedup = (*RedisDedup)(nil)
