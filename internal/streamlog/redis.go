package streamlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/billie/servicing-projector/internal/config"
	"github.com/billie/servicing-projector/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisStreamLog is the StreamLog implementation, grounded on the teacher's
// internal/repository.Redis connection lifecycle (ParseURL-style options,
// Ping-on-connect, a shared tracer per collaborator).
type RedisStreamLog struct {
	client redis.UniversalClient
	logger *logger.Logger
	tracer trace.Tracer
}

func NewRedisStreamLog(cfg config.RedisConfig, log *logger.Logger) (*RedisStreamLog, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Username != "" {
		opts.Username = cfg.Username
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.Database != 0 {
		opts.DB = cfg.Database
	}
	if cfg.PoolSize != 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns != 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.MaxRetries != 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.DialTimeout != 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout != 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout != 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStreamLog{client: client, logger: log, tracer: otel.Tracer("streamlog")}, nil
}

// Client exposes the underlying Redis connection so collaborators sharing
// the same broker host (dedup) can reuse one connection pool rather than
// opening a second.
func (s *RedisStreamLog) Client() redis.UniversalClient {
	return s.client
}

func (s *RedisStreamLog) Close() error {
	return s.client.Close()
}

func (s *RedisStreamLog) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func (s *RedisStreamLog) EnsureGroup(ctx context.Context, stream, group string) error {
	ctx, span := s.tracer.Start(ctx, "streamlog.ensure_group",
		trace.WithAttributes(attribute.String("stream", stream), attribute.String("group", group)))
	defer span.End()

	err := s.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		span.RecordError(err)
		return fmt.Errorf("ensure consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

func (s *RedisStreamLog) ReadNew(ctx context.Context, streams []string, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	ctx, span := s.tracer.Start(ctx, "streamlog.read_new",
		trace.WithAttributes(attribute.StringSlice("streams", streams), attribute.String("consumer", consumer)))
	defer span.End()

	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}

	result, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  args,
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("read new entries: %w", err)
	}

	return flattenStreams(result), nil
}

func (s *RedisStreamLog) PendingBatch(ctx context.Context, stream, group string, count int64) ([]Entry, error) {
	ctx, span := s.tracer.Start(ctx, "streamlog.pending_batch",
		trace.WithAttributes(attribute.String("stream", stream), attribute.String("group", group)))
	defer span.End()

	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("scan pending entries: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	counts := make(map[string]int64, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
		counts[p.ID] = p.RetryCount
	}

	byID := make(map[string]redis.XMessage, len(ids))
	for _, id := range ids {
		messages, err := s.client.XRange(ctx, stream, id, id).Result()
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("load pending entry values: %w", err)
		}
		if len(messages) > 0 {
			byID[id] = messages[0]
		}
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		msg, ok := byID[id]
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Stream:        stream,
			ID:            id,
			Fields:        stringifyValues(msg.Values),
			DeliveryCount: counts[id],
		})
	}
	return entries, nil
}

func (s *RedisStreamLog) PendingCount(ctx context.Context, stream, group string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "streamlog.pending_count",
		trace.WithAttributes(attribute.String("stream", stream), attribute.String("group", group)))
	defer span.End()

	summary, err := s.client.XPending(ctx, stream, group).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		span.RecordError(err)
		return 0, fmt.Errorf("pending count for %s/%s: %w", stream, group, err)
	}
	return summary.Count, nil
}

func (s *RedisStreamLog) Claim(ctx context.Context, stream, group, consumer string, ids []string) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "streamlog.claim",
		trace.WithAttributes(attribute.String("stream", stream), attribute.Int("count", len(ids))))
	defer span.End()

	messages, err := s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  0,
		Messages: ids,
	}).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("claim pending entries: %w", err)
	}

	entries := make([]Entry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, Entry{Stream: stream, ID: m.ID, Fields: stringifyValues(m.Values)})
	}
	return entries, nil
}

func (s *RedisStreamLog) Ack(ctx context.Context, stream, group, id string) error {
	ctx, span := s.tracer.Start(ctx, "streamlog.ack",
		trace.WithAttributes(attribute.String("stream", stream), attribute.String("id", id)))
	defer span.End()

	if err := s.client.XAck(ctx, stream, group, id).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("ack entry %s: %w", id, err)
	}
	return nil
}

func (s *RedisStreamLog) Publish(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	ctx, span := s.tracer.Start(ctx, "streamlog.publish", trace.WithAttributes(attribute.String("stream", stream)))
	defer span.End()

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: fields,
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("publish to %s: %w", stream, err)
	}
	return id, nil
}

func flattenStreams(result []redis.XStream) []Entry {
	var entries []Entry
	for _, stream := range result {
		for _, msg := range stream.Messages {
			entries = append(entries, Entry{
				Stream:        stream.Stream,
				ID:            msg.ID,
				Fields:        stringifyValues(msg.Values),
				DeliveryCount: 1,
			})
		}
	}
	return entries
}

func stringifyValues(values map[string]interface{}) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

var _ StreamLog = (*RedisStreamLog)(nil)
