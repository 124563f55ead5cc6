// Package streamlog wraps the Redis Streams broker the processor loop reads
// from and writes to: consumer-group membership, pending recovery, and DLQ
// publication, grounded on the teacher's internal/repository.Redis
// connection lifecycle.
package streamlog

import (
	"context"
	"time"
)

// Entry is one stream record the loop must process, already stripped of
// Redis-specific types: Fields are the raw wire strings, DeliveryCount is
// Redis's per-consumer-group delivery counter for this entry.
type Entry struct {
	Stream        string
	ID            string
	Fields        map[string]string
	DeliveryCount int64
}

// StreamLog is the broker collaborator the processor depends on. Every
// method takes the stream name explicitly since the loop reads two streams
// (inbox, internal) under one consumer group.
type StreamLog interface {
	// EnsureGroup idempotently creates the named consumer group on the
	// stream (and the stream itself, MKSTREAM-style), tolerating a
	// "group already exists" response.
	EnsureGroup(ctx context.Context, stream, group string) error

	// ReadNew reads up to count new entries (id ">") across all of
	// streams under group/consumer, blocking up to block for the first
	// batch. Returns an empty slice, not an error, on a block timeout.
	ReadNew(ctx context.Context, streams []string, group, consumer string, count int64, block time.Duration) ([]Entry, error)

	// PendingBatch returns up to count of the group's pending entries on
	// stream, oldest first, for recovery scanning. Returns an empty
	// slice once the pending list is exhausted.
	PendingBatch(ctx context.Context, stream, group string, count int64) ([]Entry, error)

	// Claim reassigns the given pending entry ids on stream to consumer
	// with zero minimum idle time, returning their current field values
	// and delivery counts.
	Claim(ctx context.Context, stream, group, consumer string, ids []string) ([]Entry, error)

	// Ack acknowledges one entry, removing it from the group's pending
	// list.
	Ack(ctx context.Context, stream, group, id string) error

	// PendingCount reports the group's current pending-entry count on
	// stream, the approximate backlog size the consumer_lag gauge polls.
	PendingCount(ctx context.Context, stream, group string) (int64, error)

	// Publish appends one entry to stream with the given field values,
	// returning the assigned entry id.
	Publish(ctx context.Context, stream string, fields map[string]interface{}) (string, error)

	Close() error
	Health(ctx context.Context) error
}
