// Package dedup implements the short-TTL key-value namespace the processor
// loop consults to give at-least-once broker delivery an effectively-once
// projection effect.
package dedup

import (
	"context"
	"time"
)

// Dedup is the namespace collaborator: key format and TTL are the loop's
// concern (internal/processor), this package only stores/checks marks.
type Dedup interface {
	// Exists reports whether key has already been marked.
	Exists(ctx context.Context, key string) (bool, error)

	// Mark sets key with the given TTL, value is opaque ("1").
	Mark(ctx context.Context, key string, ttl time.Duration) error

	Close() error
	Health(ctx context.Context) error
}
