package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/billie/servicing-projector/internal/dedup"
	"github.com/billie/servicing-projector/internal/streamlog"
)

// fakeStreamLog is an in-memory StreamLog: entries are queued per stream by
// the test, consumed by ReadNew/PendingBatch in FIFO order, and Acked
// entry ids are recorded in acked. It exists purely to drive
// Processor.Run deterministically without a live Redis.
type fakeStreamLog struct {
	mu       sync.Mutex
	groups   map[string]bool
	queued   map[string][]streamlog.Entry
	pending  map[string][]streamlog.Entry
	byID     map[string]streamlog.Entry
	acked    []string
	dlq      []map[string]interface{}
	nextID   int
	closed   bool
	// stopAfterEmpty makes ReadNew return ctx.Err() once queued is drained,
	// so Run's loop exits instead of blocking forever in a test.
	stopAfterEmpty context.CancelFunc
}

func newFakeStreamLog() *fakeStreamLog {
	return &fakeStreamLog{
		groups:  map[string]bool{},
		queued:  map[string][]streamlog.Entry{},
		pending: map[string][]streamlog.Entry{},
		byID:    map[string]streamlog.Entry{},
	}
}

func (f *fakeStreamLog) enqueue(stream string, fields map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.queued[stream] = append(f.queued[stream], streamlog.Entry{
		Stream: stream,
		ID:     fmt.Sprintf("%d-0", f.nextID),
		Fields: fields,
	})
}

func (f *fakeStreamLog) enqueuePending(stream string, fields map[string]string, deliveryCount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	entry := streamlog.Entry{
		Stream:        stream,
		ID:            fmt.Sprintf("%d-0", f.nextID),
		Fields:        fields,
		DeliveryCount: deliveryCount,
	}
	f.pending[stream] = append(f.pending[stream], entry)
	f.byID[entry.ID] = entry
}

func (f *fakeStreamLog) EnsureGroup(_ context.Context, stream, group string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[stream+"/"+group] = true
	return nil
}

func (f *fakeStreamLog) ReadNew(ctx context.Context, streams []string, group, consumer string, count int64, block time.Duration) ([]streamlog.Entry, error) {
	f.mu.Lock()
	var out []streamlog.Entry
	for _, s := range streams {
		for len(f.queued[s]) > 0 && int64(len(out)) < count {
			out = append(out, f.queued[s][0])
			f.queued[s] = f.queued[s][1:]
		}
	}
	f.mu.Unlock()

	if len(out) == 0 && f.stopAfterEmpty != nil {
		f.stopAfterEmpty()
		return nil, ctx.Err()
	}
	return out, nil
}

func (f *fakeStreamLog) PendingBatch(_ context.Context, stream, group string, count int64) ([]streamlog.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.pending[stream]
	f.pending[stream] = nil
	return batch, nil
}

func (f *fakeStreamLog) Claim(_ context.Context, stream, group, consumer string, ids []string) ([]streamlog.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]streamlog.Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := f.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStreamLog) PendingCount(_ context.Context, stream, group string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.pending[stream])), nil
}

func (f *fakeStreamLog) Ack(_ context.Context, stream, group, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeStreamLog) Publish(_ context.Context, stream string, fields map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlq = append(f.dlq, fields)
	return "dlq-1", nil
}

func (f *fakeStreamLog) Close() error               { f.closed = true; return nil }
func (f *fakeStreamLog) Health(_ context.Context) error { return nil }

var _ streamlog.StreamLog = (*fakeStreamLog)(nil)

// fakeDedup is an in-memory Dedup keyed by string set, with optional forced
// errors for failure-path tests.
type fakeDedup struct {
	mu        sync.Mutex
	marked    map[string]bool
	existsErr error
	markErr   error
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{marked: map[string]bool{}}
}

func (d *fakeDedup) Exists(_ context.Context, key string) (bool, error) {
	if d.existsErr != nil {
		return false, d.existsErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.marked[key], nil
}

func (d *fakeDedup) Mark(_ context.Context, key string, _ time.Duration) error {
	if d.markErr != nil {
		return d.markErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.marked[key] = true
	return nil
}

func (d *fakeDedup) Close() error                  { return nil }
func (d *fakeDedup) Health(_ context.Context) error { return nil }

var _ dedup.Dedup = (*fakeDedup)(nil)
