package processor

import (
	"context"
	"testing"
	"time"

	"github.com/billie/servicing-projector/internal/config"
	"github.com/billie/servicing-projector/internal/events"
	"github.com/billie/servicing-projector/internal/handlers"
	"github.com/billie/servicing-projector/internal/projection"
	billieerrors "github.com/billie/servicing-projector/pkg/errors"
	"github.com/billie/servicing-projector/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProcessor(t *testing.T, registry *handlers.Registry) (*Processor, *fakeStreamLog, *fakeDedup, *projection.FakeStore) {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "debug", Format: "console", ServiceName: "test"})
	require.NoError(t, err)

	streams := newFakeStreamLog()
	dd := newFakeDedup()
	store := projection.NewFakeStore()

	cfg := config.ProcessorConfig{
		InboxStream:    "inbox",
		InternalStream: "internal",
		ConsumerGroup:  "projector",
		DLQStream:      "dlq",
		MaxRetries:     3,
		DedupTTL:       3600,
		BatchSize:      10,
		BlockTimeout:   10,
	}

	p := New(cfg, streams, dd, store, registry, log, nil)
	return p, streams, dd, store
}

func runUntilDrained(t *testing.T, p *Processor, streams *fakeStreamLog) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	streams.stopAfterEmpty = cancel
	err := p.Run(ctx)
	require.NoError(t, err)
}

func newRegistryWith(eventType string, h handlers.HandlerFunc) *handlers.Registry {
	r := handlers.NewRegistry()
	r.Register(eventType, h)
	return r
}

func TestProcessor_SuccessMarksDedupAndAcks(t *testing.T) {
	var handled []string
	registry := newRegistryWith("account.created.v1", func(ctx context.Context, store projection.Store, event interface{}) error {
		handled = append(handled, "ok")
		return nil
	})

	p, streams, dd, _ := testProcessor(t, registry)
	streams.enqueue("inbox", map[string]string{
		"typ":  "account.created.v1",
		"cause": "evt-1",
		"dat":  `{"account_id":"ACC1","customer_id":"CUST1"}`,
	})

	runUntilDrained(t, p, streams)

	assert.Equal(t, []string{"ok"}, handled)
	assert.Contains(t, streams.acked, "1-0")
	exists, err := dd.Exists(context.Background(), "dedup:evt-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestProcessor_DuplicateEventSkipsHandlerAndAcks(t *testing.T) {
	called := 0
	registry := newRegistryWith("account.created.v1", func(ctx context.Context, store projection.Store, event interface{}) error {
		called++
		return nil
	})

	p, streams, dd, _ := testProcessor(t, registry)
	dd.marked["dedup:evt-1"] = true
	streams.enqueue("inbox", map[string]string{
		"typ":   "account.created.v1",
		"cause": "evt-1",
		"dat":   `{"account_id":"ACC1"}`,
	})

	runUntilDrained(t, p, streams)

	assert.Equal(t, 0, called)
	assert.Contains(t, streams.acked, "1-0")
}

func TestProcessor_UnknownEventTypeIsAckedAndDropped(t *testing.T) {
	registry := handlers.NewRegistry()
	p, streams, _, _ := testProcessor(t, registry)
	streams.enqueue("inbox", map[string]string{
		"typ":   "mystery.event.v1",
		"cause": "evt-2",
		"dat":   `{}`,
	})

	runUntilDrained(t, p, streams)

	assert.Contains(t, streams.acked, "1-0")
	assert.Empty(t, streams.dlq)
}

func TestProcessor_RetryableFailureLeavesEntryUnackedBelowMaxRetries(t *testing.T) {
	registry := newRegistryWith("account.created.v1", func(ctx context.Context, store projection.Store, event interface{}) error {
		return billieerrors.Transient("mongo unavailable")
	})

	p, streams, _, _ := testProcessor(t, registry)
	streams.enqueue("inbox", map[string]string{
		"typ":   "account.created.v1",
		"cause": "evt-3",
		"dat":   `{"account_id":"ACC1"}`,
	})

	runUntilDrained(t, p, streams)

	assert.Empty(t, streams.acked)
	assert.Empty(t, streams.dlq)
}

func TestProcessor_RetryableFailureAtMaxRetriesGoesToDLQ(t *testing.T) {
	registry := newRegistryWith("account.created.v1", func(ctx context.Context, store projection.Store, event interface{}) error {
		return billieerrors.Transient("mongo unavailable")
	})

	p, streams, _, _ := testProcessor(t, registry)
	streams.enqueuePending("inbox", map[string]string{
		"typ":   "account.created.v1",
		"cause": "evt-4",
		"dat":   `{"account_id":"ACC1"}`,
	}, 3)

	runUntilDrained(t, p, streams)

	require.Len(t, streams.dlq, 1)
	assert.Equal(t, "evt-4", streams.dlq[0]["cause"])
	assert.Contains(t, streams.acked, "1-0")
}

func TestProcessor_NonRetryableFailureIsAckedAndDropped(t *testing.T) {
	registry := newRegistryWith("account.created.v1", func(ctx context.Context, store projection.Store, event interface{}) error {
		return billieerrors.MalformedEnvelope("missing account_id")
	})

	p, streams, _, _ := testProcessor(t, registry)
	streams.enqueue("inbox", map[string]string{
		"typ":   "account.created.v1",
		"cause": "evt-5",
		"dat":   `{}`,
	})

	runUntilDrained(t, p, streams)

	assert.Contains(t, streams.acked, "1-0")
	assert.Empty(t, streams.dlq)
}

func TestProcessor_PendingRecoveryReplaysBeforeNewEntries(t *testing.T) {
	var order []string
	registry := newRegistryWith("account.created.v1", func(ctx context.Context, store projection.Store, event interface{}) error {
		if parsed, ok := event.(*events.ParsedEvent); ok {
			if payload, ok := parsed.Payload.(*events.AccountPayload); ok {
				order = append(order, payload.AccountID)
			}
		}
		return nil
	})

	p, streams, _, _ := testProcessor(t, registry)
	streams.enqueuePending("inbox", map[string]string{
		"typ":   "account.created.v1",
		"cause": "evt-pending",
		"dat":   `{"account_id":"ACC1"}`,
	}, 1)
	streams.enqueue("inbox", map[string]string{
		"typ":   "account.created.v1",
		"cause": "evt-new",
		"dat":   `{"account_id":"ACC2"}`,
	})

	runUntilDrained(t, p, streams)

	assert.Equal(t, []string{"ACC1", "ACC2"}, order)
	assert.Contains(t, streams.acked, "1-0")
	assert.Contains(t, streams.acked, "2-0")
}
