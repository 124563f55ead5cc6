// Package processor implements the transactional stream-consumer loop:
// recover pending entries, read new ones, dedup/parse/dispatch/ack, and
// route exhausted retries to the dead-letter stream. Grounded on the
// original EventProcessor's start/stop/_process_pending_messages/
// _process_new_messages/_process_message pipeline.
package processor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/billie/servicing-projector/internal/archive"
	"github.com/billie/servicing-projector/internal/config"
	"github.com/billie/servicing-projector/internal/dedup"
	"github.com/billie/servicing-projector/internal/events"
	"github.com/billie/servicing-projector/internal/handlers"
	"github.com/billie/servicing-projector/internal/notify"
	"github.com/billie/servicing-projector/internal/projection"
	"github.com/billie/servicing-projector/internal/streamlog"
	billieerrors "github.com/billie/servicing-projector/pkg/errors"
	"github.com/billie/servicing-projector/pkg/logger"
)

// Metrics is the subset of pkg/metrics.Metrics the loop reports to; kept as
// a narrow interface here so processor tests can run without constructing a
// Prometheus registry.
type Metrics interface {
	RecordProcessed(eventType, outcome string)
	RecordDLQ(eventType string)
	RecordHandlerDuration(eventType string, d time.Duration)
	RecordPendingRecovered(stream string, count int)
}

type noopMetrics struct{}

func (noopMetrics) RecordProcessed(string, string)          {}
func (noopMetrics) RecordDLQ(string)                         {}
func (noopMetrics) RecordHandlerDuration(string, time.Duration) {}
func (noopMetrics) RecordPendingRecovered(string, int)        {}

// Processor is the single-threaded cooperative loop described in spec §5:
// one process owns one consumer id; every suspension point is an I/O call
// the caller's context can interrupt between entries.
type Processor struct {
	streams    streamlog.StreamLog
	dedup      dedup.Dedup
	store      projection.Store
	registry   *handlers.Registry
	cfg        config.ProcessorConfig
	consumerID string
	logger     *logger.Logger
	metrics    Metrics
	archiver   *archive.Archiver
	notifier   *notify.Notifier
}

// SetArchiver wires best-effort DLQ envelope archival to object storage.
// Optional: a nil archiver (the default) just skips the archive step.
func (p *Processor) SetArchiver(a *archive.Archiver) {
	p.archiver = a
}

// SetNotifier wires the ops-visibility lifecycle/DLQ notification channel.
// Optional: defaults to a no-op if never called.
func (p *Processor) SetNotifier(n *notify.Notifier) {
	p.notifier = n
}

func New(cfg config.ProcessorConfig, streams streamlog.StreamLog, dd dedup.Dedup, store projection.Store, registry *handlers.Registry, log *logger.Logger, m Metrics) *Processor {
	if m == nil {
		m = noopMetrics{}
	}
	host := cfg.ConsumerIDHost
	if host == "" {
		host = fmt.Sprintf("%d", os.Getpid())
	}
	return &Processor{
		streams:    streams,
		dedup:      dd,
		store:      store,
		registry:   registry,
		cfg:        cfg,
		consumerID: fmt.Sprintf("processor-%s-%s", host, time.Now().UTC().Format("20060102150405")),
		logger:     log,
		metrics:    m,
	}
}

// ConsumerID returns the generated consumer identity, exposed for startup
// logging and tests.
func (p *Processor) ConsumerID() string {
	return p.consumerID
}

// Run executes the full lifecycle: ensure consumer groups, recover pending
// entries from both streams, then loop reading new entries until ctx is
// cancelled. The stop signal is observed only between entries/batches, per
// spec §5's cooperative cancellation model.
func (p *Processor) Run(ctx context.Context) error {
	for _, stream := range p.streamNames() {
		if err := p.streams.EnsureGroup(ctx, stream, p.cfg.ConsumerGroup); err != nil {
			return fmt.Errorf("ensure consumer group on %s: %w", stream, err)
		}
	}

	for _, stream := range p.streamNames() {
		if err := p.recoverPending(ctx, stream); err != nil {
			return fmt.Errorf("recover pending entries on %s: %w", stream, err)
		}
	}

	p.logger.Info("event processor started",
		"consumer_id", p.consumerID,
		"streams", p.streamNames(),
		"consumer_group", p.cfg.ConsumerGroup,
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("event processor stopping", "consumer_id", p.consumerID)
			return nil
		default:
		}

		entries, err := p.streams.ReadNew(ctx, p.streamNames(), p.cfg.ConsumerGroup, p.consumerID, p.cfg.BatchSize, time.Duration(p.cfg.BlockTimeout)*time.Millisecond)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("read new entries failed", "error", err)
			continue
		}
		for _, entry := range entries {
			p.processEntry(ctx, entry, entry.DeliveryCount)
		}
	}
}

func (p *Processor) streamNames() []string {
	return []string{p.cfg.InboxStream, p.cfg.InternalStream}
}

// recoverPending drains stream's pending list in batches, claiming each
// entry onto this consumer id and replaying it with its original delivery
// count, per spec §4.5 step 4.
func (p *Processor) recoverPending(ctx context.Context, stream string) error {
	recovered := 0
	for {
		batch, err := p.streams.PendingBatch(ctx, stream, p.cfg.ConsumerGroup, p.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		ids := make([]string, len(batch))
		deliveryCounts := make(map[string]int64, len(batch))
		for i, e := range batch {
			ids[i] = e.ID
			deliveryCounts[e.ID] = e.DeliveryCount
		}

		claimed, err := p.streams.Claim(ctx, stream, p.cfg.ConsumerGroup, p.consumerID, ids)
		if err != nil {
			return err
		}
		for _, entry := range claimed {
			entry.Stream = stream
			p.processEntry(ctx, entry, deliveryCounts[entry.ID])
		}
		recovered += len(claimed)
	}
	if recovered > 0 {
		p.metrics.RecordPendingRecovered(stream, recovered)
		p.logger.Info("pending entries recovered", "stream", stream, "count", recovered)
	}
	return nil
}

// processEntry runs the nine-step per-entry pipeline from spec §4.5.
func (p *Processor) processEntry(ctx context.Context, entry streamlog.Entry, deliveryCount int64) {
	env := events.EnvelopeFromStrings(entry.Fields)
	eventType := env.EventType()
	eventID := env.EventID(entry.ID)

	ctx = logger.WithEventContext(ctx, entry.ID, eventType, eventID, entry.Stream, int(deliveryCount))
	log := p.logger.New(ctx)

	dedupKey := "dedup:" + eventID
	exists, err := p.dedup.Exists(ctx, dedupKey)
	if err != nil {
		log.Errorw("dedup check failed, will retry", "error", err)
		p.metrics.RecordProcessed(eventType, "retry")
		return
	}
	if exists {
		log.Debugw("duplicate event, skipping")
		if err := p.ack(ctx, entry); err != nil {
			log.Errorw("ack duplicate entry failed", "error", err)
		}
		p.metrics.RecordProcessed(eventType, "duplicate")
		return
	}

	sanitised := events.Sanitise(env)
	parsed := events.Parse(eventType, sanitised)

	handler, ok := p.registry.Lookup(eventType)
	if !ok {
		log.Warnw("no handler registered for event type")
		if err := p.ack(ctx, entry); err != nil {
			log.Errorw("ack unknown-type entry failed", "error", err)
		}
		p.metrics.RecordProcessed(eventType, "unknown_type")
		return
	}

	start := time.Now()
	handleErr := handler.Handle(ctx, p.store, parsed)
	p.metrics.RecordHandlerDuration(eventType, time.Since(start))

	if handleErr == nil {
		if err := p.dedup.Mark(ctx, dedupKey, time.Duration(p.cfg.DedupTTL)*time.Second); err != nil {
			log.Errorw("set dedup mark failed, leaving entry unacked for retry", "error", err)
			p.metrics.RecordProcessed(eventType, "retry")
			return
		}
		if err := p.ack(ctx, entry); err != nil {
			log.Errorw("ack entry failed", "error", err)
			return
		}
		log.Infow("event processed successfully")
		p.metrics.RecordProcessed(eventType, "success")
		return
	}

	log.Errorw("handler failed", "error", handleErr)

	if !billieerrors.Retryable(handleErr) {
		// Malformed envelopes and unknown event types are terminal per
		// the taxonomy in spec §7; ack and move on rather than retry.
		if err := p.ack(ctx, entry); err != nil {
			log.Errorw("ack non-retryable entry failed", "error", err)
		}
		p.metrics.RecordProcessed(eventType, "dropped")
		return
	}

	if deliveryCount >= int64(p.cfg.MaxRetries) {
		if err := p.deadLetter(ctx, entry, handleErr); err != nil {
			log.Errorw("publish to DLQ failed", "error", err)
			return
		}
		if err := p.ack(ctx, entry); err != nil {
			log.Errorw("ack DLQ-routed entry failed", "error", err)
			return
		}
		log.Errorw("message moved to DLQ", "delivery_count", deliveryCount)
		p.metrics.RecordDLQ(eventType)
		p.metrics.RecordProcessed(eventType, "dlq")

		if p.archiver != nil {
			if err := p.archiver.Store(ctx, archive.Record{
				EventType:         eventType,
				EventID:           eventID,
				Stream:            entry.Stream,
				OriginalMessageID: entry.ID,
				Error:             handleErr.Error(),
				Fields:            entry.Fields,
				ArchivedAt:        time.Now().UTC(),
			}); err != nil {
				log.Warnw("DLQ archival failed", "error", err)
			}
		}
		if p.notifier != nil {
			p.notifier.DLQMoved(ctx, eventType, eventID, entry.Stream, entry.ID, handleErr)
		}
		return
	}

	// Leave un-acked: the broker redelivers after the pending visibility
	// window, and the next attempt sees an incremented delivery count.
	p.metrics.RecordProcessed(eventType, "retry")
}

func (p *Processor) ack(ctx context.Context, entry streamlog.Entry) error {
	return p.streams.Ack(ctx, entry.Stream, p.cfg.ConsumerGroup, entry.ID)
}

func (p *Processor) deadLetter(ctx context.Context, entry streamlog.Entry, cause error) error {
	fields := make(map[string]interface{}, len(entry.Fields)+3)
	for k, v := range entry.Fields {
		fields[k] = v
	}
	fields["original_message_id"] = entry.ID
	fields["error"] = cause.Error()
	fields["moved_at"] = time.Now().UTC().Format(time.RFC3339)

	_, err := p.streams.Publish(ctx, p.cfg.DLQStream, fields)
	return err
}
