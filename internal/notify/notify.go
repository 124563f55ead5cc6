// Package notify publishes fire-and-forget operator-visibility events over
// NATS: processor lifecycle transitions and dead-letter routings. This is a
// side channel distinct from the Redis data path — losing a notification
// never affects correctness, only observability, grounded on the teacher's
// internal/messaging.Publisher connect/publish pattern (plain NATS, no
// JetStream — nothing here needs durability).
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/billie/servicing-projector/internal/config"
	"github.com/billie/servicing-projector/pkg/logger"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Notifier is the ops channel collaborator; a Notifier with no connection
// (NewNoop) is valid and used when the NATS URL is unset, so the processor never blocks
// on a dependency the deployment didn't configure.
type Notifier struct {
	conn    *nats.Conn
	subject string
	logger  *logger.Logger
	tracer  trace.Tracer
}

// New connects to NATS and returns a Notifier publishing lifecycle/DLQ
// events under cfg.Subject (by default "billie.servicing.processor.events").
func New(cfg config.NATSConfig, log *logger.Logger) (*Notifier, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("no NATS URLs configured")
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			log.Error("NATS error", "error", err.Error())
		}),
	}

	conn, err := nats.Connect(cfg.URLs[0], opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Notifier{
		conn:    conn,
		subject: cfg.Subject,
		logger:  log,
		tracer:  otel.Tracer("notify"),
	}, nil
}

// NewNoop returns a Notifier with no live connection; every publish call is
// a silent no-op. Used when NATS is not configured for a deployment.
func NewNoop(log *logger.Logger) *Notifier {
	return &Notifier{logger: log, tracer: otel.Tracer("notify")}
}

func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	n.conn.Close()
	return nil
}

type lifecycleEvent struct {
	Type       string    `json:"type"`
	ConsumerID string    `json:"consumer_id"`
	At         time.Time `json:"at"`
}

// Lifecycle publishes a processor.lifecycle notification ("started",
// "stopping", "stopped").
func (n *Notifier) Lifecycle(ctx context.Context, state, consumerID string) {
	n.publish(ctx, n.subject+".lifecycle", lifecycleEvent{
		Type:       state,
		ConsumerID: consumerID,
		At:         time.Now().UTC(),
	})
}

type dlqEvent struct {
	EventType         string    `json:"event_type"`
	EventID           string    `json:"event_id"`
	Stream            string    `json:"stream"`
	OriginalMessageID string    `json:"original_message_id"`
	Error             string    `json:"error"`
	At                time.Time `json:"at"`
}

// DLQMoved publishes a dlq.moved notification when an entry is quarantined.
func (n *Notifier) DLQMoved(ctx context.Context, eventType, eventID, stream, messageID string, cause error) {
	n.publish(ctx, n.subject+".dlq", dlqEvent{
		EventType:         eventType,
		EventID:           eventID,
		Stream:            stream,
		OriginalMessageID: messageID,
		Error:             cause.Error(),
		At:                time.Now().UTC(),
	})
}

func (n *Notifier) publish(ctx context.Context, subject string, payload interface{}) {
	if n.conn == nil {
		return
	}

	_, span := n.tracer.Start(ctx, "notify.publish", trace.WithAttributes(attribute.String("subject", subject)))
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		n.logger.Error("failed to marshal notification", "error", err, "subject", subject)
		return
	}

	if err := n.conn.Publish(subject, data); err != nil {
		span.RecordError(err)
		n.logger.Warn("failed to publish notification", "error", err, "subject", subject)
	}
}
