// Package archive gives dead-lettered envelopes a durable home past the
// Redis DLQ stream's trim policy: every quarantined entry is written to
// object storage under a predictable key so an operator can retrieve the
// full envelope and diagnostics long after the stream itself has rolled
// over. Grounded on the teacher's internal/infrastructure/storage MinIO
// client lifecycle, narrowed to the one operation this domain needs.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/billie/servicing-projector/internal/config"
	"github.com/billie/servicing-projector/pkg/logger"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Record is one dead-lettered envelope, archived with enough diagnostics to
// replay or inspect the failure without consulting the (trimmed) stream.
type Record struct {
	EventType         string            `json:"event_type"`
	EventID           string            `json:"event_id"`
	Stream            string            `json:"stream"`
	OriginalMessageID string            `json:"original_message_id"`
	Error             string            `json:"error"`
	Fields            map[string]string `json:"fields"`
	ArchivedAt        time.Time         `json:"archived_at"`
}

// Archiver is the best-effort object-storage side channel. A failure to
// archive never blocks DLQ routing on the Redis side — it is logged and
// swallowed by the caller, since the stream entry is the system of record
// and this is a retention convenience.
type Archiver struct {
	client *minio.Client
	bucket string
	logger *logger.Logger
	tracer trace.Tracer
}

func New(cfg config.MinIOConfig, log *logger.Logger) (*Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	a := &Archiver{client: client, bucket: cfg.DLQBucket, logger: log, tracer: otel.Tracer("archive")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.DLQBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check DLQ bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.DLQBucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create DLQ bucket: %w", err)
		}
	}

	return a, nil
}

// Store writes rec as an object keyed dlq/<stream>/<event_id>.json,
// using a fresh UUID in place of event_id when it is empty so entries never collide.
func (a *Archiver) Store(ctx context.Context, rec Record) error {
	key := rec.EventID
	if key == "" {
		key = uuid.NewString()
	}
	objectKey := fmt.Sprintf("dlq/%s/%s.json", rec.Stream, key)

	ctx, span := a.tracer.Start(ctx, "archive.store", trace.WithAttributes(attribute.String("object_key", objectKey)))
	defer span.End()

	data, err := json.Marshal(rec)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshal archive record: %w", err)
	}

	_, err = a.client.PutObject(ctx, a.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("archive DLQ record %s: %w", objectKey, err)
	}
	return nil
}
