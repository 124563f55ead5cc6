package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/billie/servicing-projector/internal/archive"
	"github.com/billie/servicing-projector/internal/config"
	"github.com/billie/servicing-projector/internal/dedup"
	"github.com/billie/servicing-projector/internal/handlers"
	"github.com/billie/servicing-projector/internal/health"
	"github.com/billie/servicing-projector/internal/notify"
	"github.com/billie/servicing-projector/internal/processor"
	"github.com/billie/servicing-projector/internal/projection"
	"github.com/billie/servicing-projector/internal/streamlog"
	"github.com/billie/servicing-projector/pkg/logger"
	"github.com/billie/servicing-projector/pkg/metrics"
	"github.com/billie/servicing-projector/pkg/tracer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

// run holds everything that needs an orderly defer-unwind on the way out;
// main just forwards its exit code, since os.Exit would otherwise skip the
// deferred connection closes below.
func run() int {
	cfg, err := config.Load("", "projector")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPath:  cfg.Logging.OutputPath,
		ErrorPath:   cfg.Logging.ErrorPath,
		AddSource:   cfg.Logging.AddSource,
		Caller:      cfg.Logging.Caller,
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logr.Sync()

	trc, err := tracer.New(tracer.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		ExporterType: cfg.Tracing.ExporterType,
		SamplerType:  cfg.Tracing.SamplerType,
		SamplerRatio: cfg.Tracing.SamplerRatio,
	})
	if err != nil {
		logr.Error("failed to initialize tracer", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trc.Shutdown(shutdownCtx)
	}()

	metricsHandle := metrics.New("billie_servicing_projector")

	mongoDB, err := projection.NewMongoDB(cfg.MongoDB)
	if err != nil {
		logr.Error("failed to connect to MongoDB", "error", err)
		return 1
	}
	defer mongoDB.Close(context.Background())
	store := projection.NewMongoStore(mongoDB, logr)

	streamLog, err := streamlog.NewRedisStreamLog(cfg.Redis, logr)
	if err != nil {
		logr.Error("failed to connect to Redis", "error", err)
		return 1
	}
	defer streamLog.Close()

	dd := dedup.NewRedisDedup(streamLog.Client(), logr)

	var notifier *notify.Notifier
	if len(cfg.NATS.URLs) > 0 {
		notifier, err = notify.New(cfg.NATS, logr)
		if err != nil {
			logr.Warn("NATS notifications disabled: connect failed", "error", err)
			notifier = notify.NewNoop(logr)
		} else {
			defer notifier.Close()
		}
	} else {
		notifier = notify.NewNoop(logr)
	}

	var archiver *archive.Archiver
	if cfg.MinIO.Endpoint != "" {
		archiver, err = archive.New(cfg.MinIO, logr)
		if err != nil {
			logr.Warn("DLQ archival disabled: MinIO connect failed", "error", err)
			archiver = nil
		}
	}

	registry := handlers.NewRegistry()
	handlers.RegisterAll(registry)

	proc := processor.New(cfg.Processor, streamLog, dd, store, registry, logr, metricsHandle)
	if archiver != nil {
		proc.SetArchiver(archiver)
	}
	proc.SetNotifier(notifier)

	healthChecker := health.NewHealthChecker(cfg, mongoDB, streamLog, dd, logr)
	liveness := health.NewLivenessChecker()

	readiness := health.NewReadinessChecker(logr)
	readiness.AddComponent("mongodb", func(ctx context.Context) health.Check {
		if err := mongoDB.Health(ctx); err != nil {
			return health.Check{Status: "unhealthy", Error: err.Error()}
		}
		return health.Check{Status: "healthy", Message: "Connected"}
	})
	readiness.AddComponent("redis", func(ctx context.Context) health.Check {
		if err := streamLog.Health(ctx); err != nil {
			return health.Check{Status: "unhealthy", Error: err.Error()}
		}
		if err := dd.Health(ctx); err != nil {
			return health.Check{Status: "unhealthy", Error: err.Error()}
		}
		return health.Check{Status: "healthy", Message: "Connected"}
	})

	mux := http.NewServeMux()
	mux.Handle("/healthz", healthChecker.Handler())
	mux.Handle("/readyz", readiness.Handler())
	mux.Handle("/livez", liveness.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Info("starting health/metrics listener", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("health/metrics server failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- proc.Run(ctx)
	}()
	notifier.Lifecycle(ctx, "started", proc.ConsumerID())

	go reportConsumerLag(ctx, streamLog, metricsHandle, cfg.Processor, logr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var exitCode int
	select {
	case sig := <-quit:
		logr.Info("received shutdown signal", "signal", sig.String())
		notifier.Lifecycle(context.Background(), "stopping", proc.ConsumerID())
		cancel()
		if err := <-runErrCh; err != nil {
			logr.Error("processor exited with error", "error", err)
			exitCode = 1
		}
	case err := <-runErrCh:
		cancel()
		if err != nil {
			logr.Error("processor exited unexpectedly", "error", err)
			exitCode = 1
		}
	}

	notifier.Lifecycle(context.Background(), "stopped", proc.ConsumerID())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logr.Error("health/metrics server shutdown error", "error", err)
	}

	logr.Info("event processor stopped")
	return exitCode
}

// reportConsumerLag polls the approximate backlog on both streams every few
// seconds and publishes it to the consumer_lag gauge, until ctx is
// cancelled.
func reportConsumerLag(ctx context.Context, streamLog streamlog.StreamLog, m *metrics.Metrics, cfg config.ProcessorConfig, logr *logger.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	streams := []string{cfg.InboxStream, cfg.InternalStream}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, stream := range streams {
				count, err := streamLog.PendingCount(ctx, stream, cfg.ConsumerGroup)
				if err != nil {
					logr.Warn("failed to read pending count for consumer lag", "stream", stream, "error", err)
					continue
				}
				m.SetConsumerLag(stream, count)
			}
		}
	}
}
