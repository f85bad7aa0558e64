package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/prn-reconciler/internal/config"
	"github.com/kirillkom/prn-reconciler/internal/core/ports"
	"github.com/kirillkom/prn-reconciler/internal/core/usecase"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/authority"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/intake/plaintext"
	xlsxintake "github.com/kirillkom/prn-reconciler/internal/infrastructure/intake/xlsx"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/pdfbundle"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/queue/nats"
	xlsxreport "github.com/kirillkom/prn-reconciler/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/resilience"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/storage/gcs"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/prn-reconciler/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Registry     *prometheus.Registry
	HTTPMetrics  *metrics.HTTPServerMetrics
	BatchMetrics *metrics.BatchMetrics

	// Bus is nil when NATS_URL is empty.
	Bus *nats.Bus

	Batch     *usecase.BatchUseCase
	Reports   *usecase.ReportUseCase
	Documents *usecase.DocumentExportUseCase
	Check     *usecase.CheckUseCase

	Workbooks ports.IdentifierReader
	Text      ports.IdentifierReader

	closeFn func()
}

type Option func(*options)

type options struct {
	publishers []ports.SnapshotPublisher
}

// WithPublisher adds a snapshot subscriber next to the message bus.
func WithPublisher(publisher ports.SnapshotPublisher) Option {
	return func(o *options) {
		o.publishers = append(o.publishers, publisher)
	}
}

// New wires one process worth of collaborators. service labels logs and
// metrics.
func New(ctx context.Context, cfg config.Config, service string, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	registry := metrics.NewRegistry()
	batchMetrics := metrics.NewBatchMetrics(registry, service)
	httpMetrics := metrics.NewHTTPServerMetrics(registry, service)

	authorityExecutor := resilience.NewExecutor(
		resilience.SingleAttempt(cfg.AuthorityBreakerEnabled),
		resilience.WithStateObserver(batchMetrics.ObserveBreaker),
	)
	verifier := authority.New(authority.Options{
		BaseURL:            cfg.AuthorityBaseURL,
		DetailsTimeout:     cfg.AuthorityDetailsTimeout,
		DocumentTimeout:    cfg.AuthorityDocumentTimeout,
		InsecureSkipVerify: cfg.AuthorityInsecureSkipVerify,
		UserAgent:          cfg.AuthorityUserAgent,
		RateLimit:          cfg.AuthorityRateLimitRPS,
		Burst:              cfg.AuthorityRateLimitBurst,
		Executor:           authorityExecutor,
	})

	storage, closeStorage, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	publishers := usecase.PublisherGroup(o.publishers)
	var bus *nats.Bus
	if cfg.NATSURL != "" {
		bus, err = nats.New(cfg.NATSURL, nats.Options{
			EventsSubject:      cfg.NATSEventsSubject,
			RequestsSubject:    cfg.NATSRequestsSubject,
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig(), resilience.WithStateObserver(batchMetrics.ObserveBreaker)),
		})
		if err != nil {
			closeStorage()
			return nil, fmt.Errorf("init message bus: %w", err)
		}
		publishers = append(publishers, bus)
	}

	batch := usecase.NewBatchUseCase(verifier, publishers, usecase.NewDelayPacer(cfg.BatchItemDelay), batchMetrics)
	reports := usecase.NewReportUseCase(batch, xlsxreport.NewRenderer(time.Local), storage)
	documents := usecase.NewDocumentExportUseCase(batch, storage, pdfbundle.New())

	slog.Info("bootstrap_ready",
		"service", service,
		"authority", cfg.AuthorityBaseURL,
		"storage_backend", cfg.StorageBackend,
		"nats_enabled", bus != nil,
		"item_delay", cfg.BatchItemDelay.String(),
	)

	return &App{
		Config: cfg,

		Registry:     registry,
		HTTPMetrics:  httpMetrics,
		BatchMetrics: batchMetrics,

		Bus: bus,

		Batch:     batch,
		Reports:   reports,
		Documents: documents,
		Check:     usecase.NewCheckUseCase(verifier),

		Workbooks: xlsxintake.NewReader(),
		Text:      plaintext.NewReader(),

		closeFn: func() {
			if bus != nil {
				bus.Close()
			}
			closeStorage()
		},
	}, nil
}

func newStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageGCS:
		store, err := gcs.New(ctx, cfg.GCSBucket, cfg.GCSPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, nil, fmt.Errorf("init object storage: %w", err)
		}
		return store, func() {}, nil
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
