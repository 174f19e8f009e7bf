package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/renewal-tracker/internal/config"
	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
	"github.com/kirillkom/renewal-tracker/internal/core/usecase"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/extractor"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/extractor/msdoc"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/extractor/pdfocr"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/mail/httpmail"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/queue/memory"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/queue/nats"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/resilience"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/storage/s3"
)

type jobBroker interface {
	ports.JobQueue
	ports.JobConsumer
	Close()
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	DB      *sql.DB
	Queue   jobBroker
	Storage ports.BlobStore
	// Files is set for the local storage backend, whose signed links are
	// served by the API.
	Files *localfs.Storage
	Lease ports.Lease

	IngestUC  *usecase.IngestDocumentUseCase
	ProcessUC *usecase.ProcessDocumentUseCase
	ManageUC  *usecase.ManageDocumentUseCase
	AlertUC   *usecase.AlertUseCase
	ExportUC  *usecase.ExportUseCase
	EmailUC   *usecase.EmailDeliveryUseCase

	observer resilience.Observer
	closeFn  func()
}

type Option func(*App)

// WithResilienceObserver reports retries and breaker transitions of every
// outbound client.
func WithResilienceObserver(o resilience.Observer) Option {
	return func(a *App) { a.observer = o }
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.RunMigrations {
		if err := postgres.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	app := &App{Config: cfg, Logger: logger, DB: db}
	for _, opt := range opts {
		opt(app)
	}

	if err := app.initStorage(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := app.initQueue(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	fields, err := ollama.NewFieldExtractor(ollama.New(
		cfg.OllamaURL,
		cfg.OllamaGenModel,
		app.newExecutor(resilience.ExtractionPolicy()),
		logger,
	))
	if err != nil {
		app.Queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init field extractor: %w", err)
	}

	texts := extractor.NewRegistry().
		Register(domain.FormatPDF, pdfocr.New(pdfocr.Config{
			BaseURL: cfg.OCRAPIURL,
			APIKey:  cfg.OCRAPIKey,
			Model:   cfg.OCRModel,
		}, app.newExecutor(resilience.OCRPolicy()), logger)).
		Register(domain.FormatDOCX, docx.New()).
		Register(domain.FormatDOC, msdoc.New())

	repo := postgres.NewDocumentRepository(db)
	users := postgres.NewUserRepository(db)

	app.Lease = postgres.NewAdvisoryLease(db, logger)
	app.AlertUC = usecase.NewAlertUseCase(
		repo,
		users,
		usecase.NewQueuedEmailSender(app.Queue),
		postgres.NewNotificationRepository(db),
		usecase.AlertOptions{
			Location:   loc,
			CatchUp:    cfg.AlertCatchUp,
			AppBaseURL: cfg.AppBaseURL,
		},
		logger,
	)
	app.IngestUC = usecase.NewIngestDocumentUseCase(repo, users, app.Storage, app.Queue, app.AlertUC, cfg.TierLimits, logger)
	app.ProcessUC = usecase.NewProcessDocumentUseCase(
		repo,
		postgres.NewTextRepository(db),
		app.Storage,
		texts,
		fields,
		app.Queue,
		usecase.ProcessOptions{StuckAfter: cfg.StuckProcessingAfter},
		logger,
	)
	app.ManageUC = usecase.NewManageDocumentUseCase(repo, app.Storage, app.AlertUC, logger)
	app.ExportUC = usecase.NewExportUseCase(repo, xlsx.New(), loc, logger)
	app.EmailUC = usecase.NewEmailDeliveryUseCase(
		httpmail.New(cfg.EmailAPIURL, cfg.EmailAPIKey, app.newExecutor(resilience.MailPolicy()), logger),
		cfg.EmailFrom,
		logger,
	)

	app.closeFn = func() {
		app.Queue.Close()
		_ = db.Close()
	}
	return app, nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.Config.StorageBackend {
	case "s3":
		store, err := s3.New(ctx, s3.Options{
			Region:   a.Config.AWSRegion,
			Bucket:   a.Config.S3Bucket,
			Prefix:   a.Config.S3Prefix,
			KMSKeyID: a.Config.S3KMSKeyID,
			Endpoint: a.Config.S3Endpoint,
		})
		if err != nil {
			return fmt.Errorf("init s3 storage: %w", err)
		}
		a.Storage = store
	default:
		store, err := localfs.New(a.Config.StoragePath, a.Config.StoragePublicURL, a.Config.StorageSigningKey)
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		a.Storage = store
		a.Files = store
	}
	return nil
}

func (a *App) initQueue(ctx context.Context) error {
	if a.Config.QueueBackend == "memory" {
		a.Queue = memory.New(memory.Options{
			MaxDeliver: a.Config.QueueMaxDeliver,
			Logger:     a.Logger,
		})
		return nil
	}
	q, err := nats.New(ctx, a.Config.NATSURL, nats.Options{
		Stream:             a.Config.NATSStream,
		SubjectPrefix:      a.Config.NATSSubjectPrefix,
		MaxDeliver:         a.Config.QueueMaxDeliver,
		AckWait:            a.Config.QueueAckWait,
		ResilienceExecutor: a.newExecutor(resilience.BrokerPolicy()),
		Logger:             a.Logger,
	})
	if err != nil {
		return fmt.Errorf("init job queue: %w", err)
	}
	a.Queue = q
	return nil
}

func (a *App) newExecutor(policy resilience.Config) *resilience.Executor {
	exec := resilience.NewExecutor(policy).WithLogger(a.Logger)
	if a.observer != nil {
		exec = exec.WithObserver(a.observer)
	}
	return exec
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
