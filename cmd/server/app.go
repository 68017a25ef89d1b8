package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/lectio/lectio-api/internal/api"
	apimiddleware "github.com/lectio/lectio-api/internal/api/middleware"
	"github.com/lectio/lectio-api/internal/audio"
	"github.com/lectio/lectio-api/internal/auth"
	"github.com/lectio/lectio-api/internal/config"
	"github.com/lectio/lectio-api/internal/events"
	"github.com/lectio/lectio-api/internal/notegen"
	"github.com/lectio/lectio-api/internal/pipeline"
	"github.com/lectio/lectio-api/internal/platform/gemini"
	"github.com/lectio/lectio-api/internal/platform/openai"
	"github.com/lectio/lectio-api/internal/platform/postgres"
	"github.com/lectio/lectio-api/internal/platform/s3"
	"github.com/lectio/lectio-api/internal/platform/soniox"
	"github.com/lectio/lectio-api/internal/retry"
	"github.com/lectio/lectio-api/internal/store"
	"github.com/lectio/lectio-api/internal/transcribe"
)

// application bundles every long-lived component of the server so Run and
// cleanup can manage their lifecycles together.
type application struct {
	config    *config.Config
	logger    *slog.Logger
	db        *sql.DB
	jobs      store.JobStore
	runner    *pipeline.Runner
	scheduler *retry.Scheduler
	cleaner   *retry.Cleaner
	router    chi.Router
}

// newApplication wires the stores, pipeline, retry loops, and HTTP layer.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	// Persistence
	jobStore := postgres.NewPostgresJobStore(db, logger)
	transcriptStore := postgres.NewPostgresTranscriptStore(db, logger)
	noteStore := postgres.NewPostgresNoteStore(db, logger)

	blobStore, err := s3.NewStore(ctx, s3.Config{
		Bucket:         cfg.Storage.Bucket,
		Region:         cfg.Storage.Region,
		Endpoint:       cfg.Storage.Endpoint,
		AccessKey:      cfg.Storage.AccessKey,
		SecretKey:      cfg.Storage.SecretKey,
		ForcePathStyle: cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	// Status-change events drive the pipeline. Writes that land a job in a
	// runnable state go through the notifying decorator.
	emitter := events.NewInMemoryEventEmitter(logger)
	jobs := events.NewNotifyingJobStore(jobStore, emitter, logger)

	// Transcription stage
	processor := audio.NewProcessor(audio.ProcessorConfig{
		FFmpegPath:   cfg.Transcription.FFmpegPath,
		FFprobePath:  cfg.Transcription.FFprobePath,
		ChunkSeconds: cfg.Transcription.ChunkSeconds,
	}, logger)

	speech, err := soniox.New(cfg.Transcription.SonioxAPIKey, cfg.Transcription.SonioxEndpoint, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech provider: %w", err)
	}

	pool := transcribe.NewPool(speech, blobStore, transcribe.PoolConfig{
		Concurrency:     cfg.Transcription.Concurrency,
		PerChunkTimeout: cfg.Transcription.PerChunkTimeout,
		BaseTimeout:     cfg.Transcription.BaseTimeout,
		SignedURLTTL:    cfg.Storage.SignedURLTTL,
	}, logger)

	// Note generation fallback chain: gpt first, gemini as fallback.
	gptProvider, err := openai.New(cfg.Notes.OpenAIAPIKey, cfg.Notes.OpenAIModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai provider: %w", err)
	}
	geminiProvider, err := gemini.New(ctx, cfg.Notes.GeminiAPIKey, cfg.Notes.GeminiModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini provider: %w", err)
	}

	generator := notegen.NewGenerator(
		[]notegen.Provider{gptProvider, geminiProvider},
		notegen.GeneratorConfig{
			MaxRetries: cfg.Notes.MaxRetries,
			BaseDelay:  cfg.Notes.BaseDelay,
		},
		logger,
	)

	// Pipeline
	orchestrator := pipeline.NewOrchestrator(
		jobs, transcriptStore, noteStore, blobStore,
		processor, pool, generator, logger,
	)

	runnerConfig := pipeline.DefaultRunnerConfig()
	runnerConfig.StuckJobAge = cfg.Retry.StuckAge
	runner := pipeline.NewRunner(jobs, orchestrator, runnerConfig, logger)

	emitter.RegisterHandler(events.EventHandlerFunc(
		func(ctx context.Context, event *events.JobStatusEvent) error {
			return runner.Submit(ctx, event.JobID)
		},
	))

	// Retry and cleanup loops
	scheduler := retry.NewScheduler(jobs, retry.SchedulerConfig{
		Period:    cfg.Retry.Period,
		BatchSize: cfg.Retry.BatchSize,
		Ladder:    cfg.Retry.Ladder,
	}, logger)

	cleaner := retry.NewCleaner(jobs, transcriptStore, noteStore, blobStore, retry.CleanerConfig{
		Period:       cfg.Cleanup.Period,
		CompletedTTL: cfg.Cleanup.CompletedTTL,
		FailedTTL:    cfg.Cleanup.FailedTTL,
		BatchSize:    cfg.Cleanup.BatchSize,
	}, logger)

	// HTTP layer
	jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	authHandler := api.NewAuthHandler(auth.NewBcryptVerifier(cfg.Auth.APIKeyHash), jwtService)
	jobHandler := api.NewJobHandler(jobs, transcriptStore, noteStore, logger)
	router := api.NewRouter(authHandler, jobHandler, apimiddleware.NewAuthMiddleware(jwtService))

	return &application{
		config:    cfg,
		logger:    logger,
		db:        db,
		jobs:      jobs,
		runner:    runner,
		scheduler: scheduler,
		cleaner:   cleaner,
		router:    router,
	}, nil
}

// Run starts the background loops and serves HTTP until shutdown.
func (app *application) Run(ctx context.Context) error {
	if err := app.runner.Start(); err != nil {
		return fmt.Errorf("failed to start pipeline runner: %w", err)
	}
	app.scheduler.Start()
	app.cleaner.Start()

	err := app.startHTTPServer(ctx, app.router)

	app.cleanup()
	return err
}

// cleanup stops the background loops in dependency order.
func (app *application) cleanup() {
	app.logger.Info("Stopping background workers")
	app.cleaner.Stop()
	app.scheduler.Stop()
	app.runner.Stop()
}
