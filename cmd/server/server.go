package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chat-relay/internal/config"
	"chat-relay/internal/domain/attachment"
	"chat-relay/internal/domain/conversation"
	"chat-relay/internal/domain/relay"
	"chat-relay/internal/infrastructure/auth"
	"chat-relay/internal/infrastructure/crontab"
	"chat-relay/internal/infrastructure/database"
	"chat-relay/internal/infrastructure/httpclients"
	"chat-relay/internal/infrastructure/logger"
	"chat-relay/internal/infrastructure/observability"
	convrepo "chat-relay/internal/infrastructure/repository/conversation"
	filerepo "chat-relay/internal/infrastructure/repository/file"
	"chat-relay/internal/infrastructure/runregistry"
	"chat-relay/internal/infrastructure/storage"
	"chat-relay/internal/infrastructure/telemetry"
	"chat-relay/internal/infrastructure/upstream"
	"chat-relay/internal/interfaces/httpserver"
	"chat-relay/internal/interfaces/httpserver/handlers"
	"chat-relay/internal/worker"
)

// @title Chat Relay API
// @version 1.0
// @description Relays orchestration runs to chat clients over Server-Sent Events.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
type Application struct {
	httpServer *httpserver.HttpServer
	pool       *worker.Pool
	runs       *runregistry.Registry
	cron       *crontab.Crontab
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, pool *worker.Pool, runs *runregistry.Registry, cron *crontab.Crontab, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		pool:       pool,
		runs:       runs,
		cron:       cron,
		log:        log,
	}
}

// Start runs the HTTP server and the background loops until ctx is cancelled. Queued
// persistence tasks are drained after the server has stopped accepting streams.
func (a *Application) Start(ctx context.Context) error {
	if err := a.pool.Start(ctx); err != nil {
		return err
	}
	defer a.pool.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.httpServer.Run(gctx)
	})
	g.Go(func() error {
		return a.runs.Listen(gctx)
	})
	g.Go(func() error {
		return a.cron.Run(gctx)
	})
	return g.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	checks := httpserver.ReadinessChecks{}

	var (
		conversationRepository conversation.Repository
		fileRepository         attachment.Repository
	)
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		log.Warn().Msg("STORE_BACKEND=memory; conversations are lost on restart")
		conversationRepository = convrepo.NewInMemoryRepository()
		fileRepository = filerepo.NewInMemoryRepository()
	default:
		db, err := newGormDB(ctx, newDatabaseConfig(cfg), log)
		if err != nil {
			log.Fatal().Err(err).Msg("connect database")
		}
		conversationRepository = convrepo.NewPostgresRepository(db)
		fileRepository = filerepo.NewPostgresRepository(db)
		checks["database"] = func(ctx context.Context) error { return database.Ping(ctx, db) }
	}

	redisClient, err := runregistry.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		log.Warn().Msg("REDIS_URL not set; runs can only be cancelled on the instance streaming them")
	}

	objectStorage, err := storage.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize object storage")
	}
	checks["storage"] = objectStorage.Health

	vocabulary, err := relay.LoadVocabulary(cfg.EventMapFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load event map")
	}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	sanitizer := telemetry.NewSanitizer(cfg.LogPIILevel, cfg.ServiceName)
	conversationService := conversation.NewService(conversationRepository, sanitizer, log)
	attachmentService := attachment.NewService(fileRepository, objectStorage, attachment.Config{
		MaxUploadBytes: cfg.MaxUploadBytes,
		PresignTTL:     cfg.StoragePresignTTL,
		PendingTTL:     cfg.FilePendingTTL,
	}, log)

	pool := newWorkerPool(cfg, log)
	runs := newRunRegistry(cfg, redisClient, log)
	upstreamClient := upstream.NewClient(httpclients.NewClient("upstream", cfg.UpstreamOpenTimeout, log), cfg.UpstreamBaseURL, cfg.UpstreamAPIKey)
	chatRelay := relay.New(upstreamClient, conversationService, pool, runs, relay.Options{
		PersistTimeout: cfg.PersistTimeout,
		Vocabulary:     vocabulary,
	}, log)

	handlerProvider := handlers.NewProvider(cfg, chatRelay, runs, conversationService, attachmentService, log)
	httpServer := httpserver.New(cfg, log, handlerProvider, authValidator, checks)
	cron := crontab.NewCrontab(attachmentService, cfg.FilePurgeSchedule, log)
	app := NewApplication(httpServer, pool, runs, cron, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func newWorkerPool(cfg *config.Config, log zerolog.Logger) *worker.Pool {
	return worker.NewPool(worker.Config{
		WorkerCount: cfg.PersistWorkers,
		QueueSize:   cfg.PersistQueueSize,
		TaskTimeout: cfg.PersistTimeout,
	}, log)
}

func newRunRegistry(cfg *config.Config, client redis.UniversalClient, log zerolog.Logger) *runregistry.Registry {
	return runregistry.New(client, cfg.RunTTL, log)
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
