//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"chat-relay/internal/config"
	"chat-relay/internal/domain/attachment"
	"chat-relay/internal/domain/conversation"
	"chat-relay/internal/domain/relay"
	"chat-relay/internal/infrastructure/auth"
	"chat-relay/internal/infrastructure/crontab"
	"chat-relay/internal/infrastructure/database"
	"chat-relay/internal/infrastructure/httpclients"
	"chat-relay/internal/infrastructure/logger"
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

var persistenceSet = wire.NewSet(
	newDatabaseConfig,
	newGormDB,
	convrepo.NewPostgresRepository,
	wire.Bind(new(conversation.Repository), new(*convrepo.PostgresRepository)),
	filerepo.NewPostgresRepository,
	wire.Bind(new(attachment.Repository), new(*filerepo.PostgresRepository)),
)

var domainSet = wire.NewSet(
	newSanitizer,
	wire.Bind(new(conversation.Redactor), new(*telemetry.Sanitizer)),
	conversation.NewService,
	newAttachmentConfig,
	attachment.NewService,
)

var relaySet = wire.NewSet(
	newUpstreamClient,
	wire.Bind(new(relay.Upstream), new(*upstream.Client)),
	newSink,
	newWorkerPool,
	wire.Bind(new(relay.BackgroundRunner), new(*worker.Pool)),
	newRedisClient,
	newRunRegistry,
	wire.Bind(new(relay.RunRegistry), new(*runregistry.Registry)),
	newRelayOptions,
	relay.New,
)

var httpSet = wire.NewSet(
	wire.Bind(new(handlers.ChatStreamer), new(*relay.Relay)),
	wire.Bind(new(handlers.RunCanceller), new(*runregistry.Registry)),
	wire.Bind(new(handlers.FileService), new(*attachment.Service)),
	handlers.NewProvider,
	newAuthValidator,
	newReadinessChecks,
	httpserver.New,
	newCrontab,
)

// BuildApplication assembles the Postgres-backed service with Wire. main wires the same
// graph by hand so STORE_BACKEND=memory can swap the repositories.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		storage.New,
		persistenceSet,
		domainSet,
		relaySet,
		httpSet,
		NewApplication,
	)
	return nil, nil
}

func newSanitizer(cfg *config.Config) *telemetry.Sanitizer {
	return telemetry.NewSanitizer(cfg.LogPIILevel, cfg.ServiceName)
}

func newAttachmentConfig(cfg *config.Config) attachment.Config {
	return attachment.Config{
		MaxUploadBytes: cfg.MaxUploadBytes,
		PresignTTL:     cfg.StoragePresignTTL,
		PendingTTL:     cfg.FilePendingTTL,
	}
}

func newUpstreamClient(cfg *config.Config, log zerolog.Logger) *upstream.Client {
	return upstream.NewClient(httpclients.NewClient("upstream", cfg.UpstreamOpenTimeout, log), cfg.UpstreamBaseURL, cfg.UpstreamAPIKey)
}

func newSink(service conversation.Service) relay.Sink {
	return service
}

func newRedisClient(ctx context.Context, cfg *config.Config) (redis.UniversalClient, error) {
	return runregistry.NewRedisClient(ctx, cfg.RedisURL)
}

func newRelayOptions(cfg *config.Config) (relay.Options, error) {
	vocabulary, err := relay.LoadVocabulary(cfg.EventMapFile)
	if err != nil {
		return relay.Options{}, err
	}
	return relay.Options{PersistTimeout: cfg.PersistTimeout, Vocabulary: vocabulary}, nil
}

func newAuthValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*auth.Validator, error) {
	return auth.NewValidator(ctx, cfg, log)
}

func newReadinessChecks(db *gorm.DB, store storage.Storage, client redis.UniversalClient) httpserver.ReadinessChecks {
	checks := httpserver.ReadinessChecks{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
		"storage":  store.Health,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

func newCrontab(service *attachment.Service, cfg *config.Config, log zerolog.Logger) *crontab.Crontab {
	return crontab.NewCrontab(service, cfg.FilePurgeSchedule, log)
}
