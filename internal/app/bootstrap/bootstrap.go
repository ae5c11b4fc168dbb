package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	tallyengine "tallyhub/contexts/election-results/tally-engine"
	gcsadapter "tallyhub/contexts/election-results/tally-engine/adapters/gcs"
	"tallyhub/contexts/election-results/tally-engine/adapters/locationcsv"
	"tallyhub/contexts/election-results/tally-engine/adapters/memory"
	postgresadapter "tallyhub/contexts/election-results/tally-engine/adapters/postgres"
	pubsubadapter "tallyhub/contexts/election-results/tally-engine/adapters/pubsub"
	redisadapter "tallyhub/contexts/election-results/tally-engine/adapters/redis"
	workerapp "tallyhub/contexts/election-results/tally-engine/application/workers"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	"tallyhub/contexts/election-results/tally-engine/domain/services"
	"tallyhub/contexts/election-results/tally-engine/ports"
	"tallyhub/internal/platform/cache"
	"tallyhub/internal/platform/config"
	"tallyhub/internal/platform/db"
	"tallyhub/internal/platform/httpserver"
	"tallyhub/internal/platform/messaging"

	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	infra    *infrastructure
	embedded *WorkerApp
	logger   *slog.Logger
}

type WorkerApp struct {
	infra        *infrastructure
	outboxRelay  workerapp.OutboxRelay
	invalidation workerapp.AggregateInvalidationConsumer
	consume      bool
	pollInterval time.Duration
	logger       *slog.Logger
}

// infrastructure holds the adapters shared by the api and worker processes.
type infrastructure struct {
	cfg         config.Config
	postgres    *db.Postgres
	redis       *redis.Client
	submissions ports.SubmissionRepository
	outbox      ports.OutboxRepository
	dedup       ports.EventDedupStore
	locations   ports.LocationRegistry
	cache       ports.AggregateCache
	locker      ports.LeaseLocker
	evidence    ports.EvidenceStore
	clock       ports.Clock
	idGen       ports.IDGenerator
	publisher   ports.EventPublisher
	subscriber  ports.EventSubscriber
	closers     []func() error
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg.LogLevel).With("service", cfg.ServiceName, "process", "api")

	infra, err := buildInfrastructure(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	module := tallyengine.NewModule(tallyengine.Dependencies{
		Submissions:       infra.submissions,
		Locations:         infra.locations,
		Cache:             infra.cache,
		Evidence:          infra.evidence,
		Clock:             infra.clock,
		IDGen:             infra.idGen,
		Thresholds:        thresholds(cfg),
		ValidationPenalty: cfg.ValidationPenalty,
		Logger:            logger,
	})

	app := &APIApp{
		server: httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort)),
		infra:  infra,
		logger: logger,
	}
	// Without postgres the outbox lives in this process, so relay it here.
	if cfg.PostgresDSN == "" {
		app.embedded = newWorkerApp(infra, logger)
	}
	return app, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg.LogLevel).With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	infra, err := buildInfrastructure(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	return newWorkerApp(infra, logger), nil
}

func newWorkerApp(infra *infrastructure, logger *slog.Logger) *WorkerApp {
	cfg := infra.cfg
	return &WorkerApp{
		infra: infra,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    infra.outbox,
			Publisher: infra.publisher,
			Locker:    infra.locker,
			LeaseTTL:  cfg.OutboxLeaseTTL,
			Clock:     infra.clock,
			BatchSize: cfg.OutboxBatchSize,
			Logger:    logger,
		},
		invalidation: workerapp.AggregateInvalidationConsumer{
			Subscriber: infra.subscriber,
			Dedup:      infra.dedup,
			Cache:      infra.cache,
			Clock:      infra.clock,
			DedupTTL:   cfg.InvalidationDedupTTL,
			Logger:     logger,
		},
		consume:      cfg.EnableInvalidationConsumer,
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}
}

func buildInfrastructure(ctx context.Context, cfg config.Config, logger *slog.Logger) (*infrastructure, error) {
	infra := &infrastructure{cfg: cfg}
	if err := infra.wireStorage(ctx, cfg, logger); err != nil {
		_ = infra.Close()
		return nil, err
	}
	if err := infra.wireCache(cfg); err != nil {
		_ = infra.Close()
		return nil, err
	}
	if err := infra.wireBus(ctx, cfg, logger); err != nil {
		_ = infra.Close()
		return nil, err
	}
	if err := infra.wireEvidence(ctx, cfg); err != nil {
		_ = infra.Close()
		return nil, err
	}
	return infra, nil
}

func (i *infrastructure) wireStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		locations, err := loadLocations(cfg.LocationsCSV)
		if err != nil {
			return err
		}
		registry, err := memory.NewLocationRegistry(locations)
		if err != nil {
			return err
		}
		store := memory.NewStore(nil)
		i.submissions, i.outbox, i.dedup = store, store, store
		i.clock, i.idGen = store, store
		i.locations = registry
		logger.Warn("running on process-local storage",
			"event", "bootstrap_memory_storage",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"locations", len(locations),
		)
		return nil
	}

	pg, err := db.Connect(cfg.PostgresDSN, logger)
	if err != nil {
		return err
	}
	i.postgres = pg
	i.closers = append(i.closers, pg.Close)
	if cfg.AutoMigrate {
		if err := postgresadapter.EnsureSchema(ctx, pg.DB); err != nil {
			return err
		}
	}
	repo := postgresadapter.NewRepository(pg.DB, logger)
	i.submissions, i.outbox, i.dedup = repo, repo, repo
	i.locations = postgresadapter.NewLocationRegistry(pg.DB, logger)
	i.clock = postgresadapter.SystemClock{}
	i.idGen = postgresadapter.UUIDGenerator{}
	return nil
}

func (i *infrastructure) wireCache(cfg config.Config) error {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		i.cache = memory.NewAggregateCache()
		i.locker = memory.NewLocker()
		return nil
	}
	client, err := cache.Connect(cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	i.redis = client
	i.closers = append(i.closers, client.Close)
	i.cache = redisadapter.NewAggregateCache(client, cfg.CacheTTL)
	i.locker = redisadapter.NewLocker(client)
	return nil
}

func (i *infrastructure) wireBus(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	switch cfg.BusKind {
	case config.BusPubSub:
		bus, err := pubsubadapter.NewBus(ctx, cfg.PubSubProject, cfg.PubSubTopicPrefix, logger, gcpOptions(cfg)...)
		if err != nil {
			return err
		}
		i.closers = append(i.closers, bus.Close)
		i.publisher, i.subscriber = bus, bus
	default:
		bus := messaging.NewBus(logger)
		i.publisher, i.subscriber = bus, bus
	}
	return nil
}

func (i *infrastructure) wireEvidence(ctx context.Context, cfg config.Config) error {
	if strings.TrimSpace(cfg.EvidenceBucket) == "" {
		return nil
	}
	store, err := gcsadapter.NewEvidenceStore(ctx, cfg.EvidenceBucket, gcpOptions(cfg)...)
	if err != nil {
		return err
	}
	i.closers = append(i.closers, store.Close)
	i.evidence = store
	return nil
}

func (i *infrastructure) Close() error {
	var errs []error
	for idx := len(i.closers) - 1; idx >= 0; idx-- {
		if err := i.closers[idx](); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"embedded_worker", a.embedded != nil,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	if a.embedded != nil {
		go func() {
			errCh <- a.embedded.Run(ctx)
		}()
	}
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stop()
	return a.server.Shutdown(shutdownCtx)
}

func (a *APIApp) Close() error {
	if a.infra != nil {
		return a.infra.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if w.consume {
		if err := w.invalidation.Start(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"invalidation_consumer", w.consume,
	)

	for {
		if w.infra.cfg.EnableOutboxRelay {
			if err := w.outboxRelay.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.infra != nil {
		return w.infra.Close()
	}
	return nil
}

// NewLogger builds the process JSON logger at the configured level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func thresholds(cfg config.Config) services.AnomalyThresholds {
	return services.AnomalyThresholds{
		TurnoutCeiling: cfg.TurnoutCeiling,
		HighTurnout:    cfg.HighTurnout,
		MinSiblings:    cfg.MinSiblings,
		SigmaMultiple:  cfg.SigmaMultiple,
	}
}

func gcpOptions(cfg config.Config) []option.ClientOption {
	if strings.TrimSpace(cfg.GCPCredentials) == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.GCPCredentials)}
}

func loadLocations(path string) ([]entities.Location, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open locations file: %w", err)
	}
	defer file.Close()
	return locationcsv.Read(file)
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
