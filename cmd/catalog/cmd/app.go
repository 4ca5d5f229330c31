package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/mawsim/catalog/internal/adapters"
	"github.com/mawsim/catalog/internal/config"
	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/domain/confidence"
	"github.com/mawsim/catalog/internal/domain/dedup"
	"github.com/mawsim/catalog/internal/domain/editorial"
	"github.com/mawsim/catalog/internal/domain/ingest"
	"github.com/mawsim/catalog/internal/jobs"
	"github.com/mawsim/catalog/internal/normalize"
	"github.com/mawsim/catalog/internal/pipeline"
	"github.com/mawsim/catalog/internal/search"
	"github.com/mawsim/catalog/internal/search/typesense"
	"github.com/mawsim/catalog/internal/storage/postgres"
)

// app holds the shared wiring every subcommand starts from.
type app struct {
	cfg          config.Config
	logger       zerolog.Logger
	pool         *pgxpool.Pool
	store        *postgres.Store
	engine       *typesense.Client
	sync         *search.Synchronizer
	scorer       *confidence.Scorer
	editorial    *editorial.Service
	registry     *adapters.Registry
	resolver     *dedup.Resolver
	enqueuer     *jobs.Enqueuer
	writer       *ingest.Writer
	orchestrator *pipeline.Orchestrator
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Logger{}, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, config.NewLogger(cfg.Logging), nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	pool, err := postgres.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdle)
	if err != nil {
		return nil, err
	}
	store, err := postgres.NewStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	engine := typesense.NewClient(cfg.Search.BaseURL(), cfg.Search.APIKey,
		typesense.WithTimeout(cfg.Search.ConnectionTimeout))
	synchronizer := search.NewSynchronizer(engine, store, logger)

	scorer := confidence.NewScorer()
	editorialSvc := editorial.NewService(store, synchronizer, logger)

	// The enqueuer's River client is attached later, once the job client
	// exists; until then failed projections rely on the nightly rebuild.
	enqueuer := &jobs.Enqueuer{}
	writer := ingest.NewWriter(store, scorer, synchronizer, enqueuer, logger)
	resolver := dedup.NewResolver(store)

	registry, err := buildRegistry(ctx, cfg, store, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	orchestrator := pipeline.NewOrchestrator(registry, store, resolver, writer, logger)

	return &app{
		cfg:          cfg,
		logger:       logger,
		pool:         pool,
		store:        store,
		engine:       engine,
		sync:         synchronizer,
		scorer:       scorer,
		editorial:    editorialSvc,
		registry:     registry,
		resolver:     resolver,
		enqueuer:     enqueuer,
		writer:       writer,
		orchestrator: orchestrator,
	}, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// buildRegistry registers one adapter per configured upstream, creating its
// source row on first use.
func buildRegistry(ctx context.Context, cfg config.Config, store catalog.Store, logger zerolog.Logger) (*adapters.Registry, error) {
	cities, err := store.Reference().ListCities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cities: %w", err)
	}
	normalizer := adapters.NewNormalizer(normalize.NewCityMatcher(cities))
	registry := adapters.NewRegistry()

	if cfg.Sources.APIBaseURL != "" {
		source, err := store.Sources().GetOrCreate(ctx, "partner-api", catalog.SourceAPI, catalog.DefaultReliability(catalog.SourceAPI))
		if err != nil {
			return nil, fmt.Errorf("register api source: %w", err)
		}
		registry.Register(adapters.NewAPIAdapter(*source, cfg.Sources.APIBaseURL, cfg.Sources.APIKey, normalizer))
	}

	if cfg.Sources.ScrapeURL != "" {
		source, err := store.Sources().GetOrCreate(ctx, "listings-scrape", catalog.SourceScraped, catalog.DefaultReliability(catalog.SourceScraped))
		if err != nil {
			return nil, fmt.Errorf("register scrape source: %w", err)
		}
		registry.Register(adapters.NewScrapeAdapter(*source, adapters.ScrapeConfig{
			URL: cfg.Sources.ScrapeURL,
			Selectors: adapters.Selectors{
				EventList:   "article.event",
				Name:        ".event-title",
				StartDate:   "time.start",
				EndDate:     "time.end",
				City:        ".event-city",
				Venue:       ".event-venue",
				Description: ".event-description",
				DetailLink:  "a.event-link",
			},
		}, normalizer, logger))
	}

	return registry, nil
}

// newNormalizer loads the canonical city table for one-off commands.
func newNormalizer(ctx context.Context, store catalog.Store) (*adapters.Normalizer, error) {
	cities, err := store.Reference().ListCities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cities: %w", err)
	}
	return adapters.NewNormalizer(normalize.NewCityMatcher(cities)), nil
}
