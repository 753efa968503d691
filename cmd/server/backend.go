package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"chemdash/internal/domain/dashboard"
	"chemdash/internal/domain/feed"
	"chemdash/internal/infrastructure/config"
	"chemdash/internal/infrastructure/http/v1/handlers"
	firestoreinfra "chemdash/internal/infrastructure/storage/firestore"
	"chemdash/internal/infrastructure/storage/fixture"
	"chemdash/internal/infrastructure/storage/postgres"
	"chemdash/pkg/logger"
)

// backend is an opened feed backend. Optional parts stay nil.
type backend struct {
	sources    feed.Sources
	checks     map[string]handlers.Pinger
	qualityLog dashboard.QualityLog
	history    handlers.QualityHistory
	info       func() map[string]any
	close      func()
}

func openBackend(ctx context.Context, cfg *config.Config, loc *time.Location, meter metric.Meter, log *logger.Logger) (*backend, error) {
	switch cfg.Feeds.Backend {
	case config.BackendPostgres:
		return openPostgres(ctx, cfg, loc, meter, log)
	case config.BackendFirestore:
		return openFirestore(ctx, cfg, loc, log)
	case config.BackendMemory:
		return openMemory(cfg, loc, log)
	}
	return nil, fmt.Errorf("unknown feed backend %q", cfg.Feeds.Backend)
}

func openPostgres(ctx context.Context, cfg *config.Config, loc *time.Location, meter metric.Meter, log *logger.Logger) (*backend, error) {
	db := cfg.Database
	poolCfg := postgres.DefaultPoolConfig(db.DSN).
		WithLimits(db.MaxConns, db.MinConns, db.MaxConnLifetime, db.MaxConnIdleTime)

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	log.Info("database connection established")
	if err := pool.RegisterMetrics(meter); err != nil {
		log.Warnw("pool metrics disabled", "error", err)
	}

	txManager := postgres.NewTxManager(pool)
	qualityLog, err := postgres.NewQualityLog(txManager)
	if err != nil {
		pool.Close()
		return nil, err
	}

	listener := postgres.NewListener(pool)
	if err := listener.Start(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	repo := postgres.NewFeedRepo(txManager, loc)
	return &backend{
		sources:    postgres.Sources(repo, listener, cfg.Database.ReloadDebounce),
		checks:     map[string]handlers.Pinger{"postgres": txManager},
		qualityLog: qualityLog,
		history:    qualityLog,
		info: func() map[string]any {
			return map[string]any{"pool": pool.Stats()}
		},
		close: func() {
			listener.Stop()
			pool.LogStats(context.Background())
			pool.Close()
		},
	}, nil
}

func openFirestore(ctx context.Context, cfg *config.Config, loc *time.Location, log *logger.Logger) (*backend, error) {
	client, err := firestoreinfra.NewClient(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
	if err != nil {
		return nil, err
	}
	log.Infow("firestore client initialized", "project", cfg.Firestore.ProjectID)

	return &backend{
		sources: firestoreinfra.Sources(client.Client, firestoreinfra.SourcesConfig{
			DateField: cfg.Firestore.DateField,
			Location:  loc,
		}),
		checks: map[string]handlers.Pinger{"firestore": client},
		close: func() {
			if err := client.Close(); err != nil {
				log.Warnw("failed to close firestore client", "error", err)
			}
		},
	}, nil
}

func openMemory(cfg *config.Config, loc *time.Location, log *logger.Logger) (*backend, error) {
	ds := fixture.Demo(time.Now(), loc)
	if cfg.Feeds.Fixture != "" {
		loaded, err := fixture.Load(cfg.Feeds.Fixture)
		if err != nil {
			return nil, err
		}
		ds = loaded
	}
	log.Infow("serving static stock data",
		"fixture", cfg.Feeds.Fixture,
		"balances", len(ds.Balances),
		"movements", len(ds.Movements),
	)

	pipes := fixture.NewPipes(ds, loc)
	return &backend{
		sources: pipes.Sources(),
		close:   pipes.Close,
	}, nil
}
