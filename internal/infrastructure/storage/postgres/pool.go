// Package postgres reads the balance snapshot and the movement ledgers from
// PostgreSQL and keeps them current through LISTEN/NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	"chemdash/pkg/logger"
)

// ErrPoolTooSmall is returned when the pool cannot spare a connection for LISTEN.
var ErrPoolTooSmall = errors.New("postgres: max_conns must be at least 2, the listener holds one connection")

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	DSN               string
	ApplicationName   string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolConfig returns the pool used by the server.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:               dsn,
		ApplicationName:   "chemdash",
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

// WithLimits overrides the sizing fields that are set.
func (c PoolConfig) WithLimits(maxConns, minConns int32, lifetime, idle time.Duration) PoolConfig {
	if maxConns > 0 {
		c.MaxConns = maxConns
	}
	if minConns > 0 {
		c.MinConns = minConns
	}
	if lifetime > 0 {
		c.MaxConnLifetime = lifetime
	}
	if idle > 0 {
		c.MaxConnIdleTime = idle
	}
	return c
}

// pgxConfig translates c. NUMERIC columns scan into shopspring decimals on
// every connection.
func (c PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	if c.MaxConns < 2 {
		return nil, ErrPoolTooSmall
	}
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	pc.MaxConns = c.MaxConns
	pc.MinConns = min(c.MinConns, c.MaxConns)
	pc.MaxConnLifetime = c.MaxConnLifetime
	pc.MaxConnIdleTime = c.MaxConnIdleTime
	if c.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = c.HealthCheckPeriod
	}
	if c.ApplicationName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = c.ApplicationName
	}

	pc.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	return pc, nil
}

// Pool is the shared connection pool.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects and pings the database.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	pc, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// Close closes all connections in the pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// PoolStats is reported on /health/info.
type PoolStats struct {
	TotalConns      int32 `json:"totalConns"`
	AcquiredConns   int32 `json:"acquiredConns"`
	IdleConns       int32 `json:"idleConns"`
	MaxConns        int32 `json:"maxConns"`
	AcquireCount    int64 `json:"acquireCount"`
	EmptyAcquires   int64 `json:"emptyAcquires"`
	AcquireMillis   int64 `json:"acquireMillis"`
	CanceledAcquire int64 `json:"canceledAcquires"`
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	s := p.Stat()
	return PoolStats{
		TotalConns:      s.TotalConns(),
		AcquiredConns:   s.AcquiredConns(),
		IdleConns:       s.IdleConns(),
		MaxConns:        s.MaxConns(),
		AcquireCount:    s.AcquireCount(),
		EmptyAcquires:   s.EmptyAcquireCount(),
		AcquireMillis:   s.AcquireDuration().Milliseconds(),
		CanceledAcquire: s.CanceledAcquireCount(),
	}
}

// LogStats logs pool statistics, typically on shutdown.
func (p *Pool) LogStats(ctx context.Context) {
	s := p.Stats()
	logger.Info(ctx, "database pool stats",
		"total", s.TotalConns,
		"acquired", s.AcquiredConns,
		"idle", s.IdleConns,
		"max", s.MaxConns,
		"empty_acquires", s.EmptyAcquires,
	)
}

// RegisterMetrics exports connection counts as observable gauges.
func (p *Pool) RegisterMetrics(meter metric.Meter) error {
	acquired, err := meter.Int64ObservableGauge("chemdash_db_conns_acquired",
		metric.WithDescription("Connections currently in use, including the listener"), metric.WithUnit("{connections}"))
	if err != nil {
		return fmt.Errorf("create acquired gauge: %w", err)
	}
	idle, err := meter.Int64ObservableGauge("chemdash_db_conns_idle",
		metric.WithDescription("Idle pooled connections"), metric.WithUnit("{connections}"))
	if err != nil {
		return fmt.Errorf("create idle gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := p.Stat()
		o.ObserveInt64(acquired, int64(s.AcquiredConns()))
		o.ObserveInt64(idle, int64(s.IdleConns()))
		return nil
	}, acquired, idle)
	if err != nil {
		return fmt.Errorf("register pool callback: %w", err)
	}
	return nil
}
