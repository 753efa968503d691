// Package config loads the dashboard configuration from config.toml and
// CHEMDASH_ environment variables.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // deployment zones must resolve on minimal images

	"github.com/spf13/viper"

	"chemdash/internal/domain/ledger"
)

// Feed backends.
const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	Dashboard DashboardConfig
	Engine    EngineConfig
	Feeds     FeedsConfig
	Database  DatabaseConfig
	Firestore FirestoreConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// DashboardConfig holds presentation settings
type DashboardConfig struct {
	Timezone  string
	Locations []string
}

// Location resolves Timezone.
func (d DashboardConfig) Location() (*time.Location, error) {
	return time.LoadLocation(d.Timezone)
}

// EngineConfig holds reconstruction settings
type EngineConfig struct {
	// ClassifierExpr is a CEL expression deciding whether an event is inbound.
	// Empty uses the legacy rule.
	ClassifierExpr string
}

// FeedsConfig selects where the snapshot and ledgers come from
type FeedsConfig struct {
	Backend string
	// Fixture is a JSON data set served by the memory backend. Empty serves demo data.
	Fixture string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// ReloadDebounce coalesces bursts of NOTIFY events into one reload.
	ReloadDebounce time.Duration
}

// FirestoreConfig holds Firestore client settings
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	// DateField is the free-text date field read when a document has no create time.
	DateField string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	ServiceName       string
	CollectorEndpoint string
	Insecure          bool
	SamplingRatio     float64
	ExportInterval    time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CHEMDASH_ prefix (e.g., CHEMDASH_DATABASE_DSN)
// 2. config.toml
// 3. Built-in defaults
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if len(paths) == 0 {
		paths = []string{".", "./configs", "/etc/chemdash"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// zero is a valid ratio, so it is defaulted here rather than in applyDefaults
	v.SetDefault("telemetry.sampling_ratio", 1.0)

	v.SetEnvPrefix("CHEMDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		Dashboard: DashboardConfig{
			Timezone:  v.GetString("dashboard.timezone"),
			Locations: splitList(v.GetStringSlice("dashboard.locations")),
		},
		Engine: EngineConfig{
			ClassifierExpr: v.GetString("engine.classifier_expr"),
		},
		Feeds: FeedsConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("feeds.backend"))),
			Fixture: v.GetString("feeds.fixture"),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("database.dsn"),
			MaxConns:        v.GetInt32("database.max_conns"),
			MinConns:        v.GetInt32("database.min_conns"),
			MaxConnLifetime: v.GetDuration("database.max_conn_lifetime"),
			MaxConnIdleTime: v.GetDuration("database.max_conn_idle_time"),
			ReloadDebounce:  v.GetDuration("database.reload_debounce"),
		},
		Firestore: FirestoreConfig{
			ProjectID:       v.GetString("firestore.project_id"),
			CredentialsFile: v.GetString("firestore.credentials_file"),
			DateField:       v.GetString("firestore.date_field"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			ServiceName:       v.GetString("telemetry.service_name"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			Insecure:          v.GetBool("telemetry.insecure"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "chemdash"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Dashboard.Timezone == "" {
		cfg.Dashboard.Timezone = "Asia/Kolkata"
	}
	if len(cfg.Dashboard.Locations) == 0 {
		cfg.Dashboard.Locations = []string{"CHENNAI", "MUNDRA"}
	}
	for i, l := range cfg.Dashboard.Locations {
		cfg.Dashboard.Locations[i] = ledger.NormalizeLocation(l)
	}
	if cfg.Feeds.Backend == "" {
		cfg.Feeds.Backend = BackendPostgres
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}
	if cfg.Database.MaxConnLifetime == 0 {
		cfg.Database.MaxConnLifetime = time.Hour
	}
	if cfg.Database.MaxConnIdleTime == 0 {
		cfg.Database.MaxConnIdleTime = 30 * time.Minute
	}
	if cfg.Database.ReloadDebounce == 0 {
		cfg.Database.ReloadDebounce = 200 * time.Millisecond
	}
	if cfg.Firestore.DateField == "" {
		cfg.Firestore.DateField = "date"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if _, err := c.Dashboard.Location(); err != nil {
		return fmt.Errorf("invalid dashboard.timezone %q: %w", c.Dashboard.Timezone, err)
	}

	switch c.Feeds.Backend {
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres feed backend")
		}
		if c.Database.MinConns > c.Database.MaxConns {
			return fmt.Errorf("database.min_conns (%d) exceeds database.max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
		}
	case BackendFirestore:
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("firestore.project_id is required for the firestore feed backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown feeds.backend %q (want %s, %s or %s)", c.Feeds.Backend, BackendPostgres, BackendFirestore, BackendMemory)
	}

	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be within [0, 1], got %v", c.Telemetry.SamplingRatio)
	}

	if _, err := ledger.NewClassifier(c.Engine.ClassifierExpr); err != nil {
		return fmt.Errorf("invalid engine.classifier_expr: %w", err)
	}

	return nil
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// splitList accepts both TOML arrays and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
