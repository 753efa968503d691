package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CHEMDASH_APP_PORT",
	"CHEMDASH_LOG_LEVEL",
	"CHEMDASH_DASHBOARD_TIMEZONE",
	"CHEMDASH_DASHBOARD_LOCATIONS",
	"CHEMDASH_ENGINE_CLASSIFIER_EXPR",
	"CHEMDASH_FEEDS_BACKEND",
	"CHEMDASH_FEEDS_FIXTURE",
	"CHEMDASH_DATABASE_DSN",
	"CHEMDASH_DATABASE_MAX_CONNS",
	"CHEMDASH_FIRESTORE_PROJECT_ID",
	"CHEMDASH_TELEMETRY_SAMPLING_RATIO",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, v) })
		}
		os.Unsetenv(k)
		t.Cleanup(func() { os.Unsetenv(k) })
	}
}

// emptyDir keeps a developer's local config.toml out of the tests.
func emptyDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHEMDASH_FEEDS_BACKEND", "memory")

	cfg, err := Load(emptyDir(t))
	require.NoError(t, err)

	assert.Equal(t, "chemdash", cfg.App.Name)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "Asia/Kolkata", cfg.Dashboard.Timezone)
	assert.Equal(t, []string{"CHENNAI", "MUNDRA"}, cfg.Dashboard.Locations)
	assert.Equal(t, BackendMemory, cfg.Feeds.Backend)
	assert.Empty(t, cfg.Feeds.Fixture)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 200*time.Millisecond, cfg.Database.ReloadDebounce)
	assert.Equal(t, "date", cfg.Firestore.DateField)
	assert.Empty(t, cfg.Engine.ClassifierExpr)
	assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
	assert.Equal(t, "chemdash", cfg.Telemetry.ServiceName)
	assert.False(t, cfg.IsProduction())

	loc, err := cfg.Dashboard.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHEMDASH_APP_PORT", "9000")
	t.Setenv("CHEMDASH_DASHBOARD_LOCATIONS", "chennai, mundra ,Kandla")
	t.Setenv("CHEMDASH_DATABASE_DSN", "postgres://localhost/chemdash")
	t.Setenv("CHEMDASH_DATABASE_MAX_CONNS", "4")
	t.Setenv("CHEMDASH_ENGINE_CLASSIFIER_EXPR", `origin != "DISPATCH"`)

	cfg, err := Load(emptyDir(t))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, []string{"CHENNAI", "MUNDRA", "KANDLA"}, cfg.Dashboard.Locations)
	assert.Equal(t, BackendPostgres, cfg.Feeds.Backend)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
	assert.Equal(t, `origin != "DISPATCH"`, cfg.Engine.ClassifierExpr)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := `
[app]
env = "production"

[dashboard]
timezone = "UTC"
locations = ["MUNDRA"]

[feeds]
backend = "firestore"

[firestore]
project_id = "chem-stock"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "UTC", cfg.Dashboard.Timezone)
	assert.Equal(t, []string{"MUNDRA"}, cfg.Dashboard.Locations)
	assert.Equal(t, BackendFirestore, cfg.Feeds.Backend)
	assert.Equal(t, "chem-stock", cfg.Firestore.ProjectID)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without dsn", map[string]string{"CHEMDASH_FEEDS_BACKEND": "postgres"}},
		{"firestore without project", map[string]string{"CHEMDASH_FEEDS_BACKEND": "firestore"}},
		{"unknown backend", map[string]string{"CHEMDASH_FEEDS_BACKEND": "kafka"}},
		{"bad timezone", map[string]string{"CHEMDASH_FEEDS_BACKEND": "memory", "CHEMDASH_DASHBOARD_TIMEZONE": "Mars/Olympus"}},
		{"sampling ratio above one", map[string]string{"CHEMDASH_FEEDS_BACKEND": "memory", "CHEMDASH_TELEMETRY_SAMPLING_RATIO": "1.5"}},
		{"bad classifier", map[string]string{"CHEMDASH_FEEDS_BACKEND": "memory", "CHEMDASH_ENGINE_CLASSIFIER_EXPR": "origin +"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(emptyDir(t))
			assert.Error(t, err)
		})
	}
}
