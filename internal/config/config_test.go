package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "competitor-radar/internal/errors"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5.0, cfg.Tracker.Thresholds.ScoreDelta)
	assert.Equal(t, 10, cfg.Tracker.Thresholds.ReviewDelta)
	assert.Equal(t, 5, cfg.Tracker.Thresholds.PhotoDelta)
	assert.Equal(t, 0.3, cfg.Tracker.Thresholds.RatingDelta)
	assert.Equal(t, 10.0, cfg.Alerts.CriticalScoreDelta)
	assert.Equal(t, 20, cfg.Alerts.CriticalReviewDelta)
	assert.Equal(t, 500.0, cfg.Heatmap.MinRadiusMeters)
	assert.Equal(t, 2000.0, cfg.Heatmap.MaxRadiusMeters)
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radar.yaml")
	yaml := `
database:
  type: mysql
scheduler:
  daily_run_time: "04:30"
  concurrency: 8
tracker:
  thresholds:
    score_delta: 6
heatmap:
  refresh_days: 14
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, 8, cfg.Scheduler.Concurrency)
	assert.Equal(t, 6.0, cfg.Tracker.Thresholds.ScoreDelta)
	// untouched keys keep their defaults
	assert.Equal(t, 10, cfg.Tracker.Thresholds.ReviewDelta)
	assert.Equal(t, 14, cfg.Heatmap.RefreshDays)

	spec, err := cfg.Scheduler.Spec()
	require.NoError(t, err)
	assert.Equal(t, "30 4 * * *", spec)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate_RejectsMalformedConstants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown database", func(c *Config) { c.Database.Type = "oracle" }},
		{"zero score threshold", func(c *Config) { c.Tracker.Thresholds.ScoreDelta = 0 }},
		{"negative rating threshold", func(c *Config) { c.Tracker.Thresholds.RatingDelta = -0.3 }},
		{"critical below warning", func(c *Config) { c.Alerts.CriticalScoreDelta = 4 }},
		{"critical reviews below warning", func(c *Config) { c.Alerts.CriticalReviewDelta = 9 }},
		{"inverted radius bounds", func(c *Config) { c.Heatmap.MaxRadiusMeters = 400 }},
		{"zero min radius", func(c *Config) { c.Heatmap.MinRadiusMeters = 0 }},
		{"min radius below floor", func(c *Config) { c.Heatmap.MinRadiusMeters = 100 }},
		{"max radius above ceiling", func(c *Config) { c.Heatmap.MaxRadiusMeters = 5000 }},
		{"widened radius bounds", func(c *Config) {
			c.Heatmap.MinRadiusMeters = 100
			c.Heatmap.MaxRadiusMeters = 5000
		}},
		{"equal radius bounds", func(c *Config) {
			c.Heatmap.MinRadiusMeters = 1000
			c.Heatmap.MaxRadiusMeters = 1000
		}},
		{"bad daily run time", func(c *Config) { c.Scheduler.DailyRunTime = "25:00" }},
		{"bad cron spec", func(c *Config) { c.Scheduler.CronSpec = "every day" }},
		{"zero concurrency", func(c *Config) { c.Scheduler.Concurrency = 0 }},
		{"unknown provider", func(c *Config) { c.Provider.Type = "ftp" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.IsConfiguration(err))
		})
	}
}

func TestParseDailyRunTime(t *testing.T) {
	spec, err := ParseDailyRunTime("02:05")
	require.NoError(t, err)
	assert.Equal(t, "5 2 * * *", spec)

	for _, bad := range []string{"", "2", "aa:10", "10:61", "24:00"} {
		_, err := ParseDailyRunTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "mysql")
	t.Setenv("MYSQL_PORT", "3307")
	t.Setenv("REDIS_ADDR", "localhost:6380")
	t.Setenv("MEILISEARCH_HOST", "http://localhost:7700")
	t.Setenv("PORT", "not-a-number")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, 3307, cfg.Database.MySQL.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6380", cfg.Redis.Address)
	assert.True(t, cfg.Search.Meilisearch.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RADAR_DOTENV_PROBE=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("RADAR_DOTENV_PROBE") })

	LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "loaded", os.Getenv("RADAR_DOTENV_PROBE"))
}
