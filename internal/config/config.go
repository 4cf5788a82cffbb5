package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Search        SearchConfig        `yaml:"search"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Tracker       TrackerConfig       `yaml:"tracker"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Heatmap       HeatmapConfig       `yaml:"heatmap"`
	Provider      ProviderConfig      `yaml:"provider"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Cleanup       CleanupConfig       `yaml:"cleanup"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int      `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type         string         `yaml:"type"`
	MySQL        MySQLConfig    `yaml:"mysql"`
	Postgres     PostgresConfig `yaml:"postgres"`
	MaxOpenConns int            `yaml:"max_open_conns"`
	MaxIdleConns int            `yaml:"max_idle_conns"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN builds the go-sql-driver DSN
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN builds a key/value connection string understood by both pgx and lib/pq
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	APIKey  string `yaml:"api_key"`
	Index   string `yaml:"index"`
}

// SchedulerConfig controls the monitoring run trigger
type SchedulerConfig struct {
	Enabled                 bool   `yaml:"enabled"`
	CronSpec                string `yaml:"cron_spec"`
	DailyRunTime            string `yaml:"daily_run_time"`
	Concurrency             int    `yaml:"concurrency"`
	LockTTLSeconds          int    `yaml:"lock_ttl_seconds"`
	DispatchEnabled         bool   `yaml:"dispatch_enabled"`
	DispatchIntervalSeconds int    `yaml:"dispatch_interval_seconds"`
	DispatchBatchSize       int    `yaml:"dispatch_batch_size"`
}

// TrackerConfig controls competitor scans
type TrackerConfig struct {
	FetchTimeoutSeconds int                `yaml:"fetch_timeout_seconds"`
	Thresholds          MovementThresholds `yaml:"thresholds"`
}

// MovementThresholds decide when a snapshot counts as movement
type MovementThresholds struct {
	ScoreDelta  float64 `yaml:"score_delta"`
	ReviewDelta int     `yaml:"review_delta"`
	PhotoDelta  int     `yaml:"photo_delta"`
	RatingDelta float64 `yaml:"rating_delta"`
}

// AlertsConfig controls severity classification and delivery
type AlertsConfig struct {
	CriticalScoreDelta  float64 `yaml:"critical_score_delta"`
	CriticalReviewDelta int     `yaml:"critical_review_delta"`
	MaxAttempts         int     `yaml:"max_attempts"`
}

// HeatmapConfig holds the geospatial constants of the dominance engine
// Influence radius limits in meters. Configured bounds must stay inside them.
const (
	RadiusFloorMeters   = 500.0
	RadiusCeilingMeters = 2000.0
)

type HeatmapConfig struct {
	MinRadiusMeters      float64 `yaml:"min_radius_meters"`
	MaxRadiusMeters      float64 `yaml:"max_radius_meters"`
	RefreshDays          int     `yaml:"refresh_days"`
	CardinalOffsetDeg    float64 `yaml:"cardinal_offset_deg"`
	DiagonalOffsetDeg    float64 `yaml:"diagonal_offset_deg"`
	ProbeCompetitorRange float64 `yaml:"probe_competitor_range_meters"`
	ProbePenalty         float64 `yaml:"probe_penalty"`
}

// ProviderConfig selects and tunes the business data provider
type ProviderConfig struct {
	Type                string `yaml:"type"` // http, page
	BaseURL             string `yaml:"base_url"`
	APIKey              string `yaml:"api_key"`
	PageURLTemplate     string `yaml:"page_url_template"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	UserAgent           string `yaml:"user_agent"`
	Headless            bool   `yaml:"headless"`
	ChromePath          string `yaml:"chrome_path"`
	PageConcurrency     int    `yaml:"page_concurrency"`
	PageDelayMillis     int    `yaml:"page_delay_millis"`
	CacheTTLSeconds     int    `yaml:"cache_ttl_seconds"`
	BreakerThreshold    int    `yaml:"breaker_threshold"`
	BreakerResetSeconds int    `yaml:"breaker_reset_seconds"`
}

// RateLimitConfig contains rate limiting settings for provider calls
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
	RequestsPerDay    int  `yaml:"requests_per_day"`
}

// NotificationsConfig contains AWS delivery settings
type NotificationsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Region      string `yaml:"region"`
	SenderEmail string `yaml:"sender_email"`
	SMSSenderID string `yaml:"sms_sender_id"`
}

// CleanupConfig contains retention purge settings
type CleanupConfig struct {
	RetentionDays    int  `yaml:"retention_days"`
	MaxDeletionCount int  `yaml:"max_deletion_count"`
	DryRun           bool `yaml:"dry_run"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			AllowOrigins: []string{"http://localhost:5176"},
		},
		Database: DatabaseConfig{
			Type: "postgres",
			MySQL: MySQLConfig{
				Host: "mysql", Port: 3306, User: "radar", Password: "radar", Database: "radar",
			},
			Postgres: PostgresConfig{
				Host: "db", Port: 5432, User: "radar", Password: "radar", Database: "radar", SSLMode: "disable",
			},
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			Address: "redis:6379",
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{
				Host:  "http://meilisearch:7700",
				Index: "alerts",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:                 true,
			DailyRunTime:            "03:00",
			Concurrency:             4,
			LockTTLSeconds:          3600,
			DispatchEnabled:         true,
			DispatchIntervalSeconds: 60,
			DispatchBatchSize:       50,
		},
		Tracker: TrackerConfig{
			FetchTimeoutSeconds: 15,
			Thresholds: MovementThresholds{
				ScoreDelta:  5,
				ReviewDelta: 10,
				PhotoDelta:  5,
				RatingDelta: 0.3,
			},
		},
		Alerts: AlertsConfig{
			CriticalScoreDelta:  10,
			CriticalReviewDelta: 20,
			MaxAttempts:         5,
		},
		Heatmap: HeatmapConfig{
			MinRadiusMeters:      500,
			MaxRadiusMeters:      2000,
			RefreshDays:          30,
			CardinalOffsetDeg:    0.005,
			DiagonalOffsetDeg:    0.004,
			ProbeCompetitorRange: 500,
			ProbePenalty:         10,
		},
		Provider: ProviderConfig{
			Type:                "http",
			TimeoutSeconds:      15,
			UserAgent:           "competitor-radar/1.0",
			ChromePath:          "/usr/bin/google-chrome",
			PageConcurrency:     2,
			PageDelayMillis:     1500,
			CacheTTLSeconds:     3600,
			BreakerThreshold:    5,
			BreakerResetSeconds: 300,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			RequestsPerHour:   2000,
			RequestsPerDay:    20000,
		},
		Notifications: NotificationsConfig{
			Region: "us-east-1",
		},
		Cleanup: CleanupConfig{
			RetentionDays:    180,
			MaxDeletionCount: 100,
			DryRun:           true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Spec returns the cron spec of the monitoring run
func (c *SchedulerConfig) Spec() (string, error) {
	if c.CronSpec != "" {
		return c.CronSpec, nil
	}
	return ParseDailyRunTime(c.DailyRunTime)
}

// ParseDailyRunTime converts "HH:MM" into a daily cron spec ("M H * * *")
func ParseDailyRunTime(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format: %q (expected HH:MM)", timeStr)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour: %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute: %q", parts[1])
	}

	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// GetLockTTL returns the run lock TTL as a duration
func (c *SchedulerConfig) GetLockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// GetDispatchInterval returns the notification dispatch interval
func (c *SchedulerConfig) GetDispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalSeconds) * time.Second
}

// GetFetchTimeout returns the per-competitor fetch timeout
func (c *TrackerConfig) GetFetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// GetRefreshInterval returns the minimum age of a heatmap before it is regenerated
func (c *HeatmapConfig) GetRefreshInterval() time.Duration {
	return time.Duration(c.RefreshDays) * 24 * time.Hour
}

// GetTimeout returns the provider HTTP timeout
func (c *ProviderConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetPageDelay returns the minimum spacing between page loads
func (c *ProviderConfig) GetPageDelay() time.Duration {
	return time.Duration(c.PageDelayMillis) * time.Millisecond
}

// GetCacheTTL returns the provider cache TTL
func (c *ProviderConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// GetBreakerReset returns the circuit breaker reset timeout
func (c *ProviderConfig) GetBreakerReset() time.Duration {
	return time.Duration(c.BreakerResetSeconds) * time.Second
}
