package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env files if present. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// ApplyEnvOverrides overwrites config values with environment variables when set
func (c *Config) ApplyEnvOverrides() {
	setString(&c.Database.Type, "DB_TYPE")
	setString(&c.Database.Postgres.Host, "DB_HOST")
	setInt(&c.Database.Postgres.Port, "DB_PORT")
	setString(&c.Database.Postgres.User, "DB_USER")
	setString(&c.Database.Postgres.Password, "DB_PASSWORD")
	setString(&c.Database.Postgres.Database, "DB_NAME")
	setString(&c.Database.MySQL.Host, "MYSQL_HOST")
	setInt(&c.Database.MySQL.Port, "MYSQL_PORT")
	setString(&c.Database.MySQL.User, "MYSQL_USER")
	setString(&c.Database.MySQL.Password, "MYSQL_PASSWORD")
	setString(&c.Database.MySQL.Database, "MYSQL_DATABASE")

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	if host := os.Getenv("MEILISEARCH_HOST"); host != "" {
		c.Search.Meilisearch.Host = host
		c.Search.Meilisearch.Enabled = true
	}
	setString(&c.Search.Meilisearch.APIKey, "MEILISEARCH_KEY")

	setString(&c.Provider.BaseURL, "PROVIDER_BASE_URL")
	setString(&c.Provider.APIKey, "PROVIDER_API_KEY")
	setString(&c.Notifications.Region, "AWS_REGION")
	setString(&c.Notifications.SenderEmail, "ALERT_SENDER_EMAIL")
	setInt(&c.Server.Port, "PORT")
	setString(&c.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
