package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// applyEnv overlays MEMORIA_* variables (and a few conventional names) on c.
func (c *Config) applyEnv() {
	envStr("MEMORIA_DB_BACKEND", &c.Database.Backend)
	envStr("DATABASE_URL", &c.Database.PostgresDSN)
	envStr("MEMORIA_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("MEMORIA_SQLITE_PATH", &c.Database.SQLitePath)
	envBool("MEMORIA_AUTO_MIGRATE", &c.Database.AutoMigrate)

	envStr("MEMORIA_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	envStr("MEMORIA_EMBEDDING_MODEL", &c.Embedding.Model)
	envInt("MEMORIA_EMBEDDING_DIMENSIONS", &c.Embedding.Dimensions)
	envStr("OPENAI_API_KEY", &c.Embedding.APIKey)
	envStr("MEMORIA_OPENAI_API_KEY", &c.Embedding.APIKey)
	envStr("MEMORIA_OPENAI_BASE_URL", &c.Embedding.APIBase)
	envStr("MEMORIA_REDIS_URL", &c.Embedding.RedisURL)

	envStr("MEMORIA_TRANSPORT", &c.Server.Transport)
	envStr("MEMORIA_LISTEN", &c.Server.Listen)
	envStr("MEMORIA_AUTH_TOKEN", &c.Server.AuthToken)
	envInt("MEMORIA_RATE_LIMIT_RPM", &c.Server.RateLimitRPM)

	envStr("MEMORIA_OTEL_ENDPOINT", &c.Telemetry.Endpoint)
	if c.Telemetry.Endpoint != "" && os.Getenv("MEMORIA_OTEL_ENDPOINT") != "" {
		c.Telemetry.Enabled = true
	}

	envStr("MEMORIA_LOG_LEVEL", &c.Log.Level)
	envStr("MEMORIA_LOG_FORMAT", &c.Log.Format)
}

func envStr(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer env var", "key", key)
		return
	}
	*dst = n
}

func envBool(key string, dst *bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring invalid boolean env var", "key", key)
		return
	}
	*dst = b
}
