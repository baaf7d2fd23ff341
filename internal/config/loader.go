package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SALETRACK_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SALETRACK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "SALETRACK_CHAIN_RPC_URL")
	setStr(&cfg.Chain.FactoryAddress, "SALETRACK_CHAIN_FACTORY_ADDRESS")
	setUint64(&cfg.Chain.StartBlock, "SALETRACK_CHAIN_START_BLOCK")
	setUint64(&cfg.Chain.BlockTimeSeconds, "SALETRACK_CHAIN_BLOCK_TIME_SECONDS")

	// ── Indexer ──
	setDuration(&cfg.Indexer.PollInterval, "SALETRACK_INDEXER_POLL_INTERVAL")
	setUint64(&cfg.Indexer.MaxBlockRange, "SALETRACK_INDEXER_MAX_BLOCK_RANGE")
	setDuration(&cfg.Indexer.RefreshInterval, "SALETRACK_INDEXER_REFRESH_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SALETRACK_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SALETRACK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SALETRACK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SALETRACK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SALETRACK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SALETRACK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SALETRACK_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SALETRACK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SALETRACK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SALETRACK_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SALETRACK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SALETRACK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SALETRACK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SALETRACK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SALETRACK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SALETRACK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SALETRACK_REDIS_TLS_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SALETRACK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SALETRACK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SALETRACK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SALETRACK_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SALETRACK_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "SALETRACK_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SALETRACK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SALETRACK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SALETRACK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SALETRACK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SALETRACK_MODE")
	setStr(&cfg.LogLevel, "SALETRACK_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
