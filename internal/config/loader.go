package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (optional; empty path or a
// missing file falls back to defaults), merges it on top of the built-in
// defaults, then applies GARD_* environment overrides. Callers should invoke
// Config.Validate() on the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from GARD_* environment
// variables when set, so operators can inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "GARD_LOG_LEVEL")

	setStr(&cfg.Postgres.DSN, "GARD_POSTGRES_DSN")
	setInt(&cfg.Postgres.MaxOpenConns, "GARD_POSTGRES_MAX_OPEN_CONNS")
	setInt(&cfg.Postgres.MaxIdleConns, "GARD_POSTGRES_MAX_IDLE_CONNS")
	setStr(&cfg.Postgres.MigrationsDir, "GARD_MIGRATIONS_DIR")

	setStr(&cfg.NATS.URL, "GARD_NATS_URL")

	setBool(&cfg.Redis.Enabled, "GARD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "GARD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GARD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GARD_REDIS_DB")

	setInt(&cfg.Core.PersistChanSize, "GARD_PERSIST_CHAN_SIZE")
	setInt(&cfg.Core.ProjectionChanSize, "GARD_PROJECTION_CHAN_SIZE")
	setInt(&cfg.Core.PersistBatchSize, "GARD_PERSIST_BATCH_SIZE")
	setDuration(&cfg.Core.PersistFlushTimeout, "GARD_PERSIST_FLUSH_TIMEOUT")
	setInt64(&cfg.Core.SnapshotInterval, "GARD_SNAPSHOT_INTERVAL")
	setInt(&cfg.Core.IdempotencyLRUCapacity, "GARD_IDEMPOTENCY_LRU_CAPACITY")

	setStr(&cfg.Server.GRPCAddr, "GARD_GRPC_ADDR")
	setStr(&cfg.Server.HTTPAddr, "GARD_HTTP_ADDR")
	setStr(&cfg.Server.MetricsAddr, "GARD_METRICS_ADDR")

	setUint64(&cfg.Protocol.OracleAppID, "GARD_ORACLE_APP_ID")
	setUint64(&cfg.Protocol.OpenFeeAppID, "GARD_OPEN_FEE_APP_ID")
	setUint64(&cfg.Protocol.CloseFeeAppID, "GARD_CLOSE_FEE_APP_ID")
	setUint64(&cfg.Protocol.ManagerAppID, "GARD_MANAGER_APP_ID")
	setUint64(&cfg.Protocol.StableAssetID, "GARD_STABLE_ASSET_ID")
	setUint64(&cfg.Protocol.ValidatorAppID, "GARD_VALIDATOR_APP_ID")
	setStr(&cfg.Protocol.ReserveAddr, "GARD_RESERVE_ADDR")
	setStr(&cfg.Protocol.FeeSinkAddr, "GARD_FEE_SINK_ADDR")
	setInt64(&cfg.Protocol.ReserveSeedSupply, "GARD_RESERVE_SEED_SUPPLY")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
