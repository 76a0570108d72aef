package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"GardLedger/internal/config"
)

func validProtocol() string {
	return `
[protocol]
oracle_app_id = 600
open_fee_app_id = 700
close_fee_app_id = 701
manager_app_id = 800
stable_asset_id = 2
validator_app_id = 500
reserve_addr = "` + strings.Repeat("cc", 32) + `"
fee_sink_addr = "` + strings.Repeat("fe", 32) + `"
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("log level: %s", cfg.LogLevel)
	}
	if cfg.Core.PersistBatchSize != 50 {
		t.Errorf("persist batch size: %d", cfg.Core.PersistBatchSize)
	}
	if cfg.Core.PersistFlushTimeout.Duration != 10*time.Millisecond {
		t.Errorf("flush timeout: %v", cfg.Core.PersistFlushTimeout.Duration)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("http addr: %s", cfg.Server.HTTPAddr)
	}
}

func TestLoad_MissingFileFallsBack(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url: %s", cfg.NATS.URL)
	}
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[core]
persist_batch_size = 100
persist_flush_timeout = "25ms"
`+validProtocol())

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level: %s", cfg.LogLevel)
	}
	if cfg.Core.PersistBatchSize != 100 {
		t.Errorf("persist batch size: %d", cfg.Core.PersistBatchSize)
	}
	if cfg.Core.PersistFlushTimeout.Duration != 25*time.Millisecond {
		t.Errorf("flush timeout: %v", cfg.Core.PersistFlushTimeout.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.MaxOpenConns != 20 {
		t.Errorf("max open conns: %d", cfg.Postgres.MaxOpenConns)
	}
}

func TestLoad_EnvOverridesTOML(t *testing.T) {
	path := writeConfig(t, `log_level = "debug"`+validProtocol())

	t.Setenv("GARD_LOG_LEVEL", "warn")
	t.Setenv("GARD_NATS_URL", "nats://broker:4222")
	t.Setenv("GARD_ORACLE_APP_ID", "601")
	t.Setenv("GARD_REDIS_ENABLED", "true")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level: %s", cfg.LogLevel)
	}
	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("nats url: %s", cfg.NATS.URL)
	}
	if cfg.Protocol.OracleAppID != 601 {
		t.Errorf("oracle app id: %d", cfg.Protocol.OracleAppID)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis not enabled")
	}
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, validProtocol())
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	if cfg.ReserveAddress().String() != strings.Repeat("cc", 32) {
		t.Errorf("reserve address: %s", cfg.ReserveAddress())
	}
	if cfg.FeeSinkAddress().String() != strings.Repeat("fe", 32) {
		t.Errorf("fee sink address: %s", cfg.FeeSinkAddress())
	}
}

func TestValidate_Failures(t *testing.T) {
	base := func(t *testing.T) *config.Config {
		cfg, err := config.Load(writeConfig(t, validProtocol()))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		return cfg
	}

	t.Run("missing dsn", func(t *testing.T) {
		cfg := base(t)
		cfg.Postgres.DSN = ""
		if err := cfg.Validate(); err == nil {
			t.Error("accepted")
		}
	})

	t.Run("missing validator app", func(t *testing.T) {
		cfg := base(t)
		cfg.Protocol.ValidatorAppID = 0
		if err := cfg.Validate(); err == nil {
			t.Error("accepted")
		}
	})

	t.Run("bad reserve address", func(t *testing.T) {
		cfg := base(t)
		cfg.Protocol.ReserveAddr = "abcd"
		if err := cfg.Validate(); err == nil {
			t.Error("accepted")
		}
	})

	t.Run("non-positive batch size", func(t *testing.T) {
		cfg := base(t)
		cfg.Core.PersistBatchSize = 0
		if err := cfg.Validate(); err == nil {
			t.Error("accepted")
		}
	})
}
