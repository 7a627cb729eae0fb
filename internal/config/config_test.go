package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return *Defaults()
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errorString string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "valid sqlite backend config",
			mutate: func(c *Config) {
				c.DataBackend = "sqlite"
				c.SQLiteDBPath = "./test.db"
			},
			wantErr: false,
		},
		{
			name:        "invalid port - non-numeric",
			mutate:      func(c *Config) { c.Port = "abc" },
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range high",
			mutate:      func(c *Config) { c.Port = "70000" },
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name:        "negative rate limit",
			mutate:      func(c *Config) { c.RateLimitPerMinute = -1 },
			wantErr:     true,
			errorString: "invalid rate limit -1",
		},
		{
			name:        "invalid data backend",
			mutate:      func(c *Config) { c.DataBackend = "mongodb" },
			wantErr:     true,
			errorString: "invalid data backend 'mongodb'",
		},
		{
			name:        "postgres without dsn",
			mutate:      func(c *Config) { c.DataBackend = "postgres" },
			wantErr:     true,
			errorString: "POSTGRES_DSN is required",
		},
		{
			name:        "sheets cache without spreadsheet",
			mutate:      func(c *Config) { c.ForecastCache = "sheets" },
			wantErr:     true,
			errorString: "Google Spreadsheet ID is required",
		},
		{
			name:        "unknown cache mode",
			mutate:      func(c *Config) { c.ForecastCache = "redis" },
			wantErr:     true,
			errorString: "invalid forecast cache 'redis'",
		},
		{
			name:        "negative baseline depth",
			mutate:      func(c *Config) { c.BaselineDepth = -1 },
			wantErr:     true,
			errorString: "invalid baseline depth -1",
		},
		{
			name:    "zero baseline depth",
			mutate:  func(c *Config) { c.BaselineDepth = 0 },
			wantErr: false,
		},
		{
			name:        "empty ledger aliases",
			mutate:      func(c *Config) { c.Ledger.Fixed = nil },
			wantErr:     true,
			errorString: "fixed: no aliases",
		},
		{
			name:        "invalid AMQP URL scheme",
			mutate:      func(c *Config) { c.AMQPURL = "http://localhost:5672/" },
			wantErr:     true,
			errorString: "invalid AMQP URL scheme 'http'",
		},
		{
			name: "empty AMQP queue",
			mutate: func(c *Config) {
				c.AMQPQueue = ""
			},
			wantErr:     true,
			errorString: "AMQP queue name cannot be empty",
		},
		{
			name: "kafka brokers without topic",
			mutate: func(c *Config) {
				c.KafkaBrokers = []string{"localhost:9092"}
				c.KafkaTopic = ""
			},
			wantErr:     true,
			errorString: "Kafka topic cannot be empty",
		},
		{
			name:        "bad cron schedule",
			mutate:      func(c *Config) { c.SnapshotSchedule = "every day" },
			wantErr:     true,
			errorString: "invalid snapshot schedule 'every day'",
		},
		{
			name:        "bad log format",
			mutate:      func(c *Config) { c.LogFormat = "xml" },
			wantErr:     true,
			errorString: "invalid log format 'xml'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error but got none")
					return
				}
				if tt.errorString != "" && !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("Validate() error = %v, want error containing %v", err, tt.errorString)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Port = "x"
	cfg.DataBackend = "nope"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(err.Error(), "configuration validation failed:\n- ") || strings.Count(err.Error(), "\n- ") != 2 {
		t.Fatalf("unexpected error format: %q", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FINORA_CONFIG_FILE", "")
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("FORECAST_BASELINE_DEPTH", "3")
	t.Setenv("FORECAST_TIMEOUT", "2s")
	t.Setenv("LEDGER_FIXED_ALIASES", "fixed_v2, fixed_expenses")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.DataBackend != "sqlite" || cfg.BaselineDepth != 3 || cfg.ForecastTimeout != 2*time.Second {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if got := cfg.Sources().Fixed.Aliases; len(got) != 2 || got[0] != "fixed_v2" {
		t.Fatalf("fixed aliases = %v", got)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.RateLimitPerMinute != 0 {
		t.Fatalf("rate limit = %d, want 0", cfg.RateLimitPerMinute)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finora.toml")
	content := `
[server]
port = "7000"

[forecast]
baseline_depth = 0
timeout = "3s"
cache = "none"

[ledger]
recurring = ["recurring_incomes"]

[log]
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FINORA_CONFIG_FILE", path)
	t.Setenv("PORT", "7001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7001" {
		t.Errorf("env should win over file, port = %s", cfg.Port)
	}
	if cfg.BaselineDepth != 0 || cfg.ForecastTimeout != 3*time.Second || cfg.ForecastCache != "none" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if len(cfg.Ledger.Recurring) != 1 || len(cfg.Ledger.Fixed) != 2 {
		t.Errorf("ledger aliases = %+v", cfg.Ledger)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("log format = %s", cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[forecast]\ntimeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FINORA_CONFIG_FILE", path)
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "forecast.timeout") {
		t.Fatalf("expected timeout parse error, got %v", err)
	}

	t.Setenv("FINORA_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
