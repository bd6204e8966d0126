// Package config loads runtime configuration from a YAML file plus
// environment overrides, the same layering picogrid-legion-simulations
// uses for its simulation tooling (spf13/viper over a YAML default, env
// vars loaded via joho/godotenv for secrets that shouldn't live in the
// file at all).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full set of tunables the pipeline and server need. Every
// field has a spec-documented default; operators only need a config file
// (or env vars) for the values they want to override.
type Config struct {
	// HTTPAddr is the listen address for the ingest/query surface.
	HTTPAddr string `mapstructure:"http_addr"`

	// DBPath is the sqlite database file path.
	DBPath string `mapstructure:"db_path"`

	// JWTSigningKey signs and validates bearer tokens. Read from the
	// environment (AIRWATCH_JWT_SIGNING_KEY), never the YAML file.
	JWTSigningKey string `mapstructure:"-"`
	// TokenTTL is how long an issued bearer token remains valid.
	TokenTTL time.Duration `mapstructure:"token_ttl"`

	// PredictorHorizonSec / PredictorStrideSec configure the Trajectory
	// Predictor (spec.md §4.3 defaults: 180s / 30s).
	PredictorHorizonSec int `mapstructure:"predictor_horizon_sec"`
	PredictorStrideSec  int `mapstructure:"predictor_stride_sec"`

	// ThreatSpeedThresholdKnots / ThreatGraduatedSpeed configure the
	// Threat Analyzer's one operator-tunable signal (spec.md §4.4).
	ThreatSpeedThresholdKnots float64 `mapstructure:"threat_speed_threshold_knots"`
	ThreatGraduatedSpeed      bool    `mapstructure:"threat_graduated_speed"`

	// FlightRetention / AlertRetention are the Store's rolling retention
	// windows (spec.md §4.5 defaults: 24h / 30d).
	FlightRetention time.Duration `mapstructure:"flight_retention"`
	AlertRetention  time.Duration `mapstructure:"alert_retention"`
	RetentionSweepInterval time.Duration `mapstructure:"retention_sweep_interval"`

	// DedupeIdleWindow sets how often the idle-close sweep runs (every half
	// window). The Deduper's idle threshold itself is the fixed
	// dedupe.IdleWindow (120s) and does not follow this value.
	DedupeIdleWindow time.Duration `mapstructure:"dedupe_idle_window"`

	// BusBufferSize / BusGraceWindow configure the push fan-out (§4.6).
	BusBufferSize  int           `mapstructure:"bus_buffer_size"`
	BusGraceWindow time.Duration `mapstructure:"bus_grace_window"`

	// IngestDeadline bounds per-request pipeline latency (spec.md §5
	// default: 2s).
	IngestDeadline time.Duration `mapstructure:"ingest_deadline"`
}

// Default returns every tunable at its spec-documented default.
func Default() Config {
	return Config{
		HTTPAddr:                  ":8080",
		DBPath:                    "airwatch.db",
		TokenTTL:                  24 * time.Hour,
		PredictorHorizonSec:       180,
		PredictorStrideSec:        30,
		ThreatSpeedThresholdKnots: 500,
		ThreatGraduatedSpeed:      false,
		FlightRetention:           24 * time.Hour,
		AlertRetention:            30 * 24 * time.Hour,
		RetentionSweepInterval:    time.Minute,
		DedupeIdleWindow:          120 * time.Second,
		BusBufferSize:             64,
		BusGraceWindow:            30 * time.Second,
		IngestDeadline:            2 * time.Second,
	}
}

// Load reads .env (if present, ignored if absent), then an optional YAML
// config file at path, layering env var overrides on top, and returns the
// resolved Config. path may be empty, in which case only defaults and env
// vars apply.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("AIRWATCH")
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.JWTSigningKey = os.Getenv("AIRWATCH_JWT_SIGNING_KEY")
	if cfg.JWTSigningKey == "" {
		return cfg, fmt.Errorf("AIRWATCH_JWT_SIGNING_KEY must be set")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("http_addr", cfg.HTTPAddr)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("token_ttl", cfg.TokenTTL)
	v.SetDefault("predictor_horizon_sec", cfg.PredictorHorizonSec)
	v.SetDefault("predictor_stride_sec", cfg.PredictorStrideSec)
	v.SetDefault("threat_speed_threshold_knots", cfg.ThreatSpeedThresholdKnots)
	v.SetDefault("threat_graduated_speed", cfg.ThreatGraduatedSpeed)
	v.SetDefault("flight_retention", cfg.FlightRetention)
	v.SetDefault("alert_retention", cfg.AlertRetention)
	v.SetDefault("retention_sweep_interval", cfg.RetentionSweepInterval)
	v.SetDefault("dedupe_idle_window", cfg.DedupeIdleWindow)
	v.SetDefault("bus_buffer_size", cfg.BusBufferSize)
	v.SetDefault("bus_grace_window", cfg.BusGraceWindow)
	v.SetDefault("ingest_deadline", cfg.IngestDeadline)
}
