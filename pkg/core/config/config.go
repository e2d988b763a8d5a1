// Package config resolves process configuration once at startup and hands
// out a typed, immutable Config — no package-level globals (Design Notes
// §9: "module-level globals ... become explicitly passed context objects
// created in main").
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Warehouse holds the analytics warehouse connection configuration.
type Warehouse struct {
	DSN            string
	MaxConcurrency int64
	QueryTimeout   time.Duration
}

// Census holds the external demographic service configuration.
type Census struct {
	APIKey         string
	BaseURL        string
	MaxConcurrency int64
	RatePerSecond  float64
	VintageTimeout time.Duration
}

// AI holds the language model provider configuration.
type AI struct {
	PrimaryAPIKey  string
	FallbackAPIKey string
	PrimaryModel   string
	FallbackModel  string
	MaxConcurrency int64
	Temperature    float32
	MaxTokens      int32
	SectionTimeout time.Duration
}

// Jobs holds the per-job orchestration limits.
type Jobs struct {
	WallClock time.Duration
	ReportTTL time.Duration
}

// Config is the engine's fully-resolved process configuration.
type Config struct {
	Env         string
	BindAddr    string
	Warehouse   Warehouse
	Census      Census
	AI          AI
	Jobs        Jobs
	CensusReady bool
	AIReady     bool
}

// Load resolves configuration from the environment. A .env file is loaded
// first if present (non-fatal if absent — production environments inject
// real env vars directly). Absence of warehouse credentials is fatal;
// absence of census or AI credentials degrades those features and is
// reported via CensusReady/AIReady so main can log a warning.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dsn := os.Getenv("JUSTDATA_WAREHOUSE_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("JUSTDATA_WAREHOUSE_DSN is required")
	}

	cfg := &Config{
		Env:      envOr("JUSTDATA_ENV", "development"),
		BindAddr: envOr("JUSTDATA_BIND_ADDR", ":8080"),
		Warehouse: Warehouse{
			DSN:            dsn,
			MaxConcurrency: envInt64("JUSTDATA_WAREHOUSE_CONCURRENCY", 8),
			QueryTimeout:   envDuration("JUSTDATA_WAREHOUSE_TIMEOUT", 10*time.Minute),
		},
		Census: Census{
			APIKey:         os.Getenv("JUSTDATA_CENSUS_API_KEY"),
			BaseURL:        envOr("JUSTDATA_CENSUS_BASE_URL", "https://api.census.gov/data"),
			MaxConcurrency: envInt64("JUSTDATA_CENSUS_CONCURRENCY", 4),
			RatePerSecond:  envFloat("JUSTDATA_CENSUS_RATE", 10.0),
			VintageTimeout: envDuration("JUSTDATA_CENSUS_TIMEOUT", 2*time.Minute),
		},
		AI: AI{
			PrimaryAPIKey:  os.Getenv("JUSTDATA_AI_PRIMARY_API_KEY"),
			FallbackAPIKey: os.Getenv("JUSTDATA_AI_FALLBACK_API_KEY"),
			PrimaryModel:   envOr("JUSTDATA_AI_PRIMARY_MODEL", "gemini-2.0-flash-exp"),
			FallbackModel:  envOr("JUSTDATA_AI_FALLBACK_MODEL", "gemini-1.5-flash"),
			MaxConcurrency: envInt64("JUSTDATA_AI_CONCURRENCY", 4),
			Temperature:    float32(envFloat("JUSTDATA_AI_TEMPERATURE", 0.2)),
			MaxTokens:      int32(envInt64("JUSTDATA_AI_MAX_TOKENS", 1024)),
			SectionTimeout: envDuration("JUSTDATA_AI_SECTION_TIMEOUT", 90*time.Second),
		},
		Jobs: Jobs{
			WallClock: envDuration("JUSTDATA_JOB_WALL_CLOCK", 20*time.Minute),
			ReportTTL: envDuration("JUSTDATA_REPORT_TTL", 24*time.Hour),
		},
	}
	cfg.CensusReady = cfg.Census.APIKey != ""
	cfg.AIReady = cfg.AI.PrimaryAPIKey != "" || cfg.AI.FallbackAPIKey != ""

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
