package config

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"JUSTDATA_WAREHOUSE_DSN", "JUSTDATA_ENV", "JUSTDATA_BIND_ADDR",
		"JUSTDATA_WAREHOUSE_CONCURRENCY", "JUSTDATA_CENSUS_API_KEY",
		"JUSTDATA_AI_PRIMARY_API_KEY", "JUSTDATA_AI_FALLBACK_API_KEY",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresWarehouseDSN(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Error("expected an error when JUSTDATA_WAREHOUSE_DSN is unset")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JUSTDATA_WAREHOUSE_DSN", "postgres://localhost/justdata")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Env != "development" {
		t.Errorf("env = %q, want development", cfg.Env)
	}
	if cfg.BindAddr != ":8080" {
		t.Errorf("bind addr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.Warehouse.MaxConcurrency != 8 {
		t.Errorf("warehouse concurrency = %d, want 8", cfg.Warehouse.MaxConcurrency)
	}
	if cfg.CensusReady {
		t.Error("expected CensusReady=false without a census API key")
	}
	if cfg.AIReady {
		t.Error("expected AIReady=false without any AI API key")
	}
}

func TestLoadMarksCensusAndAIReadyWhenKeysPresent(t *testing.T) {
	clearEnv(t)
	t.Setenv("JUSTDATA_WAREHOUSE_DSN", "postgres://localhost/justdata")
	t.Setenv("JUSTDATA_CENSUS_API_KEY", "census-key")
	t.Setenv("JUSTDATA_AI_PRIMARY_API_KEY", "primary-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.CensusReady {
		t.Error("expected CensusReady=true with a census API key set")
	}
	if !cfg.AIReady {
		t.Error("expected AIReady=true with a primary AI API key set")
	}
}

func TestLoadReadsOverriddenEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("JUSTDATA_WAREHOUSE_DSN", "postgres://localhost/justdata")
	t.Setenv("JUSTDATA_BIND_ADDR", ":9090")
	t.Setenv("JUSTDATA_WAREHOUSE_CONCURRENCY", "16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Errorf("bind addr = %q, want :9090", cfg.BindAddr)
	}
	if cfg.Warehouse.MaxConcurrency != 16 {
		t.Errorf("warehouse concurrency = %d, want 16", cfg.Warehouse.MaxConcurrency)
	}
}
