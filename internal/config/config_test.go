package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://admin.example.com/api" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.TenantID != "acme" {
		t.Errorf("API.TenantID = %q, want acme", cfg.API.TenantID)
	}
	if cfg.API.TenantHeader != "X-Tenant-Id" {
		t.Errorf("API.TenantHeader = %q, want default X-Tenant-Id", cfg.API.TenantHeader)
	}
	if cfg.API.Timeout != 10*time.Second {
		t.Errorf("API.Timeout = %v, want 10s", cfg.API.Timeout)
	}
	if cfg.API.CircuitBreaker.FailureThreshold != 3 {
		t.Errorf("CircuitBreaker.FailureThreshold = %d, want 3", cfg.API.CircuitBreaker.FailureThreshold)
	}
	if cfg.Cache.StaleTime != 2*time.Minute {
		t.Errorf("Cache.StaleTime = %v, want 2m", cfg.Cache.StaleTime)
	}
	if cfg.Cache.GCTime != 10*time.Minute {
		t.Errorf("Cache.GCTime = %v, want default 10m", cfg.Cache.GCTime)
	}
	if len(cfg.Definitions.Directories) != 1 {
		t.Errorf("Definitions.Directories = %v, want 1 entry", cfg.Definitions.Directories)
	}
	if cfg.UI.PageSize != 25 {
		t.Errorf("UI.PageSize = %d, want 25", cfg.UI.PageSize)
	}
	if cfg.UI.Output != "json" {
		t.Errorf("UI.Output = %q, want json", cfg.UI.Output)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Observability.LogLevel)
	}
}

func TestLoad_emptyPath_usesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.API.TenantID != "default" {
		t.Errorf("API.TenantID = %q, want default", cfg.API.TenantID)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_malformed(t *testing.T) {
	_, err := Load("testdata/malformed.yaml")
	if err == nil {
		t.Fatal("Load() with malformed YAML should return error")
	}
}

func TestLoad_missing_base_url(t *testing.T) {
	_, err := Load("testdata/missing_base_url.yaml")
	if err == nil {
		t.Fatal("Load() with empty base_url should return error")
	}
	if !strings.Contains(err.Error(), "api.base_url is required") {
		t.Errorf("error = %v, want mention of api.base_url", err)
	}
}

func TestLoad_invalid_output(t *testing.T) {
	_, err := Load("testdata/invalid_output.yaml")
	if err == nil {
		t.Fatal("Load() with output html should return error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Cache.StaleTime != 5*time.Minute {
		t.Errorf("default Cache.StaleTime = %v, want 5m", cfg.Cache.StaleTime)
	}
	if cfg.API.TenantID != "default" {
		t.Errorf("default API.TenantID = %q, want default", cfg.API.TenantID)
	}
	if cfg.Auth.RefreshPath != "/auth/refresh" {
		t.Errorf("default Auth.RefreshPath = %q", cfg.Auth.RefreshPath)
	}
	if cfg.UI.PageSize != 10 {
		t.Errorf("default UI.PageSize = %d, want 10", cfg.UI.PageSize)
	}
	if cfg.DevBackend.ReplayTTL != 24*time.Hour {
		t.Errorf("default DevBackend.ReplayTTL = %v, want 24h", cfg.DevBackend.ReplayTTL)
	}
	if cfg.DevBackend.RedisAddr != "" {
		t.Errorf("default DevBackend.RedisAddr = %q, want empty (in-memory replays)", cfg.DevBackend.RedisAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults().Validate() error = %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONSOLE_API_BASE_URL", "https://env.example.com/api")
	t.Setenv("CONSOLE_API_TENANT_ID", "env-tenant")
	t.Setenv("CONSOLE_CACHE_STALE_TIME", "30s")
	t.Setenv("CONSOLE_UI_PAGE_SIZE", "50")
	t.Setenv("CONSOLE_OBSERVABILITY_LOG_LEVEL", "error")
	t.Setenv("CONSOLE_DEV_BACKEND_REDIS_ADDR", "127.0.0.1:6379")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://env.example.com/api" {
		t.Errorf("API.BaseURL = %q, want env override", cfg.API.BaseURL)
	}
	if cfg.API.TenantID != "env-tenant" {
		t.Errorf("API.TenantID = %q, want env override", cfg.API.TenantID)
	}
	if cfg.Cache.StaleTime != 30*time.Second {
		t.Errorf("Cache.StaleTime = %v, want 30s (env override)", cfg.Cache.StaleTime)
	}
	if cfg.UI.PageSize != 50 {
		t.Errorf("UI.PageSize = %d, want 50 (env override)", cfg.UI.PageSize)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
	if cfg.DevBackend.RedisAddr != "127.0.0.1:6379" {
		t.Errorf("DevBackend.RedisAddr = %q, want env override", cfg.DevBackend.RedisAddr)
	}
}

func TestValidate_collectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.API.BaseURL = "ftp://nope"
	cfg.UI.PageSize = 0
	cfg.Cache.MaxEntries = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should return error")
	}
	for _, want := range []string{"api.base_url", "ui.page_size", "cache.max_entries"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
