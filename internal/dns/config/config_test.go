package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %q", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel=info, got %q", cfg.LogLevel)
	}
	if cfg.Port != 53 {
		t.Errorf("expected Port=53, got %d", cfg.Port)
	}
	if cfg.CacheMaxEntries != 50_000 {
		t.Errorf("expected CacheMaxEntries=50000, got %d", cfg.CacheMaxEntries)
	}
	if cfg.CacheMaxTTLSeconds != -1 {
		t.Errorf("expected CacheMaxTTLSeconds=-1, got %d", cfg.CacheMaxTTLSeconds)
	}
	if cfg.CacheMaxNCacheSeconds != 3600 {
		t.Errorf("expected CacheMaxNCacheSeconds=3600, got %d", cfg.CacheMaxNCacheSeconds)
	}
	if cfg.Address != "" {
		t.Errorf("expected Address to default empty, got %q", cfg.Address)
	}
}

func TestLoad_ValidOverrides(t *testing.T) {
	t.Setenv("DNS_ENV", "dev")
	t.Setenv("DNS_LOG_LEVEL", "debug")
	t.Setenv("DNS_PORT", "9953")
	t.Setenv("DNS_CACHE_MAX_ENTRIES", "2000")
	t.Setenv("DNS_ADDRESS", "127.0.0.1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %q", cfg.Env)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel=debug, got %q", cfg.LogLevel)
	}
	if cfg.Port != 9953 {
		t.Errorf("expected Port=9953, got %d", cfg.Port)
	}
	if cfg.CacheMaxEntries != 2000 {
		t.Errorf("expected CacheMaxEntries=2000, got %d", cfg.CacheMaxEntries)
	}
	if cfg.Address != "127.0.0.1" {
		t.Errorf("expected Address=127.0.0.1, got %q", cfg.Address)
	}
}

func TestLoad_WhenKoanfDefaultLoadFails(t *testing.T) {
	orig := defaultLoader
	defaultLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { defaultLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatal("expected error when loading defaults, got nil")
	}
}

func TestLoad_WhenKoanfEnvLoadFails(t *testing.T) {
	orig := envLoader
	envLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { envLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatal("expected error when loading env, got nil")
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("DNS_ENV", "staging")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid DNS_ENV, got nil")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("DNS_LOG_LEVEL", "trace")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid LOG_LEVEL, got nil")
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("DNS_PORT", "99999")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid PORT, got nil")
	}
}

func TestLoad_PortNaN(t *testing.T) {
	t.Setenv("DNS_PORT", "not_a_number")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for non-numeric PORT, got nil")
	}
}

func TestLoad_InvalidCacheMaxEntries(t *testing.T) {
	t.Setenv("DNS_CACHE_MAX_ENTRIES", "0")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for CacheMaxEntries=0, got nil")
	}
}

func TestLoad_InvalidAddress(t *testing.T) {
	t.Setenv("DNS_ADDRESS", "not-an-ip")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid Address, got nil")
	}
}

func TestDefaultLoader_LoadsDefaults(t *testing.T) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		t.Fatalf("defaultLoader returned error: %v", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if cfg.Env != DEFAULT_APP_CONFIG.Env {
		t.Errorf("expected Env=%q, got %q", DEFAULT_APP_CONFIG.Env, cfg.Env)
	}
	if cfg.Port != DEFAULT_APP_CONFIG.Port {
		t.Errorf("expected Port=%d, got %d", DEFAULT_APP_CONFIG.Port, cfg.Port)
	}
	if cfg.CacheMaxEntries != DEFAULT_APP_CONFIG.CacheMaxEntries {
		t.Errorf("expected CacheMaxEntries=%d, got %d", DEFAULT_APP_CONFIG.CacheMaxEntries, cfg.CacheMaxEntries)
	}
}

func TestDefaultLoader_InvalidDefault_ValidationFails(t *testing.T) {
	orig := DEFAULT_APP_CONFIG
	defer func() { DEFAULT_APP_CONFIG = orig }()

	DEFAULT_APP_CONFIG = AppConfig{
		Env:             "bogus",
		LogLevel:        "info",
		Port:            53,
		CacheMaxEntries: 1000,
	}

	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		t.Fatalf("defaultLoader returned error: %v", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err == nil {
		t.Fatal("expected validation error for invalid default Env, got nil")
	}
}
