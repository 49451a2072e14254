package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds operational tuning loaded from DNS_-prefixed environment
// variables. Zone/secondary/key/cache-file wiring lives in jnamed.conf
// (server/jconf), not here.
type AppConfig struct {
	// CacheMaxEntries bounds the cache's strict-LRU eviction (spec §3.4).
	CacheMaxEntries uint `koanf:"cache_max_entries" validate:"required,gte=1"`

	// CacheMaxTTLSeconds clamps the TTL of positive entries; -1 means unlimited.
	CacheMaxTTLSeconds int64 `koanf:"cache_max_ttl_seconds"`

	// CacheMaxNCacheSeconds clamps the TTL of negative (NXDOMAIN/NXRRSET) entries.
	CacheMaxNCacheSeconds int64 `koanf:"cache_max_ncache_seconds"`

	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Port is a UDP/TCP port setting. cmd/jnamed does not read it: it binds
	// to the ports listed in jnamed.conf.
	Port int `koanf:"port" validate:"required,gte=1,lt=65535"`

	// Address is a local IP setting ("" means all interfaces). cmd/jnamed
	// does not read it: it binds to the addresses listed in jnamed.conf.
	Address string `koanf:"address" validate:"omitempty,ip"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	CacheMaxEntries:       50_000,
	CacheMaxTTLSeconds:    -1,
	CacheMaxNCacheSeconds: 3600,
	Env:                   "prod",
	LogLevel:              "info",
	Port:                  53,
	Address:               "",
}

// envLoader is a function that loads environment variables with the prefix "DNS_".
// It transforms the keys to lowercase and removes the prefix.
// and can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	// Load environment variables with prefix "DNS_".
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "DNS_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "DNS_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads default configuration values into the provided Koanf instance
// using the structs provider and the DEFAULT_APP_CONFIG struct. It returns an error
// if loading fails.
var defaultLoader = func(k *koanf.Koanf) error {
	// Load default values using structs provider.
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	// Load default values using structs provider.
	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	// Load environment variables with prefix "DNS_", using koanf/providers/env/v2 and Opt pattern.
	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	// Unmarshal the loaded configuration into AppConfig struct.
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// Validate the configuration.
	validate := validator.New(validator.WithRequiredStructEnabled())

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
