package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file and applies environment variable
// overrides (environment always wins). Path defaults to config.yaml or the
// CONFIG_PATH environment variable.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetEnv("CONFIG_PATH", "config.yaml")
	}

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// No file is fine; everything can come from the environment.
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	OverrideDBFromEnv(&cfg.DB)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideEncryptionFromEnv(&cfg.Encryption)
	OverrideExtractorFromEnv(&cfg.Extractor)
	OverrideLedgerFromEnv(&cfg.Ledger)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		DB:    DBConfig{Port: 5432},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Server: ServerConfig{
			MetricsPort: "9090",
		},
		Extractor: ExtractorConfig{
			BaseURL:         "https://generativelanguage.googleapis.com",
			Model:           "gemini-2.0-flash-lite",
			RateCacheTTLMin: 60,
		},
		Ledger: LedgerConfig{
			BaseURL: "http://localhost:8000",
		},
		Scheduler: SchedulerConfig{
			IntervalSeconds: 300,
		},
	}
}

// GetEnv returns an environment variable or a default when unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
