package config

import (
	"os"
	"strconv"
)

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// RedisConfig holds job-queue backend settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MQConfig holds the RabbitMQ event-bus settings. An empty URL disables
// event publishing.
type MQConfig struct {
	URL string `yaml:"url"`
}

// ServerConfig holds the metrics listener settings.
type ServerConfig struct {
	MetricsPort string `yaml:"metrics_port"`
}

// EncryptionConfig holds the symmetric key protecting stored app passwords.
// The key is base64 and must decode to 32 bytes.
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// ExtractorConfig holds the LLM extraction settings.
type ExtractorConfig struct {
	BaseURL            string `yaml:"base_url"`
	Model              string `yaml:"model"`
	APIKey             string `yaml:"api_key"`
	ExchangeRateAPIKey string `yaml:"exchange_rate_api_key"`
	RateCacheTTLMin    int    `yaml:"rate_cache_ttl_minutes"`
}

// LedgerConfig holds the internal transaction API settings.
type LedgerConfig struct {
	BaseURL   string `yaml:"base_url"`
	JWTSecret string `yaml:"jwt_secret"`
}

// SchedulerConfig holds the scheduling tick settings.
type SchedulerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Config is the root configuration for the scheduler and worker binaries.
type Config struct {
	DB         DBConfig         `yaml:"db"`
	Redis      RedisConfig      `yaml:"redis"`
	MQ         MQConfig         `yaml:"mq"`
	Server     ServerConfig     `yaml:"server"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// OverrideDBFromEnv applies DB_* environment variables on top of the file
// configuration.
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideRedisFromEnv applies REDIS_* environment variables.
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideMQFromEnv applies MQ_URL.
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideEncryptionFromEnv applies ENCRYPTION_KEY.
func OverrideEncryptionFromEnv(cfg *EncryptionConfig) {
	if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
		cfg.Key = key
	}
}

// OverrideExtractorFromEnv applies GEMINI_API_KEY and EXCHANGE_RATE_API_KEY.
func OverrideExtractorFromEnv(cfg *ExtractorConfig) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if key := os.Getenv("EXCHANGE_RATE_API_KEY"); key != "" {
		cfg.ExchangeRateAPIKey = key
	}
}

// OverrideLedgerFromEnv applies LEDGER_API_URL and LEDGER_JWT_SECRET.
func OverrideLedgerFromEnv(cfg *LedgerConfig) {
	if url := os.Getenv("LEDGER_API_URL"); url != "" {
		cfg.BaseURL = url
	}
	if secret := os.Getenv("LEDGER_JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}
}
