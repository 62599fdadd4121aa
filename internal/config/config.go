// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"EVAL_HOST" yaml:"host"`
	Port int    `envconfig:"EVAL_PORT" yaml:"port"`

	// Store configuration
	Store StoreConfig `yaml:"store"`

	// Scoring provider configuration
	Providers ProvidersConfig `yaml:"providers"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Document catalog configuration
	Catalog CatalogConfig `yaml:"catalog"`

	// Question generation configuration
	Generator GeneratorConfig `yaml:"generator"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Run execution configuration
	Eval EvalConfig `yaml:"eval"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path is the data directory. Empty means in-memory (tests only).
	Path string `envconfig:"EVAL_STORE_PATH" yaml:"path"`
}

// ProvidersConfig holds the scoring provider endpoints.
type ProvidersConfig struct {
	BM25URL  string `envconfig:"EVAL_BM25_URL" yaml:"bm25_url"`
	EmbedURL string `envconfig:"EVAL_EMBED_URL" yaml:"embed_url"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `envconfig:"QDRANT_HOST" yaml:"host"`
	Port       int    `envconfig:"QDRANT_PORT" yaml:"port"`
	APIKey     string `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	UseTLS     bool   `envconfig:"QDRANT_USE_TLS" yaml:"use_tls"`
	Collection string `envconfig:"QDRANT_COLLECTION" yaml:"collection"`
}

// CatalogConfig holds document catalog settings.
type CatalogConfig struct {
	URL           string `envconfig:"EVAL_CATALOG_URL" yaml:"url"`
	CacheType     string `envconfig:"EVAL_CATALOG_CACHE" yaml:"cache_type"`
	RedisAddr     string `envconfig:"EVAL_REDIS_ADDR" yaml:"redis_addr"`
	RedisPassword string `envconfig:"EVAL_REDIS_PASSWORD" yaml:"redis_password"`
	RedisDB       int    `envconfig:"EVAL_REDIS_DB" yaml:"redis_db"`
}

// GeneratorConfig holds question generation settings.
type GeneratorConfig struct {
	LLMURL      string  `envconfig:"EVAL_LLM_URL" yaml:"llm_url"`
	Model       string  `envconfig:"EVAL_LLM_MODEL" yaml:"model"`
	Temperature float64 `envconfig:"EVAL_LLM_TEMPERATURE" yaml:"temperature"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"EVAL_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"EVAL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"EVAL_KAFKA_GROUP" yaml:"kafka_group"`
}

// EvalConfig holds run execution settings.
type EvalConfig struct {
	// Concurrency is the number of questions evaluated in parallel per run.
	Concurrency int `envconfig:"EVAL_CONCURRENCY" yaml:"concurrency"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"EVAL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"EVAL_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit   int    `envconfig:"EVAL_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	CORSOrigins string `envconfig:"EVAL_CORS_ORIGINS" yaml:"cors_origins"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8090

	cfg.Store = StoreConfig{
		Path: "./data",
	}

	cfg.Providers = ProvidersConfig{
		BM25URL:  "http://localhost:8091",
		EmbedURL: "http://localhost:8092",
	}

	cfg.Qdrant = QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "published_rag_metadata",
	}

	cfg.Catalog = CatalogConfig{
		URL:       "http://localhost:8093",
		CacheType: "memory",
		RedisAddr: "localhost:6379",
	}

	cfg.Generator = GeneratorConfig{
		LLMURL: "http://localhost:8094",
		Model:  "gemini-2.0-flash",
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Eval = EvalConfig{
		Concurrency: 4,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		CORSOrigins: "*",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Qdrant validation
	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		errs = append(errs, "qdrant port must be between 1 and 65535")
	}

	// Catalog validation
	validCacheTypes := map[string]bool{"memory": true, "redis": true}
	if !validCacheTypes[c.Catalog.CacheType] {
		errs = append(errs, fmt.Sprintf("invalid catalog cache type: %s (must be memory or redis)", c.Catalog.CacheType))
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "kafka_brokers is required when bus type is kafka")
	}

	// Eval validation
	if c.Eval.Concurrency < 1 {
		errs = append(errs, "eval concurrency must be positive")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
