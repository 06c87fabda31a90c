package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/paramed/reconciler/internal/logging"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Store     StoreConfig     `mapstructure:"store"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       logging.Config  `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// EngineConfig holds the reconciliation engine knobs
type EngineConfig struct {
	Mode                string        `mapstructure:"mode"`
	Scoring             string        `mapstructure:"scoring"`
	Strategy            string        `mapstructure:"strategy"`
	K                   int           `mapstructure:"k"`
	AcceptanceThreshold float64       `mapstructure:"acceptance_threshold"`
	ClusteringThreshold float64       `mapstructure:"clustering_threshold"`
	Weights             WeightsConfig `mapstructure:"weights"`
	PartitionKeys       []string      `mapstructure:"partition_keys"`
	PriceGapLimit       float64       `mapstructure:"price_gap_limit"`
	ReportUnmatched     bool          `mapstructure:"report_unmatched"`
	Workers             int           `mapstructure:"workers"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
	EmbeddingText       string        `mapstructure:"embedding_text"`
	SourceCatalog       string        `mapstructure:"source_catalog"`
	TargetCatalog       string        `mapstructure:"target_catalog"`
}

// WeightsConfig holds the composite score weights
type WeightsConfig struct {
	Semantic float64 `mapstructure:"semantic"`
	Fuzzy    float64 `mapstructure:"fuzzy"`
	Price    float64 `mapstructure:"price"`
	Size     float64 `mapstructure:"size"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider      string        `mapstructure:"provider"` // "http" or "cohere"
	Model         string        `mapstructure:"model"`
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	MaxRetries    int           `mapstructure:"max_retries"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// StoreConfig holds the SQLite store location
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// KafkaConfig holds result publication settings
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from an explicit file, or from the default
// search paths when file is empty
func LoadFrom(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/reconciler/")
	}

	// RECONCILER_ENGINE_ACCEPTANCE_THRESHOLD -> engine.acceptance_threshold
	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; env vars and defaults are enough
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values. Every key needs a default so
// AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Engine defaults: multi-signal bipartite matching
	v.SetDefault("engine.mode", "bipartite")
	v.SetDefault("engine.scoring", "multi_signal")
	v.SetDefault("engine.strategy", "first_qualifying")
	v.SetDefault("engine.k", 0)
	v.SetDefault("engine.acceptance_threshold", 0.0)
	v.SetDefault("engine.clustering_threshold", 0.80)
	v.SetDefault("engine.weights.semantic", 0.5)
	v.SetDefault("engine.weights.fuzzy", 0.25)
	v.SetDefault("engine.weights.price", 0.2)
	v.SetDefault("engine.weights.size", 0.05)
	v.SetDefault("engine.partition_keys", []string{"brand", "category", "size"})
	v.SetDefault("engine.price_gap_limit", 0.4)
	v.SetDefault("engine.report_unmatched", false)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.call_timeout", "60s")
	v.SetDefault("engine.embedding_text", "canonical")
	v.SetDefault("engine.source_catalog", "")
	v.SetDefault("engine.target_catalog", "")

	// Embedding defaults
	v.SetDefault("embedding.provider", "http")
	v.SetDefault("embedding.model", "paraphrase-multilingual-MiniLM-L12-v2")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "http://localhost:8081")
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.rate_per_second", 0.0)
	v.SetDefault("embedding.burst", 10)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.batch_size", 64)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "168h") // 7 days

	v.SetDefault("store.path", "reconciler.db")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "reconciler.results")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// validate checks infrastructure settings; engine settings are validated by the engine
func validate(config *Config) error {
	switch config.Embedding.Provider {
	case "http":
		if config.Embedding.BaseURL == "" {
			return fmt.Errorf("embedding base URL is required for the http provider (set RECONCILER_EMBEDDING_BASE_URL)")
		}
	case "cohere":
		if config.Embedding.APIKey == "" {
			return fmt.Errorf("embedding API key is required for the cohere provider (set RECONCILER_EMBEDDING_API_KEY)")
		}
	default:
		return fmt.Errorf("embedding provider must be 'http' or 'cohere', got: %s", config.Embedding.Provider)
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if config.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}

	if config.Kafka.Enabled && (len(config.Kafka.Brokers) == 0 || config.Kafka.Topic == "") {
		return fmt.Errorf("Kafka brokers and topic are required when Kafka is enabled")
	}

	return nil
}

// LoadEnvFile loads KEY=value pairs from a .env file into the process
// environment. A missing file is not an error and existing variables win.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}
