// Package config loads and validates service configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Search, Cache, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// SearchConfig controls query validation bounds, fan-out behaviour, and
// ranking weights for the moment search engine.
type SearchConfig struct {
	MaxResults            int            `yaml:"maxResults"`
	DefaultLimit          int            `yaml:"defaultLimit"`
	Timeout               time.Duration  `yaml:"timeout"`
	EnableParallelSearch  bool           `yaml:"enableParallelSearch"`
	MaxConcurrentSearches int            `yaml:"maxConcurrentSearches"`
	MinTermLength         int            `yaml:"minTermLength"`
	MaxTermLength         int            `yaml:"maxTermLength"`
	MaxHashtags           int            `yaml:"maxHashtags"`
	MaxRadiusKm           float64        `yaml:"maxRadiusKm"`
	SuggestionCount       int            `yaml:"suggestionCount"`
	RankingWeights        RankingWeights `yaml:"rankingWeights"`
	DefaultFilters        DefaultFilters `yaml:"defaultFilters"`
}

// RankingWeights are the score-fusion weights per relevance dimension.
// They must sum to 1.0.
type RankingWeights struct {
	Textual    float64 `yaml:"textual"`
	Engagement float64 `yaml:"engagement"`
	Recency    float64 `yaml:"recency"`
	Quality    float64 `yaml:"quality"`
	Proximity  float64 `yaml:"proximity"`
}

// Sum returns the total of all fusion weights.
func (w RankingWeights) Sum() float64 {
	return w.Textual + w.Engagement + w.Recency + w.Quality + w.Proximity
}

// DefaultFilters are the platform defaults merged under caller filters.
type DefaultFilters struct {
	Statuses     []string      `yaml:"statuses"`
	Visibilities []string      `yaml:"visibilities"`
	MaxAge       time.Duration `yaml:"maxAge"`
}

// CacheConfig controls the search result cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Backend       string        `yaml:"backend"` // "memory" or "redis"
	Capacity      int           `yaml:"capacity"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents    string `yaml:"searchEvents"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
}

// RedisConfig holds Redis connection parameters for the distributed cache
// backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// AnalyticsConfig controls the search analytics pipeline.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Search: SearchConfig{
			MaxResults:            100,
			DefaultLimit:          20,
			Timeout:               5 * time.Second,
			EnableParallelSearch:  true,
			MaxConcurrentSearches: 3,
			MinTermLength:         1,
			MaxTermLength:         100,
			MaxHashtags:           10,
			MaxRadiusKm:           100,
			SuggestionCount:       5,
			RankingWeights: RankingWeights{
				Textual:    0.4,
				Engagement: 0.25,
				Recency:    0.2,
				Quality:    0.1,
				Proximity:  0.05,
			},
			DefaultFilters: DefaultFilters{
				Statuses:     []string{"published"},
				Visibilities: []string{"public", "followers"},
				MaxAge:       2 * 365 * 24 * time.Hour,
			},
		},
		Cache: CacheConfig{
			Enabled:       true,
			Backend:       "memory",
			Capacity:      1000,
			TTL:           5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "pulsefeed",
			User:            "pulsefeed",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "moment-search-group",
			Topics: KafkaTopics{
				SearchEvents:    "search-events",
				CacheInvalidate: "cache-invalidate",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Analytics: AnalyticsConfig{
			Enabled:          true,
			BufferSize:       10000,
			SnapshotInterval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Search.MinTermLength < 1 || cfg.Search.MaxTermLength < cfg.Search.MinTermLength {
		return fmt.Errorf("invalid term length bounds [%d, %d]",
			cfg.Search.MinTermLength, cfg.Search.MaxTermLength)
	}
	if cfg.Search.DefaultLimit > cfg.Search.MaxResults {
		return fmt.Errorf("defaultLimit %d exceeds maxResults %d",
			cfg.Search.DefaultLimit, cfg.Search.MaxResults)
	}
	if sum := cfg.Search.RankingWeights.Sum(); sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("ranking weights must sum to 1.0, got %.3f", sum)
	}
	if cfg.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", cfg.Cache.Capacity)
	}
	return nil
}

// applyEnvOverrides reads MS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("MS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("MS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("MS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("MS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MS_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("MS_CACHE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = enabled
		}
	}
	if v := os.Getenv("MS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
