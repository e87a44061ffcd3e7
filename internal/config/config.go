// Package config provides unified configuration loading for the Brick Engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Brick Engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Sources       SourcesConfig       `yaml:"sources"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Index         IndexConfig         `yaml:"index"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds record store connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SourcesConfig holds data source settings.
type SourcesConfig struct {
	// Priority ranks sources for dedup tie-breaking, best first. Sources not
	// listed rank after all listed ones.
	Priority     []string           `yaml:"priority"`
	FetchTimeout time.Duration      `yaml:"fetch_timeout"`
	FetchLimit   int                `yaml:"fetch_limit"`
	Rebrickable  RebrickableConfig  `yaml:"rebrickable"`
	Brickset     BricksetConfig     `yaml:"brickset"`
	BrickOwl     BrickOwlConfig     `yaml:"brickowl"`
	Files        []FileSourceConfig `yaml:"files"`
}

// RebrickableConfig holds Rebrickable API settings.
type RebrickableConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// BricksetConfig holds Brickset API settings.
type BricksetConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BrickOwlConfig holds BrickOwl API settings.
type BrickOwlConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// FileSourceConfig holds a file-backed source definition.
type FileSourceConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// EmbeddingConfig holds embedding generation settings.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // openai or local
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// IndexConfig holds vector index persistence settings.
type IndexConfig struct {
	Dir string `yaml:"dir"`
}

// RetrievalConfig holds retrieval defaults and fusion weights.
type RetrievalConfig struct {
	DefaultK         int     `yaml:"default_k"`
	DefaultThreshold float64 `yaml:"default_threshold"`
	SemanticWeight   float64 `yaml:"semantic_weight"`
	KeywordWeight    float64 `yaml:"keyword_weight"`
	MinQuality       float64 `yaml:"min_quality"`
	CacheResults     bool    `yaml:"cache_results"`
}

// CacheConfig holds query cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "brickengine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Sources: SourcesConfig{
			Priority:     []string{"rebrickable", "brickset", "brickowl"},
			FetchTimeout: 30 * time.Second,
			FetchLimit:   1000,
			Rebrickable: RebrickableConfig{
				BaseURL: "https://rebrickable.com/api/v3",
			},
			Brickset: BricksetConfig{
				BaseURL: "https://brickset.com/api/v3.asmx",
			},
			BrickOwl: BrickOwlConfig{
				BaseURL: "https://api.brickowl.com/v1",
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			BaseURL:   "https://api.openai.com/v1",
			Model:     "text-embedding-3-small",
			Dimension: 256,
			BatchSize: 100,
			Timeout:   30 * time.Second,
		},
		Index: IndexConfig{
			Dir: "index",
		},
		Retrieval: RetrievalConfig{
			DefaultK:         8,
			DefaultThreshold: 0.80,
			SemanticWeight:   0.7,
			KeywordWeight:    0.3,
			MinQuality:       0.0,
			CacheResults:     true,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "brickengine",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Embedding.Provider != "openai" && c.Embedding.Provider != "local" {
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Retrieval.SemanticWeight < c.Retrieval.KeywordWeight {
		return fmt.Errorf("semantic_weight must be >= keyword_weight")
	}

	if c.Retrieval.DefaultK < 1 {
		return fmt.Errorf("default_k must be at least 1")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("REBRICKABLE_API_KEY"); v != "" {
		cfg.Sources.Rebrickable.APIKey = v
		cfg.Sources.Rebrickable.Enabled = true
	}

	if v := os.Getenv("BRICKSET_API_KEY"); v != "" {
		cfg.Sources.Brickset.APIKey = v
		cfg.Sources.Brickset.Enabled = true
	}

	if v := os.Getenv("BRICKSET_USERNAME"); v != "" {
		cfg.Sources.Brickset.Username = v
	}

	if v := os.Getenv("BRICKSET_PASSWORD"); v != "" {
		cfg.Sources.Brickset.Password = v
	}

	if v := os.Getenv("BRICKOWL_API_KEY"); v != "" {
		cfg.Sources.BrickOwl.APIKey = v
		cfg.Sources.BrickOwl.Enabled = true
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
