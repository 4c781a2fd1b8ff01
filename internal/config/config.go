package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for SiteBot
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Chunker    ChunkerConfig    `mapstructure:"chunker"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Generation GenerationConfig `mapstructure:"generation"`
	Index      IndexConfig      `mapstructure:"index"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Lock       LockConfig       `mapstructure:"lock"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
}

// AdminConfig holds admin authentication configuration
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// CrawlerConfig holds crawl frontier configuration
type CrawlerConfig struct {
	Fetcher       string        `mapstructure:"fetcher"` // http, browser
	MaxPages      int           `mapstructure:"max_pages"`
	PageTimeout   time.Duration `mapstructure:"page_timeout"`
	MinTextLength int           `mapstructure:"min_text_length"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	Workers       int           `mapstructure:"workers"`
	UserAgent     string        `mapstructure:"user_agent"`
	BrowserBin    string        `mapstructure:"browser_bin"`
}

// ChunkerConfig holds chunking configuration
type ChunkerConfig struct {
	MaxWords     int `mapstructure:"max_words"`
	OverlapWords int `mapstructure:"overlap_words"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider       string        `mapstructure:"provider"` // hash, genai, openai
	Model          string        `mapstructure:"model"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Dimensions     int           `mapstructure:"dimensions"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

// GenerationConfig holds text generation provider configuration
type GenerationConfig struct {
	Provider string `mapstructure:"provider"` // genai, openai
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
}

// IndexConfig holds vector index configuration
type IndexConfig struct {
	Backend    string       `mapstructure:"backend"` // memory, sqlite, qdrant
	Metric     string       `mapstructure:"metric"`  // cosine, l2
	SQLitePath string       `mapstructure:"sqlite_path"`
	Qdrant     QdrantConfig `mapstructure:"qdrant"`
}

// QdrantConfig holds qdrant connection settings
type QdrantConfig struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	APIKey           string `mapstructure:"api_key"`
	UseTLS           bool   `mapstructure:"use_tls"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}

// RetrievalConfig holds query-time configuration
type RetrievalConfig struct {
	TopK            int `mapstructure:"top_k"`
	MaxContextChars int `mapstructure:"max_context_chars"`
}

// PipelineConfig holds ingestion pipeline configuration
type PipelineConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LockConfig holds per-bot lock configuration
type LockConfig struct {
	Backend       string        `mapstructure:"backend"` // local, redis
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables, e.g. SITEBOT_EMBEDDING_API_KEY
	v.SetEnvPrefix("SITEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Minute)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("admin.api_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("database.path", "./data/sitebot.db")

	v.SetDefault("crawler.fetcher", "http")
	v.SetDefault("crawler.max_pages", 10)
	v.SetDefault("crawler.page_timeout", 30*time.Second)
	v.SetDefault("crawler.min_text_length", 50)
	v.SetDefault("crawler.max_body_bytes", 2<<20)
	v.SetDefault("crawler.workers", 1)
	v.SetDefault("crawler.user_agent", "SiteBot/1.0")
	v.SetDefault("crawler.browser_bin", "")

	v.SetDefault("chunker.max_words", 220)
	v.SetDefault("chunker.overlap_words", 40)

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.retry_base_delay", 200*time.Millisecond)

	v.SetDefault("generation.provider", "genai")
	v.SetDefault("generation.model", "")
	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.api_key", "")

	v.SetDefault("index.backend", "sqlite")
	v.SetDefault("index.metric", "cosine")
	v.SetDefault("index.sqlite_path", "./data/vectors.db")
	v.SetDefault("index.qdrant.host", "localhost")
	v.SetDefault("index.qdrant.port", 6334)
	v.SetDefault("index.qdrant.api_key", "")
	v.SetDefault("index.qdrant.use_tls", false)
	v.SetDefault("index.qdrant.collection_prefix", "sitebot_")

	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.max_context_chars", 6000)

	v.SetDefault("pipeline.timeout", 10*time.Minute)

	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.redis_addr", "localhost:6379")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl", 15*time.Minute)
	v.SetDefault("lock.retry_interval", 100*time.Millisecond)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst", 10)
}

// Validate checks option combinations that cannot work at runtime
func (c *Config) Validate() error {
	if c.Chunker.MaxWords <= 0 {
		return fmt.Errorf("chunker.max_words must be positive, got %d", c.Chunker.MaxWords)
	}
	if c.Chunker.OverlapWords < 0 || c.Chunker.OverlapWords >= c.Chunker.MaxWords {
		return fmt.Errorf("chunker.overlap_words must be in [0, %d), got %d", c.Chunker.MaxWords, c.Chunker.OverlapWords)
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be positive, got %d", c.Crawler.MaxPages)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if err := oneOf("crawler.fetcher", c.Crawler.Fetcher, "http", "browser"); err != nil {
		return err
	}
	if err := oneOf("embedding.provider", c.Embedding.Provider, "hash", "genai", "openai"); err != nil {
		return err
	}
	if err := oneOf("generation.provider", c.Generation.Provider, "genai", "openai"); err != nil {
		return err
	}
	if err := oneOf("index.backend", c.Index.Backend, "memory", "sqlite", "qdrant"); err != nil {
		return err
	}
	if err := oneOf("index.metric", c.Index.Metric, "cosine", "l2"); err != nil {
		return err
	}
	return oneOf("lock.backend", c.Lock.Backend, "local", "redis")
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported value %q (want one of %s)", key, value, strings.Join(allowed, ", "))
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
