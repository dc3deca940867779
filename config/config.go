package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the news chat service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Session   SessionConfig   `mapstructure:"session"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LLMConfig contains the generation/embedding provider configuration
type LLMConfig struct {
	Type            string        `mapstructure:"type"` // openai is the only implemented type
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if strings.TrimSpace(l.CompletionModel) == "" {
		return fmt.Errorf("llm.completion_model is required")
	}
	if strings.TrimSpace(l.EmbeddingModel) == "" {
		return fmt.Errorf("llm.embedding_model is required")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Index    IndexConfig    `mapstructure:"index"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// IndexConfig selects the vector index backend
type IndexConfig struct {
	Backend    string `mapstructure:"backend"` // memory or postgres
	Dimensions int    `mapstructure:"dimensions"`
}

func (i IndexConfig) Validate() error {
	switch i.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("storage.index.backend must be memory or postgres, got %q", i.Backend)
	}
	if i.Dimensions <= 0 {
		return fmt.Errorf("storage.index.dimensions must be > 0")
	}
	return nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN assembles the connection string from the individual fields when no URL
// is configured.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// FeedSource is one configured news feed
type FeedSource struct {
	Title string `mapstructure:"title"`
	URL   string `mapstructure:"url"`
}

// IngestConfig contains ingestion cycle settings
type IngestConfig struct {
	Sources            []FeedSource  `mapstructure:"sources"`
	Interval           time.Duration `mapstructure:"interval"`
	CronSpec           string        `mapstructure:"cron_spec"` // overrides interval when set
	ChunkSize          int           `mapstructure:"chunk_size"`
	ChunkOverlap       int           `mapstructure:"chunk_overlap"`
	MaxArticlesPerFeed int           `mapstructure:"max_articles_per_feed"`
	FeedTimeout        time.Duration `mapstructure:"feed_timeout"`
	EmbedBatchSize     int           `mapstructure:"embed_batch_size"`
}

func (i IngestConfig) Validate() error {
	if len(i.Sources) == 0 {
		return fmt.Errorf("ingest.sources must not be empty")
	}
	for _, s := range i.Sources {
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("ingest.sources entries require a url")
		}
	}
	if i.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be > 0")
	}
	if i.ChunkOverlap < 0 || i.ChunkOverlap >= i.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size)")
	}
	return nil
}

// RetrievalConfig contains query-time retrieval settings
type RetrievalConfig struct {
	TopK            int  `mapstructure:"top_k"`
	OverfetchFactor int  `mapstructure:"overfetch_factor"`
	Hybrid          bool `mapstructure:"hybrid"`
	HistoryWindow   int  `mapstructure:"history_window"`
}

func (r RetrievalConfig) Validate() error {
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	if r.OverfetchFactor < 1 {
		return fmt.Errorf("retrieval.overfetch_factor must be >= 1")
	}
	return nil
}

// SessionConfig contains session store settings
type SessionConfig struct {
	Backend string        `mapstructure:"backend"` // redis or inmemory
	TTL     time.Duration `mapstructure:"ttl"`
}

func (s SessionConfig) Validate() error {
	switch s.Backend {
	case "redis", "inmemory":
	default:
		return fmt.Errorf("session.backend must be redis or inmemory, got %q", s.Backend)
	}
	if s.TTL <= 0 {
		return fmt.Errorf("session.ttl must be > 0")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.request_timeout", "120s")
	viper.SetDefault("llm.type", "openai")
	viper.SetDefault("llm.completion_model", "gpt-4o-mini")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.timeout", "60s")
	viper.SetDefault("storage.index.backend", "memory")
	viper.SetDefault("storage.index.dimensions", 1536)
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", "6379")
	viper.SetDefault("storage.redis.timeout", "5s")
	viper.SetDefault("ingest.interval", "30m")
	viper.SetDefault("ingest.chunk_size", 1000)
	viper.SetDefault("ingest.chunk_overlap", 100)
	viper.SetDefault("ingest.max_articles_per_feed", 10)
	viper.SetDefault("ingest.feed_timeout", "2m")
	viper.SetDefault("ingest.embed_batch_size", 32)
	viper.SetDefault("ingest.sources", []map[string]string{
		{"title": "BBC News", "url": "http://feeds.bbci.co.uk/news/rss.xml"},
		{"title": "CNN", "url": "http://rss.cnn.com/rss/edition.rss"},
		{"title": "The New York Times", "url": "https://rss.nytimes.com/services/xml/rss/nyt/HomePage.xml"},
		{"title": "Reuters", "url": "http://feeds.reuters.com/reuters/topNews"},
		{"title": "NPR", "url": "https://feeds.npr.org/1001/rss.xml"},
	})
	viper.SetDefault("retrieval.top_k", 3)
	viper.SetDefault("retrieval.overfetch_factor", 2)
	viper.SetDefault("retrieval.hybrid", true)
	viper.SetDefault("retrieval.history_window", 10)
	viper.SetDefault("session.backend", "redis")
	viper.SetDefault("session.ttl", "24h")
}

// LoadConfig loads config from file, falling back to defaults plus NEWSCHAT_*
// environment overrides when no file is present.
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	setDefaults()

	if path == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("json")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("NEWSCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := config.Storage.Index.Validate(); err != nil {
		return nil, err
	}
	if config.Storage.Index.Backend == "postgres" {
		if err := config.Storage.Postgres.Validate(); err != nil {
			return nil, err
		}
	}
	if config.Session.Backend == "redis" {
		if err := config.Storage.Redis.Validate(); err != nil {
			return nil, err
		}
	}
	if err := config.Ingest.Validate(); err != nil {
		return nil, err
	}
	if err := config.Retrieval.Validate(); err != nil {
		return nil, err
	}
	if err := config.Session.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
