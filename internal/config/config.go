package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the retrieval engine.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Index     IndexConfig     `mapstructure:"index"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Query     QueryConfig     `mapstructure:"query"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
	Search    SearchConfig    `mapstructure:"search"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

// IndexConfig configures the vector index store.
type IndexConfig struct {
	Backend      string       `mapstructure:"backend"` // "local" or "qdrant"
	Dir          string       `mapstructure:"dir"`
	Dimension    int          `mapstructure:"dimension"`
	CompactRatio float64      `mapstructure:"compact_ratio"`
	Qdrant       QdrantConfig `mapstructure:"qdrant"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// QueryConfig configures the query understanding unit.
type QueryConfig struct {
	Vocabulary VocabularyConfig `mapstructure:"vocabulary"`
	NER        NERConfig        `mapstructure:"ner"`
	CacheSize  int              `mapstructure:"cache_size"`
	CacheTTL   time.Duration    `mapstructure:"cache_ttl"`
}

// VocabularyConfig holds the known category/brand/color vocabularies used for
// constraint extraction. The true source vocabularies are catalog-specific,
// so these are configuration, not code.
type VocabularyConfig struct {
	Categories          []string          `mapstructure:"categories"`
	Brands              []string          `mapstructure:"brands"`
	Colors              []string          `mapstructure:"colors"`
	CategoryCorrections map[string]string `mapstructure:"category_corrections"`
	ColorCorrections    map[string]string `mapstructure:"color_corrections"`
	BrandCorrections    map[string]string `mapstructure:"brand_corrections"`
}

// NERConfig configures the optional remote NER model. Extraction works
// without it; the model only enriches the rule layer.
type NERConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RankingConfig holds the score fusion weights. Defaults follow the
// documented tunables: similarity 0.5, constraints 0.35, business signals 0.15.
type RankingConfig struct {
	SimilarityWeight float64 `mapstructure:"similarity_weight"`
	ConstraintWeight float64 `mapstructure:"constraint_weight"`
	SignalWeight     float64 `mapstructure:"signal_weight"`
}

type SearchConfig struct {
	DefaultK            int           `mapstructure:"default_k"`
	MaxK                int           `mapstructure:"max_k"`
	CandidateMultiplier int           `mapstructure:"candidate_multiplier"`
	EmbedTimeout        time.Duration `mapstructure:"embed_timeout"`
	IndexTimeout        time.Duration `mapstructure:"index_timeout"`
}

type IngestConfig struct {
	Workers   int `mapstructure:"workers"`
	BatchSize int `mapstructure:"batch_size"`
}

// SnapshotConfig configures index snapshot archival to object storage.
type SnapshotConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type FeedsConfig struct {
	File FileFeedConfig `mapstructure:"file"`
}

type FileFeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment.
// Parameters:
//   - configPath: explicit config file path; empty searches ./configs and .
// Returns:
//   - *Config: populated configuration with defaults applied.
//   - error: non-nil if the file exists but cannot be read or decoded.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	v.BindEnv("embedding.base_url", "EMBEDDING_BASE_URL")
	v.BindEnv("query.ner.api_key", "NER_API_KEY")
	v.BindEnv("query.ner.base_url", "NER_BASE_URL")
	v.BindEnv("index.qdrant.host", "QDRANT_HOST")
	v.BindEnv("index.qdrant.port", "QDRANT_PORT")
	v.BindEnv("index.qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("snapshot.access_key", "SNAPSHOT_ACCESS_KEY")
	v.BindEnv("snapshot.secret_key", "SNAPSHOT_SECRET_KEY")
	v.BindEnv("database.password", "DATABASE_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 7860)
	v.SetDefault("server.mode", "prod")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/catalog.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("index.backend", "local")
	v.SetDefault("index.dir", "./vector_db")
	v.SetDefault("index.dimension", 1536)
	v.SetDefault("index.compact_ratio", 0.3)
	v.SetDefault("index.qdrant.host", "localhost")
	v.SetDefault("index.qdrant.port", 6334)
	v.SetDefault("index.qdrant.collection", "products")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-ada-002")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", 10*time.Second)

	v.SetDefault("query.cache_size", 256)
	v.SetDefault("query.cache_ttl", 10*time.Minute)
	v.SetDefault("query.ner.enabled", false)
	v.SetDefault("query.ner.timeout", 3*time.Second)
	v.SetDefault("query.vocabulary.categories", defaultCategories)
	v.SetDefault("query.vocabulary.brands", defaultBrands)
	v.SetDefault("query.vocabulary.colors", defaultColors)
	v.SetDefault("query.vocabulary.category_corrections", defaultCategoryCorrections)
	v.SetDefault("query.vocabulary.color_corrections", defaultColorCorrections)
	v.SetDefault("query.vocabulary.brand_corrections", map[string]string{})

	v.SetDefault("ranking.similarity_weight", 0.5)
	v.SetDefault("ranking.constraint_weight", 0.35)
	v.SetDefault("ranking.signal_weight", 0.15)

	v.SetDefault("search.default_k", 6)
	v.SetDefault("search.max_k", 50)
	v.SetDefault("search.candidate_multiplier", 5)
	v.SetDefault("search.embed_timeout", 5*time.Second)
	v.SetDefault("search.index_timeout", 5*time.Second)

	v.SetDefault("ingest.workers", 5)
	v.SetDefault("ingest.batch_size", 50)

	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.endpoint", "localhost:9000")
	v.SetDefault("snapshot.use_ssl", false)
	v.SetDefault("snapshot.bucket", "shopcore-snapshots")
	v.SetDefault("snapshot.prefix", "snapshots")

	v.SetDefault("feeds.file.enabled", true)
	v.SetDefault("feeds.file.path", "./data/catalog.json")
}
