package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/timmy/tubechat/internal/domain"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Completion  CompletionConfig  `mapstructure:"completion"`
	Transcript  TranscriptConfig  `mapstructure:"transcript"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
	Chat        ChatConfig        `mapstructure:"chat"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
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
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`
	URL             string        `mapstructure:"url"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	return c.Path
}

type VectorStoreConfig struct {
	Backend   string         `mapstructure:"backend"` // qdrant, pgvector, bolt
	Namespace string         `mapstructure:"namespace"`
	Qdrant    QdrantConfig   `mapstructure:"qdrant"`
	PgVector  PgVectorConfig `mapstructure:"pgvector"`
	Bolt      BoltConfig     `mapstructure:"bolt"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type PgVectorConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type BoltConfig struct {
	Path string `mapstructure:"path"`
}

type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"` // openai, jina, huggingface
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type CompletionConfig struct {
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type TranscriptConfig struct {
	Source    string          `mapstructure:"source"` // youtube, invidious, browser
	Language  string          `mapstructure:"language"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	Invidious InvidiousConfig `mapstructure:"invidious"`
	Browser   BrowserConfig   `mapstructure:"browser"`
}

type InvidiousConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type BrowserConfig struct {
	ExecPath string `mapstructure:"exec_path"`
	Headless bool   `mapstructure:"headless"`
}

type IngestConfig struct {
	VideoURL     string `mapstructure:"video_url"`
	Policy       string `mapstructure:"policy"` // append, replace
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`

	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

type ChatConfig struct {
	Stream       bool   `mapstructure:"stream"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // r2, s3, s3compatible
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

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

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Credentials and deployment-specific endpoints
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("vector_store.backend", "VECTOR_STORE")
	v.BindEnv("vector_store.qdrant.host", "QDRANT_HOST")
	v.BindEnv("vector_store.qdrant.port", "QDRANT_PORT")
	v.BindEnv("vector_store.qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("vector_store.pgvector.dsn", "PGVECTOR_DSN")
	v.BindEnv("embedding.provider", "EMBEDDING_PROVIDER")
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	v.BindEnv("embedding.base_url", "EMBEDDING_BASE_URL")
	v.BindEnv("completion.api_key", "OPENAI_API_KEY")
	v.BindEnv("completion.base_url", "OPENAI_BASE_URL")
	v.BindEnv("completion.model", "COMPLETION_MODEL")
	v.BindEnv("transcript.source", "TRANSCRIPT_SOURCE")
	v.BindEnv("transcript.invidious.base_url", "INVIDIOUS_BASE_URL")
	v.BindEnv("transcript.browser.exec_path", "CHROME_PATH")
	v.BindEnv("ingest.video_url", "VIDEO_URL")
	v.BindEnv("ingest.policy", "INGEST_POLICY")
	v.BindEnv("archive.endpoint", "S3_ENDPOINT")
	v.BindEnv("archive.access_key", "S3_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "S3_SECRET_KEY")
	v.BindEnv("archive.bucket", "S3_BUCKET")
	v.BindEnv("tracing.jaeger_endpoint", "JAEGER_ENDPOINT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/tubechat.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("vector_store.backend", "qdrant")
	v.SetDefault("vector_store.namespace", "chat")
	v.SetDefault("vector_store.qdrant.host", "localhost")
	v.SetDefault("vector_store.qdrant.port", 6334)
	v.SetDefault("vector_store.qdrant.collection", "transcripts")
	v.SetDefault("vector_store.pgvector.table", "index_records")
	v.SetDefault("vector_store.bolt.path", "./data/vectors.db")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", 30*time.Second)

	v.SetDefault("completion.model", "gpt-4o-mini")
	v.SetDefault("completion.base_url", "https://api.openai.com/v1")
	v.SetDefault("completion.max_tokens", 1024)
	v.SetDefault("completion.temperature", 0.7)
	v.SetDefault("completion.timeout", 2*time.Minute)

	v.SetDefault("transcript.source", "youtube")
	v.SetDefault("transcript.language", "en")
	v.SetDefault("transcript.timeout", 60*time.Second)
	v.SetDefault("transcript.invidious.base_url", "https://yewtu.be")
	v.SetDefault("transcript.browser.headless", true)

	v.SetDefault("ingest.policy", string(domain.IngestPolicyAppend))
	v.SetDefault("ingest.chunk_size", 2000)
	v.SetDefault("ingest.chunk_overlap", 100)
	v.SetDefault("ingest.max_retries", 0)
	v.SetDefault("ingest.retry_backoff", "500ms")

	v.SetDefault("retrieval.top_k", 3)

	v.SetDefault("chat.stream", true)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.use_ssl", true)
	v.SetDefault("archive.bucket", "transcripts")
	v.SetDefault("archive.prefix", "transcripts")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "tubechat")
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
}

// Validate fails fast on settings the selected providers cannot run without.
// Every failure wraps domain.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Embedding.Provider {
	case "openai", "jina", "huggingface":
		if c.Embedding.APIKey == "" {
			add("embedding.api_key is required for provider %q (EMBEDDING_API_KEY)", c.Embedding.Provider)
		}
	default:
		add("unknown embedding.provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		add("embedding.model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		add("embedding.dimensions must be positive")
	}

	if c.Completion.APIKey == "" {
		add("completion.api_key is required (OPENAI_API_KEY)")
	}
	if c.Completion.BaseURL == "" {
		add("completion.base_url is required (OPENAI_BASE_URL)")
	}

	switch c.VectorStore.Backend {
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			add("vector_store.qdrant.host is required")
		}
	case "pgvector":
		if c.VectorStore.PgVector.DSN == "" {
			add("vector_store.pgvector.dsn is required (PGVECTOR_DSN)")
		}
	case "bolt":
		if c.VectorStore.Bolt.Path == "" {
			add("vector_store.bolt.path is required")
		}
	default:
		add("unknown vector_store.backend %q", c.VectorStore.Backend)
	}
	if c.VectorStore.Namespace == "" {
		add("vector_store.namespace is required")
	}

	switch c.Transcript.Source {
	case "youtube", "browser":
	case "invidious":
		if c.Transcript.Invidious.BaseURL == "" {
			add("transcript.invidious.base_url is required (INVIDIOUS_BASE_URL)")
		}
	default:
		add("unknown transcript.source %q", c.Transcript.Source)
	}

	if !domain.IngestPolicy(c.Ingest.Policy).Valid() {
		add("unknown ingest.policy %q (append or replace)", c.Ingest.Policy)
	}
	if c.Ingest.ChunkSize <= 0 || c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		add("ingest.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Ingest.MaxRetries < 0 {
		add("ingest.max_retries must not be negative")
	}
	if c.Retrieval.TopK <= 0 {
		add("retrieval.top_k must be positive")
	}

	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" || c.Archive.AccessKey == "" || c.Archive.SecretKey == "" {
			add("archive endpoint and credentials are required when archive.enabled (S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY)")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}
