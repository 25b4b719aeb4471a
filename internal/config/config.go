package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"rag-chatbot/internal/models"
)

const (
	envPrefix = "RAG"
	maxTopK   = 10
)

type Config struct {
	AppName     string `mapstructure:"app_name" yaml:"app_name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	ListenAddr  string `mapstructure:"listen_addr" yaml:"listen_addr"`
	UploadDir   string `mapstructure:"upload_dir" yaml:"upload_dir"`
	MaxUploadMB int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	Debug       bool   `mapstructure:"debug" yaml:"debug"`
	LogJSON     bool   `mapstructure:"log_json" yaml:"log_json"`

	RAG          RAGConfig         `mapstructure:",squash" yaml:",inline"`
	Embedding    EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	VectorStore  VectorStoreConfig `mapstructure:"vector_store" yaml:"vector_store"`
	LLM          LLMConfig         `mapstructure:"llm" yaml:"llm"`
	OpenAIAPIKey string            `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	Tracking     TrackingConfig    `mapstructure:"tracking" yaml:"tracking"`
}

type RAGConfig struct {
	ChunkSize    int `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
	TopK         int `mapstructure:"top_k" yaml:"top_k"`
}

type EmbeddingConfig struct {
	Provider     string        `mapstructure:"provider" yaml:"provider"`
	Model        string        `mapstructure:"model" yaml:"model"`
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	Dimensions   int           `mapstructure:"dimensions" yaml:"dimensions"`
	CacheSize    int           `mapstructure:"cache_size" yaml:"cache_size"`
	CheckTimeout time.Duration `mapstructure:"check_timeout" yaml:"check_timeout"`
}

type VectorStoreConfig struct {
	Provider   string `mapstructure:"provider" yaml:"provider"`
	Dir        string `mapstructure:"dir" yaml:"dir"`
	Collection string `mapstructure:"collection" yaml:"collection"`
	DSN        string `mapstructure:"dsn" yaml:"dsn"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	ModelName   string        `mapstructure:"model_name" yaml:"model_name"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
}

type TrackingConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	URI        string `mapstructure:"uri" yaml:"uri"`
	Experiment string `mapstructure:"experiment" yaml:"experiment"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		AppName:     "RAG Chatbot",
		Environment: "dev",
		ListenAddr:  ":8000",
		UploadDir:   "data/uploads",
		MaxUploadMB: 20,
		RAG: RAGConfig{
			ChunkSize:    800,
			ChunkOverlap: 100,
			TopK:         4,
		},
		Embedding: EmbeddingConfig{
			Provider:     models.EmbeddingOllama,
			Model:        "all-minilm",
			BaseURL:      "http://localhost:11434",
			Dimensions:   384,
			CacheSize:    256,
			CheckTimeout: 5 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			Provider:   models.StoreChromem,
			Dir:        "vectorstore",
			Collection: "rag_documents",
		},
		LLM: LLMConfig{
			Provider:    models.LLMMock,
			ModelName:   "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   512,
			Timeout:     30 * time.Second,
			MaxRetries:  2,
		},
		Tracking: TrackingConfig{
			URI:        "file://mlruns",
			Experiment: "rag_query",
		},
	}
}

// LoadConfig reads .env, the optional YAML file at path and RAG_* environment
// variables on top of the defaults. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading config %s: %v", models.ErrConfiguration, path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("openai_api_key", "RAG_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("environment", "RAG_ENVIRONMENT", "ENVIRONMENT")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding config: %v", models.ErrConfiguration, err)
	}

	if cfg.Environment == "test" {
		cfg.Embedding.Provider = models.EmbeddingFake
		cfg.LLM.Provider = models.LLMMock
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can resolve it during
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("app_name", d.AppName)
	v.SetDefault("environment", d.Environment)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("upload_dir", d.UploadDir)
	v.SetDefault("max_upload_mb", d.MaxUploadMB)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("log_json", d.LogJSON)

	v.SetDefault("chunk_size", d.RAG.ChunkSize)
	v.SetDefault("chunk_overlap", d.RAG.ChunkOverlap)
	v.SetDefault("top_k", d.RAG.TopK)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("embedding.check_timeout", d.Embedding.CheckTimeout)

	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.dir", d.VectorStore.Dir)
	v.SetDefault("vector_store.collection", d.VectorStore.Collection)
	v.SetDefault("vector_store.dsn", d.VectorStore.DSN)
	v.SetDefault("vector_store.compress", d.VectorStore.Compress)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model_name", d.LLM.ModelName)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)

	v.SetDefault("openai_api_key", d.OpenAIAPIKey)

	v.SetDefault("tracking.enabled", d.Tracking.Enabled)
	v.SetDefault("tracking.uri", d.Tracking.URI)
	v.SetDefault("tracking.experiment", d.Tracking.Experiment)
}

// Validate checks the relationships between settings.
func (c *Config) Validate() error {
	var errs []error

	if err := ValidateChunking(c.RAG.ChunkSize, c.RAG.ChunkOverlap); err != nil {
		errs = append(errs, err)
	}
	if c.RAG.TopK < 1 || c.RAG.TopK > maxTopK {
		errs = append(errs, fmt.Errorf("%w: top_k must be between 1 and %d, got %d", models.ErrConfiguration, maxTopK, c.RAG.TopK))
	}

	switch c.Environment {
	case "dev", "test", "prod":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown environment %q", models.ErrConfiguration, c.Environment))
	}

	switch c.Embedding.Provider {
	case models.EmbeddingOllama, models.EmbeddingOpenAI, models.EmbeddingFake:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown embedding provider %q", models.ErrConfiguration, c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("%w: embedding dimensions must be positive", models.ErrConfiguration))
	}

	switch c.VectorStore.Provider {
	case models.StoreChromem, models.StoreSQLiteVec, models.StoreMemory:
	case models.StorePGVector:
		if c.VectorStore.DSN == "" {
			errs = append(errs, fmt.Errorf("%w: vector_store.dsn is required for pgvector", models.ErrConfiguration))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown vector store provider %q", models.ErrConfiguration, c.VectorStore.Provider))
	}

	switch c.LLM.Provider {
	case models.LLMOpenAI, models.LLMOllama, models.LLMMock:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown llm provider %q", models.ErrConfiguration, c.LLM.Provider))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: llm.timeout must be positive", models.ErrConfiguration))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: llm.max_retries cannot be negative", models.ErrConfiguration))
	}

	return errors.Join(errs...)
}

// ValidateChunking reports whether a chunk size and overlap can be used
// together.
func ValidateChunking(chunkSize, chunkOverlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", models.ErrConfiguration, chunkSize)
	}
	if chunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap cannot be negative, got %d", models.ErrConfiguration, chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return fmt.Errorf("%w: chunk_overlap (%d) must be smaller than chunk_size (%d)", models.ErrConfiguration, chunkOverlap, chunkSize)
	}
	return nil
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() (string, error) {
	masked := *c
	if masked.OpenAIAPIKey != "" {
		masked.OpenAIAPIKey = "****"
	}
	if masked.VectorStore.DSN != "" {
		masked.VectorStore.DSN = "****"
	}
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %v", err)
	}
	return string(data), nil
}
