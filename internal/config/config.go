// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.kernelstudio/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: generative provider and model selection, embedder provider
//   - Storage: PostgreSQL connection (see storage.go)
//   - Ingest: chunking window and overlap
//   - Retrieval: top-k and answer gate thresholds
//   - Graph: similarity link and contradiction thresholds
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the generative provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedder indicates the embedder configuration is invalid.
	ErrInvalidEmbedder = errors.New("invalid embedder")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates the chunking parameters are out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidTopK indicates the retrieval top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidThreshold indicates a score threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Generative provider identifiers used in Config.Provider.
// ProviderNone disables model calls entirely; the composer then always
// answers through the deterministic fallback path.
const (
	ProviderNone     = "none"
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
)

// Embedder provider identifiers used in Config.EmbedderProvider.
const (
	EmbedderLocal    = "local"
	EmbedderGoogleAI = "googleai"
	EmbedderOllama   = "ollama"
)

const (
	// DefaultEmbeddingDim is the vector width the schema is provisioned for.
	// The chunks table declares vector(768); changing this requires a migration.
	DefaultEmbeddingDim = 768

	// DefaultChunkMaxChars is the target chunk window in characters.
	DefaultChunkMaxChars = 1200

	// DefaultChunkOverlapSentences is how many trailing sentences carry over
	// into the next chunk.
	DefaultChunkOverlapSentences = 2

	// DefaultTopK is the retrieval result count per query.
	DefaultTopK = 5

	// DefaultMaxHistoryTurns bounds how many prior turns feed the composer prompt.
	DefaultMaxHistoryTurns = 6
)

// GateConfig holds the answer gate thresholds.
type GateConfig struct {
	// MinRelevance is the floor below which the gate refuses.
	MinRelevance float32 `mapstructure:"min_relevance" json:"min_relevance"`
	// HighConfidence is the score above which the gate passes without hedging.
	HighConfidence float32 `mapstructure:"high_confidence" json:"high_confidence"`
	// Disallowed is a list of regular expressions; a query matching any of
	// them is refused before retrieval.
	Disallowed []string `mapstructure:"disallowed" json:"disallowed"`
}

// GraphConfig holds the knowledge graph thresholds.
type GraphConfig struct {
	// LinkThreshold is the minimum cosine similarity for a graph edge.
	LinkThreshold float32 `mapstructure:"link_threshold" json:"link_threshold"`
	// ContradictionThreshold is the minimum similarity between two chunks
	// for the contradiction detector to compare their claims.
	ContradictionThreshold float32 `mapstructure:"contradiction_threshold" json:"contradiction_threshold"`
}

// Config stores application configuration.
type Config struct {
	// Generative provider and model configuration
	Provider  string `mapstructure:"provider" json:"provider"` // "none" (default), "googleai", "ollama"
	ModelName string `mapstructure:"model_name" json:"model_name"`

	// Embedder configuration
	EmbedderProvider string `mapstructure:"embedder_provider" json:"embedder_provider"` // "local" (default), "googleai", "ollama"
	EmbedderModel    string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDim     int    `mapstructure:"embedding_dim" json:"embedding_dim"`

	// Ollama configuration (only used when a provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// DataRoot is the scratch directory for ingest uploads and the
	// process lock file.
	DataRoot string `mapstructure:"data_root" json:"data_root"`

	// Ingest configuration
	ChunkMaxChars         int `mapstructure:"chunk_max_chars" json:"chunk_max_chars"`
	ChunkOverlapSentences int `mapstructure:"chunk_overlap_sentences" json:"chunk_overlap_sentences"`

	// Retrieval configuration
	TopK            int `mapstructure:"top_k" json:"top_k"`
	MaxHistoryTurns int `mapstructure:"max_history_turns" json:"max_history_turns"`

	// Gate and graph thresholds
	Gate  GateConfig  `mapstructure:"gate" json:"gate"`
	Graph GraphConfig `mapstructure:"graph" json:"graph"`

	// HTTP server configuration
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`

	// Tracing configuration (optional; empty endpoint disables tracing)
	TraceEndpoint string `mapstructure:"trace_endpoint" json:"trace_endpoint"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.kernelstudio/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".kernelstudio")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail fast on bad values instead of surfacing them mid-request.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Generative defaults: no model configured, deterministic fallback only.
	viper.SetDefault("provider", ProviderNone)
	viper.SetDefault("model_name", "gemini-2.5-flash")

	// Embedder defaults
	viper.SetDefault("embedder_provider", EmbedderLocal)
	viper.SetDefault("embedder_model", "local-hash")
	viper.SetDefault("embedding_dim", DefaultEmbeddingDim)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "kernelstudio")
	viper.SetDefault("postgres_password", "kernelstudio_dev_password")
	viper.SetDefault("postgres_db_name", "kernelstudio")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Data root
	viper.SetDefault("data_root", defaultDataRoot())

	// Ingest defaults
	viper.SetDefault("chunk_max_chars", DefaultChunkMaxChars)
	viper.SetDefault("chunk_overlap_sentences", DefaultChunkOverlapSentences)

	// Retrieval defaults
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("max_history_turns", DefaultMaxHistoryTurns)

	// Gate defaults
	viper.SetDefault("gate.min_relevance", 0.25)
	viper.SetDefault("gate.high_confidence", 0.60)
	viper.SetDefault("gate.disallowed", []string{})

	// Graph defaults
	viper.SetDefault("graph.link_threshold", 0.55)
	viper.SetDefault("graph.contradiction_threshold", 0.70)

	// HTTP defaults
	viper.SetDefault("http_addr", ":8080")

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

func defaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "kernelstudio")
	}
	return filepath.Join(home, ".kernelstudio", "data")
}

// bindEnvVariables binds environment variable overrides explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "KERNELSTUDIO_PROVIDER")
	mustBind("model_name", "KERNELSTUDIO_MODEL_NAME")
	mustBind("embedder_provider", "KERNELSTUDIO_EMBEDDER_PROVIDER")
	mustBind("embedder_model", "KERNELSTUDIO_EMBEDDER_MODEL")
	mustBind("ollama_host", "KERNELSTUDIO_OLLAMA_HOST")
	mustBind("data_root", "KERNELSTUDIO_DATA_ROOT")
	mustBind("http_addr", "KERNELSTUDIO_HTTP_ADDR")
	mustBind("trace_endpoint", "KERNELSTUDIO_TRACE_ENDPOINT")
	mustBind("log_level", "KERNELSTUDIO_LOG_LEVEL")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// Validation checks its presence based on the selected provider.
}
