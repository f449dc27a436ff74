package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Generative provider validation
	switch c.Provider {
	case ProviderNone, ProviderOllama:
	case ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
		if c.ModelName == "" {
			return fmt.Errorf("%w: model_name cannot be empty for provider %q", ErrInvalidProvider, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q is not one of: none, googleai, ollama", ErrInvalidProvider, c.Provider)
	}

	// 2. Embedder validation
	switch c.EmbedderProvider {
	case EmbedderLocal:
	case EmbedderOllama:
		if c.EmbedderModel == "" {
			return fmt.Errorf("%w: embedder_model cannot be empty for provider %q", ErrInvalidEmbedder, c.EmbedderProvider)
		}
	case EmbedderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for embedder %q",
				ErrMissingAPIKey, c.EmbedderProvider)
		}
		if c.EmbedderModel == "" {
			return fmt.Errorf("%w: embedder_model cannot be empty for provider %q", ErrInvalidEmbedder, c.EmbedderProvider)
		}
	default:
		return fmt.Errorf("%w: %q is not one of: local, googleai, ollama", ErrInvalidEmbedder, c.EmbedderProvider)
	}

	// The schema provisions vector(768); other widths need a migration first.
	if c.EmbeddingDim != DefaultEmbeddingDim {
		return fmt.Errorf("%w: must be %d, got %d", ErrInvalidDimension, DefaultEmbeddingDim, c.EmbeddingDim)
	}

	// 3. Chunking validation
	if c.ChunkMaxChars < 100 || c.ChunkMaxChars > 100000 {
		return fmt.Errorf("%w: chunk_max_chars must be between 100 and 100,000, got %d",
			ErrInvalidChunking, c.ChunkMaxChars)
	}
	if c.ChunkOverlapSentences < 0 || c.ChunkOverlapSentences > 10 {
		return fmt.Errorf("%w: chunk_overlap_sentences must be between 0 and 10, got %d",
			ErrInvalidChunking, c.ChunkOverlapSentences)
	}

	// 4. Retrieval validation
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidTopK, c.TopK)
	}

	// 5. Threshold validation
	if c.Gate.MinRelevance < 0 || c.Gate.MinRelevance > 1 {
		return fmt.Errorf("%w: gate.min_relevance must be in [0,1], got %.2f",
			ErrInvalidThreshold, c.Gate.MinRelevance)
	}
	if c.Gate.HighConfidence < c.Gate.MinRelevance || c.Gate.HighConfidence > 1 {
		return fmt.Errorf("%w: gate.high_confidence must be in [min_relevance,1], got %.2f",
			ErrInvalidThreshold, c.Gate.HighConfidence)
	}
	for _, pattern := range c.Gate.Disallowed {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w: gate.disallowed pattern %q: %v", ErrInvalidThreshold, pattern, err)
		}
	}
	if c.Graph.LinkThreshold < 0 || c.Graph.LinkThreshold > 1 {
		return fmt.Errorf("%w: graph.link_threshold must be in [0,1], got %.2f",
			ErrInvalidThreshold, c.Graph.LinkThreshold)
	}
	if c.Graph.ContradictionThreshold < 0 || c.Graph.ContradictionThreshold > 1 {
		return fmt.Errorf("%w: graph.contradiction_threshold must be in [0,1], got %.2f",
			ErrInvalidThreshold, c.Graph.ContradictionThreshold)
	}

	// 6. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
