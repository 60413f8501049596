package config

const (
	defaultAPIListen       = ":8000"
	defaultClientAPITarget = "http://localhost:8000"

	defaultLLMBaseURL = "https://openrouter.ai/api/v1"
	defaultLLMModel   = "openai/gpt-4-turbo"

	defaultMemoryProvider   = "local"
	defaultVectorProvider   = "chromem"
	defaultVectorCollection = "memories"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultCacheMaxBytes = 64 << 20

	defaultEventsTopic = "anymind.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Cache: CacheConfig{
			Enabled:  true,
			MaxBytes: defaultCacheMaxBytes,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		LLM: LLMConfig{
			BaseURL: defaultLLMBaseURL,
			Model:   defaultLLMModel,
		},
		Memory: MemoryConfig{
			Provider: defaultMemoryProvider,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Events: EventsConfig{
			Topic: defaultEventsTopic,
		},
	}
}
