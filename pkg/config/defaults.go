package config

const (
	defaultStorageProvider = "sqlite"
	defaultAPIListen       = ":8081"

	defaultClientAPITarget = "http://localhost:8081"

	defaultVectorProvider   = "chromem"
	defaultVectorCollection = "reel"

	defaultOllamaTarget        = "http://localhost:11434"
	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingCacheSize  = 4096

	defaultGeneratorProvider  = "ollama"
	defaultGeneratorModel     = "llama3.2"
	defaultGeneratorMaxTokens = 2048

	defaultShortTermCapacity = 20
	defaultChunkSize         = 4
	defaultTopK              = 5
	defaultMinScore          = 0.7
	defaultWorkers           = 3
	defaultQueueSize         = 256

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "reel.exchanges"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultOllamaTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
			CacheSize:  defaultEmbeddingCacheSize,
		},
		Generator: GeneratorConfig{
			Provider:  defaultGeneratorProvider,
			Target:    defaultOllamaTarget,
			Model:     defaultGeneratorModel,
			MaxTokens: defaultGeneratorMaxTokens,
		},
		Memory: MemoryConfig{
			ShortTermCapacity: defaultShortTermCapacity,
			ChunkSize:         defaultChunkSize,
			TopK:              defaultTopK,
			MinScore:          defaultMinScore,
			Workers:           defaultWorkers,
			QueueSize:         defaultQueueSize,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
