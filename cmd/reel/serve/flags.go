package servecmder

import "github.com/papercomputeco/reel/pkg/config"

// serveFlags is the flag registry for reel serve.
var serveFlags = config.FlagSet{
	config.FlagAPIListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagStorageProvider: {
		Name:        "storage-provider",
		ViperKey:    "storage.provider",
		Description: "Turn store (inmemory, sqlite, postgres)",
	},
	config.FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the SQLite database (default: .reel/reel.db)",
	},
	config.FlagPostgresDSN: {
		Name:        "postgres-dsn",
		ViperKey:    "storage.postgres_dsn",
		Description: "PostgreSQL connection string",
	},
	config.FlagVectorStoreProv: {
		Name:        "vector-store-provider",
		ViperKey:    "vector_store.provider",
		Description: "Vector index (inmemory, chromem, sqlite, chroma, qdrant)",
	},
	config.FlagVectorStoreTgt: {
		Name:        "vector-store-target",
		ViperKey:    "vector_store.target",
		Description: "Vector index path, URL or host:port",
	},
	config.FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider (ollama, genai)",
	},
	config.FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Embedding provider URL",
	},
	config.FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	config.FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding vector dimensions",
	},
	config.FlagGeneratorProv: {
		Name:        "generator-provider",
		ViperKey:    "generator.provider",
		Description: "Language model provider (ollama, openai, anthropic, genai)",
	},
	config.FlagGeneratorTgt: {
		Name:        "generator-target",
		ViperKey:    "generator.target",
		Description: "Language model provider URL",
	},
	config.FlagGeneratorModel: {
		Name:        "generator-model",
		Shorthand:   "m",
		ViperKey:    "generator.model",
		Description: "Language model name",
	},
	config.FlagEventStreamProv: {
		Name:        "eventstream-provider",
		ViperKey:    "eventstream.provider",
		Description: "Exchange event sink (nop, kafka)",
	},
	config.FlagEventStreamBroker: {
		Name:        "eventstream-brokers",
		ViperKey:    "eventstream.brokers",
		Description: "Comma separated Kafka brokers",
	},
}

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagGeneratorProv,
	config.FlagGeneratorTgt,
	config.FlagGeneratorModel,
	config.FlagEventStreamProv,
	config.FlagEventStreamBroker,
}
