package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent reel configuration stored as config.toml
// in the .reel/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Generator   GeneratorConfig   `toml:"generator"`
	Memory      MemoryConfig      `toml:"memory"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Auth        AuthConfig        `toml:"auth"`
}

// StorageConfig selects the turn store.
type StorageConfig struct {
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen  string `toml:"listen,omitempty"`
	LogFile string `toml:"log_file,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// API server (e.g. reel chat). APITarget is a full URL.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
	Token     string `toml:"token,omitempty"`
}

// VectorStoreConfig holds vector index settings. Target is a path for the
// embedded providers and a URL or host:port for the remote ones.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	CacheSize  int64  `toml:"cache_size,omitempty"`
}

// GeneratorConfig holds language model provider settings.
type GeneratorConfig struct {
	Provider  string `toml:"provider,omitempty"`
	Target    string `toml:"target,omitempty"`
	Model     string `toml:"model,omitempty"`
	APIKey    string `toml:"api_key,omitempty"`
	MaxTokens int64  `toml:"max_tokens,omitempty"`
}

// MemoryConfig holds the short-term window and long-term archive settings.
type MemoryConfig struct {
	ShortTermCapacity int     `toml:"short_term_capacity,omitempty"`
	ChunkSize         int     `toml:"chunk_size,omitempty"`
	TopK              int     `toml:"top_k,omitempty"`
	MinScore          float64 `toml:"min_score,omitempty"`
	CascadeDelete     bool    `toml:"cascade_delete,omitempty"`
	PersonasFile      string  `toml:"personas_file,omitempty"`
	Workers           int     `toml:"workers,omitempty"`
	QueueSize         int     `toml:"queue_size,omitempty"`
}

// EventStreamConfig selects where completed exchanges are published.
// Brokers is a comma separated list of host:port pairs.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// AuthConfig maps bearer tokens to owner IDs.
type AuthConfig struct {
	Tokens map[string]string `toml:"tokens,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func int64Key(name string, field func(c *Config) *int64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatInt(*field(c), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
// auth.tokens is a table and is edited in config.toml directly.
var configKeys = map[string]configKeyInfo{
	"storage.provider":     stringKey(func(c *Config) *string { return &c.Storage.Provider }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"api.listen":   stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.log_file": stringKey(func(c *Config) *string { return &c.API.LogFile }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"client.token":      stringKey(func(c *Config) *string { return &c.Client.Token }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.api_key":  stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"embedding.cache_size": int64Key("embedding.cache_size", func(c *Config) *int64 { return &c.Embedding.CacheSize }),

	"generator.provider":   stringKey(func(c *Config) *string { return &c.Generator.Provider }),
	"generator.target":     stringKey(func(c *Config) *string { return &c.Generator.Target }),
	"generator.model":      stringKey(func(c *Config) *string { return &c.Generator.Model }),
	"generator.api_key":    stringKey(func(c *Config) *string { return &c.Generator.APIKey }),
	"generator.max_tokens": int64Key("generator.max_tokens", func(c *Config) *int64 { return &c.Generator.MaxTokens }),

	"memory.short_term_capacity": intKey("memory.short_term_capacity", func(c *Config) *int { return &c.Memory.ShortTermCapacity }),
	"memory.chunk_size":          intKey("memory.chunk_size", func(c *Config) *int { return &c.Memory.ChunkSize }),
	"memory.top_k":               intKey("memory.top_k", func(c *Config) *int { return &c.Memory.TopK }),
	"memory.min_score": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Memory.MinScore, 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for memory.min_score: %w", err)
			}
			if f < 0 || f > 1 {
				return fmt.Errorf("invalid value for memory.min_score: %v is outside [0, 1]", f)
			}
			c.Memory.MinScore = f
			return nil
		},
	},
	"memory.cascade_delete": {
		get: func(c *Config) string { return strconv.FormatBool(c.Memory.CascadeDelete) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for memory.cascade_delete: %w", err)
			}
			c.Memory.CascadeDelete = b
			return nil
		},
	},
	"memory.personas_file": stringKey(func(c *Config) *string { return &c.Memory.PersonasFile }),
	"memory.workers":       intKey("memory.workers", func(c *Config) *int { return &c.Memory.Workers }),
	"memory.queue_size":    intKey("memory.queue_size", func(c *Config) *int { return &c.Memory.QueueSize }),

	"eventstream.provider": stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers":  stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":    stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
}
