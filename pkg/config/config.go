package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/reel/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// orderedKeys follows the TOML section layout.
var orderedKeys = []string{
	"storage.provider",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"api.listen",
	"api.log_file",
	"client.api_target",
	"client.token",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"embedding.api_key",
	"embedding.cache_size",
	"generator.provider",
	"generator.target",
	"generator.model",
	"generator.api_key",
	"generator.max_tokens",
	"memory.short_term_capacity",
	"memory.chunk_size",
	"memory.top_k",
	"memory.min_score",
	"memory.cascade_delete",
	"memory.personas_file",
	"memory.workers",
	"memory.queue_size",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
}

// ValidConfigKeys returns the list of all supported configuration key names
// in a stable order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	var rest []string
	for k := range configKeys {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)

	return append(result, rest...)
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// IsSecretKey reports whether a key holds a credential that listings should mask.
func IsSecretKey(key string) bool {
	return strings.HasSuffix(key, ".api_key") || key == "client.token" || key == "storage.postgres_dsn"
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads config.toml from the target .reel/ directory.
// A missing file yields NewDefaultConfig(); fields set in the file override
// the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = d.Version
	}

	fillString(&cfg.Storage.Provider, d.Storage.Provider)
	fillString(&cfg.API.Listen, d.API.Listen)
	fillString(&cfg.Client.APITarget, d.Client.APITarget)

	fillString(&cfg.VectorStore.Provider, d.VectorStore.Provider)
	fillString(&cfg.VectorStore.Collection, d.VectorStore.Collection)

	fillString(&cfg.Embedding.Provider, d.Embedding.Provider)
	fillString(&cfg.Embedding.Target, d.Embedding.Target)
	fillString(&cfg.Embedding.Model, d.Embedding.Model)
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = d.Embedding.Dimensions
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = d.Embedding.CacheSize
	}

	fillString(&cfg.Generator.Provider, d.Generator.Provider)
	fillString(&cfg.Generator.Model, d.Generator.Model)
	if cfg.Generator.Target == "" && cfg.Generator.Provider == "ollama" {
		cfg.Generator.Target = d.Generator.Target
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = d.Generator.MaxTokens
	}

	fillInt(&cfg.Memory.ShortTermCapacity, d.Memory.ShortTermCapacity)
	fillInt(&cfg.Memory.ChunkSize, d.Memory.ChunkSize)
	fillInt(&cfg.Memory.TopK, d.Memory.TopK)
	fillInt(&cfg.Memory.Workers, d.Memory.Workers)
	fillInt(&cfg.Memory.QueueSize, d.Memory.QueueSize)
	if cfg.Memory.MinScore == 0 {
		cfg.Memory.MinScore = d.Memory.MinScore
	}

	fillString(&cfg.EventStream.Provider, d.EventStream.Provider)
	fillString(&cfg.EventStream.Topic, d.EventStream.Topic)
}

func fillString(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

func fillInt(field *int, def int) {
	if *field == 0 {
		*field = def
	}
}

// SaveConfig persists the configuration to config.toml in the target .reel/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a Config with sane defaults for the named generator
// preset. Supported presets: "anthropic", "genai", "ollama", "openai".
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "anthropic":
		cfg.Generator = GeneratorConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5",
			MaxTokens: defaultGeneratorMaxTokens,
		}

	case "genai":
		cfg.Generator = GeneratorConfig{
			Provider:  "genai",
			Model:     "gemini-2.5-flash",
			MaxTokens: defaultGeneratorMaxTokens,
		}
		cfg.Embedding = EmbeddingConfig{
			Provider:   "genai",
			Model:      "gemini-embedding-001",
			Dimensions: 768,
			CacheSize:  defaultEmbeddingCacheSize,
		}

	case "openai":
		cfg.Generator = GeneratorConfig{
			Provider:  "openai",
			Target:    "https://api.openai.com",
			Model:     "gpt-4o-mini",
			MaxTokens: defaultGeneratorMaxTokens,
		}

	case "ollama":
		// defaults already target a local ollama

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}

	return cfg, nil
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"anthropic", "genai", "ollama", "openai"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
