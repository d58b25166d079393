// Package config provides configuration loading and structs for the verso-rag core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Library     LibraryConfig     `yaml:"library"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Chat        ChatConfig        `yaml:"chat"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

// ServerConfig holds HTTP bridge settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the vector store driver and its files.
type StorageConfig struct {
	Driver       string `yaml:"driver"` // "sqlite" or "memory"
	DatabasePath string `yaml:"database_path"`
	SecretsPath  string `yaml:"secrets_path"`
}

// LibraryConfig describes where library documents live.
type LibraryConfig struct {
	Root       string   `yaml:"root"`
	Watch      bool     `yaml:"watch"`
	Extensions []string `yaml:"extensions"`
}

// EmbeddingConfig holds remote embedding settings.
type EmbeddingConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Dimensions        int           `yaml:"dimensions"`
	BatchSize         int           `yaml:"batch_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	CacheSize         int           `yaml:"cache_size"`
}

// ChunkingConfig holds the chunk window, in characters.
type ChunkingConfig struct {
	MaxCharacters int `yaml:"max_characters"`
	Overlap       int `yaml:"overlap"`
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	MaxChunks int `yaml:"max_chunks"`
}

// ChatConfig holds chat completion settings.
type ChatConfig struct {
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

// CredentialsConfig names the secure-store entry holding the API key.
type CredentialsConfig struct {
	Service string `yaml:"service"`
	Account string `yaml:"account"`
	EnvVar  string `yaml:"env_var"`
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.SecretsPath = expandPath(cfg.Storage.SecretsPath, configDir)
	cfg.Library.Root = expandPath(cfg.Library.Root, configDir)

	return &cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = path[2:]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
