package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/verso-reads/verso-rag/internal/extract"
)

// AppDirName is the per-user application support folder name.
const AppDirName = "verso-reads"

// Defaults that other packages share.
const (
	DefaultChatModel     = "gpt-5.2"
	DefaultSystemPrompt  = "You are a helpful reading assistant. Be concise and reference the provided text when possible."
	DefaultEmbedModel    = "text-embedding-3-small"
	DefaultEmbedDims     = 1536
	DefaultEnvVar        = "OPENAI_API_KEY"
	DefaultService       = "verso-reads.openai"
	DefaultAccount       = "openai-api-key"
	DefaultConfigName    = "config.yaml"
	DefaultStorageDriver = "sqlite"
)

// AppDir returns <user config dir>/verso-reads, or a dot directory in the working directory
// when the user config dir cannot be resolved.
func AppDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return filepath.Join(".", "."+AppDirName)
	}
	return filepath.Join(base, AppDirName)
}

// DefaultConfigPath is where the CLI looks for a config file when --config is not given.
func DefaultConfigPath() string {
	return filepath.Join(AppDir(), DefaultConfigName)
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8765
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(AppDir(), "RAG", "rag.sqlite3")
	}
	if cfg.Storage.SecretsPath == "" {
		cfg.Storage.SecretsPath = filepath.Join(AppDir(), "secrets.sqlite3")
	}
	if cfg.Library.Root == "" {
		cfg.Library.Root = filepath.Join(AppDir(), "Library")
	}
	if cfg.Library.Extensions == nil {
		cfg.Library.Extensions = extract.SupportedExtensions()
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbedModel
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = DefaultEmbedDims
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 16
	}
	if cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = 1
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 60 * time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 256
	}
	if cfg.Chunking.MaxCharacters == 0 {
		cfg.Chunking.MaxCharacters = 1200
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 200
	}
	if cfg.Retrieval.MaxChunks == 0 {
		cfg.Retrieval.MaxChunks = 4
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = DefaultChatModel
	}
	if cfg.Chat.SystemPrompt == "" {
		cfg.Chat.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Credentials.Service == "" {
		cfg.Credentials.Service = DefaultService
	}
	if cfg.Credentials.Account == "" {
		cfg.Credentials.Account = DefaultAccount
	}
	if cfg.Credentials.EnvVar == "" {
		cfg.Credentials.EnvVar = DefaultEnvVar
	}
}
