// Package config provides configuration loading and structs for the CodeLens server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. The Gemini API key is
// deliberately absent: credentials come from the environment and are passed to
// adapter constructors, never read ad hoc inside methods.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Answer    AnswerConfig    `yaml:"answer"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for uploads, index artifacts, and the history database.
type StorageConfig struct {
	UploadDir    string `yaml:"upload_dir"`
	IndexDir     string `yaml:"index_dir"`
	DatabasePath string `yaml:"database_path"`
}

// IndexingConfig holds file selection, chunking, and admission settings.
type IndexingConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	ChunkOverlap  int `yaml:"chunk_overlap"`
	MaxFileKB     int `yaml:"max_file_kb"`
	MaxZipMB      int `yaml:"max_zip_mb"`
	MaxConcurrent int `yaml:"max_concurrent"`
}

// EmbeddingConfig holds Gemini embedding settings.
type EmbeddingConfig struct {
	Model        string `yaml:"model"`
	Dimensions   int    `yaml:"dimensions"`
	BatchSize    int    `yaml:"batch_size"`
	BatchPauseMs int    `yaml:"batch_pause_ms"`
	CacheSize    int    `yaml:"cache_size"`
}

// BatchPause returns the pause between embedding batches as a duration.
func (e *EmbeddingConfig) BatchPause() time.Duration {
	return time.Duration(e.BatchPauseMs) * time.Millisecond
}

// AnswerConfig holds retrieval and generation settings for the Q&A pipeline.
type AnswerConfig struct {
	Model               string  `yaml:"model"`
	TopK                int     `yaml:"top_k"`
	Temperature         float64 `yaml:"temperature"`
	MaxOutputTokens     int     `yaml:"max_output_tokens"`
	RefactorTemperature float64 `yaml:"refactor_temperature"`
	RefactorMaxTokens   int     `yaml:"refactor_max_tokens"`
	HistoryLimit        int     `yaml:"history_limit"`
	MaxQuestionChars    int     `yaml:"max_question_chars"`
}

// Load reads and parses the config file at path, expands storage paths, and
// applies defaults. Returns an error if the file cannot be read or parsed.
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
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)

	return &cfg, nil
}

// Default returns a config with all defaults applied, with storage paths
// relative to the current directory. Used when no config file is present.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
