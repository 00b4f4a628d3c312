package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in Config.Backend.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendJSON   = "json"
)

// Config holds application configuration.
type Config struct {
	DataDir      string `yaml:"data_dir"`
	Backend      string `yaml:"backend"`
	DocumentsDir string `yaml:"documents_dir"`

	CrossrefURL string `yaml:"crossref_url"`
	ArxivURL    string `yaml:"arxiv_url"`
	Mailto      string `yaml:"mailto"`

	FetchTimeout        time.Duration `yaml:"fetch_timeout"`
	FetchRetries        int           `yaml:"fetch_retries"`
	SearchDebounce      time.Duration `yaml:"search_debounce"`
	SearchRows          int           `yaml:"search_rows"`
	DownloadConcurrency int           `yaml:"download_concurrency"`

	ShareBaseURL string `yaml:"share_base_url"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	dataDir := filepath.Join(".", "paperstack")
	if homeDir, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(homeDir, ".local", "share", "paperstack")
	}
	return Config{
		DataDir:             dataDir,
		Backend:             BackendSQLite,
		DocumentsDir:        filepath.Join(dataDir, "documents"),
		CrossrefURL:         "https://api.crossref.org",
		ArxivURL:            "http://export.arxiv.org/api/query",
		FetchTimeout:        10 * time.Second,
		FetchRetries:        0,
		SearchDebounce:      400 * time.Millisecond,
		SearchRows:          10,
		DownloadConcurrency: 4,
		ShareBaseURL:        "https://paperstack.app/folder/",
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// LoadConfig reads config from the YAML file.
// Creates the file with defaults if it doesn't exist.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			config := DefaultConfig()
			// Non-fatal: return defaults even if save fails
			_ = SaveConfig(path, &config)
			return &config, nil
		}
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills fields missing from the file.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = defaults.DataDir
	}
	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.DocumentsDir == "" {
		c.DocumentsDir = filepath.Join(c.DataDir, "documents")
	}
	if c.CrossrefURL == "" {
		c.CrossrefURL = defaults.CrossrefURL
	}
	if c.ArxivURL == "" {
		c.ArxivURL = defaults.ArxivURL
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaults.FetchTimeout
	}
	if c.FetchRetries < 0 {
		c.FetchRetries = 0
	}
	if c.SearchDebounce <= 0 {
		c.SearchDebounce = defaults.SearchDebounce
	}
	if c.SearchRows <= 0 {
		c.SearchRows = defaults.SearchRows
	}
	if c.DownloadConcurrency <= 0 {
		c.DownloadConcurrency = defaults.DownloadConcurrency
	}
	if c.ShareBaseURL == "" {
		c.ShareBaseURL = defaults.ShareBaseURL
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaults.LogFormat
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendBolt, BackendJSON:
	default:
		return fmt.Errorf("unknown backend %q (want sqlite, bolt or json)", c.Backend)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	return nil
}

// SaveConfig writes config to the YAML file.
// Creates the directory if it doesn't exist.
func SaveConfig(path string, config *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfigFilePath returns the default config path: ~/.config/paperstack/config.yaml
func DefaultConfigFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "paperstack", "config.yaml"), nil
}

// OpenBackend opens the backend selected by the config inside DataDir.
func OpenBackend(cfg *Config) (Backend, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		return NewSQLiteBackend(filepath.Join(cfg.DataDir, "paperstack.db"))
	case BackendBolt:
		return NewBoltBackend(filepath.Join(cfg.DataDir, "paperstack.bolt"))
	case BackendJSON:
		return NewFileBackend(filepath.Join(cfg.DataDir, "collections"))
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
