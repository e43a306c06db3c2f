// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	RequestTimeout  int      `yaml:"request_timeout_secs"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_secs"`
	MaxUploadMB     int64    `yaml:"max_upload_mb"`
}

// OpenAIConfig holds credentials shared by the OpenAI embedder and generator.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OllamaConfig points at a local Ollama daemon.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
}

// EmbedderConfig selects the embedding provider.
type EmbedderConfig struct {
	Provider    string `yaml:"provider"` // openai | ollama
	Model       string `yaml:"model"`
	MaxParallel int    `yaml:"max_parallel"`
	MaxRetries  int    `yaml:"max_retries"` // 0 disables retries
	CachePath   string `yaml:"cache_path"`
	Cache       bool   `yaml:"cache"`
}

// GeneratorConfig selects the completion provider.
type GeneratorConfig struct {
	Provider    string   `yaml:"provider"` // openai | ollama
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"` // unset keeps the provider default
}

// PDFServiceConfig configures the external PDF text-extraction service.
type PDFServiceConfig struct {
	URL         string `yaml:"url"`
	AutoStart   bool   `yaml:"auto_start"`
	ScriptDir   string `yaml:"script_dir"`
	Python      string `yaml:"python"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// CatalogConfig configures where course material lives and how it is served.
type CatalogConfig struct {
	UploadsDir    string   `yaml:"uploads_dir"`
	PublicBaseURL string   `yaml:"public_base_url"`
	Extensions    []string `yaml:"extensions"`
	SyncOnStart   bool     `yaml:"sync_on_start"`
	Watch         bool     `yaml:"watch"`
}

// SessionsConfig selects the session/catalog store.
type SessionsConfig struct {
	Driver   string `yaml:"driver"` // sqlite | memory
	DataPath string `yaml:"data_path"`
}

// ChatConfig tunes the question pipeline.
type ChatConfig struct {
	TopK               int      `yaml:"top_k"`
	SystemPrompt       string   `yaml:"system_prompt"`
	RefusalMessage     string   `yaml:"refusal_message"`
	ExtraKeywords      []string `yaml:"extra_prohibited_keywords"`
	AskTimeoutSecs     int      `yaml:"ask_timeout_secs"`
	MaxDocumentSizeMB  int64    `yaml:"max_document_size_mb"`
	ExtractTimeoutSecs int      `yaml:"extract_timeout_secs"`
}

// DiscordConfig enables the optional Discord bot.
type DiscordConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
	Prefix   string `yaml:"prefix"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Generator  GeneratorConfig  `yaml:"generator"`
	PDFService PDFServiceConfig `yaml:"pdf_service"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Chat       ChatConfig       `yaml:"chat"`
	Discord    DiscordConfig    `yaml:"discord"`
}

// Load reads a config from path. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	cfg := baseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unknown embedder provider %q", c.Embedder.Provider)
	}
	switch c.Generator.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unknown generator provider %q", c.Generator.Provider)
	}
	switch c.Sessions.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown sessions driver %q", c.Sessions.Driver)
	}
	return nil
}

// OpenAIKey reads the OpenAI API key from the configured environment variable.
func (c *AppConfig) OpenAIKey() string {
	return os.Getenv(c.OpenAI.APIKeyEnv)
}

// DiscordToken reads the bot token from the configured environment variable.
func (c *AppConfig) DiscordToken() string {
	return os.Getenv(c.Discord.TokenEnv)
}

// Seconds converts a config value in seconds to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func defaultConfig() *AppConfig {
	cfg := baseConfig()
	applyConfigDefaults(cfg)
	return cfg
}

// baseConfig holds the switches that default to on; YAML can only turn them off
// if they are set before decoding.
func baseConfig() *AppConfig {
	return &AppConfig{
		Catalog:  CatalogConfig{SyncOnStart: true},
		Embedder: EmbedderConfig{Cache: true},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5001"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 15
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 5
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 100
	}

	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = 60
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = "http://localhost:11434"
	}

	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = "openai"
	}
	if cfg.Embedder.Model == "" {
		if cfg.Embedder.Provider == "ollama" {
			cfg.Embedder.Model = "nomic-embed-text"
		} else {
			cfg.Embedder.Model = "text-embedding-ada-002"
		}
	}
	if cfg.Embedder.MaxParallel == 0 {
		cfg.Embedder.MaxParallel = 4
	}
	if cfg.Embedder.MaxRetries < 0 {
		cfg.Embedder.MaxRetries = 0
	}

	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = "openai"
	}
	if cfg.Generator.Model == "" {
		if cfg.Generator.Provider == "ollama" {
			cfg.Generator.Model = "llama3.2"
		} else {
			cfg.Generator.Model = "gpt-4"
		}
	}

	if cfg.PDFService.URL == "" {
		cfg.PDFService.URL = "http://localhost:8081"
	}
	if cfg.PDFService.ScriptDir == "" {
		cfg.PDFService.ScriptDir = "./scripts"
	}
	if cfg.PDFService.Python == "" {
		cfg.PDFService.Python = "python3"
	}
	if cfg.PDFService.TimeoutSecs == 0 {
		cfg.PDFService.TimeoutSecs = 60
	}

	if cfg.Catalog.UploadsDir == "" {
		cfg.Catalog.UploadsDir = "./uploads"
	}
	if cfg.Catalog.PublicBaseURL == "" {
		cfg.Catalog.PublicBaseURL = "http://localhost:5001/uploads"
	}
	if len(cfg.Catalog.Extensions) == 0 {
		cfg.Catalog.Extensions = []string{".pdf"}
	}

	if cfg.Sessions.Driver == "" {
		cfg.Sessions.Driver = "sqlite"
	}
	if cfg.Sessions.DataPath == "" {
		cfg.Sessions.DataPath = "./data"
	}
	if cfg.Embedder.CachePath == "" {
		cfg.Embedder.CachePath = cfg.Sessions.DataPath + "/embeddings"
	}

	if cfg.Chat.TopK == 0 {
		cfg.Chat.TopK = 3
	}
	if cfg.Chat.AskTimeoutSecs == 0 {
		cfg.Chat.AskTimeoutSecs = 120
	}
	if cfg.Chat.MaxDocumentSizeMB == 0 {
		cfg.Chat.MaxDocumentSizeMB = 50
	}
	if cfg.Chat.ExtractTimeoutSecs == 0 {
		cfg.Chat.ExtractTimeoutSecs = 60
	}

	if cfg.Discord.TokenEnv == "" {
		cfg.Discord.TokenEnv = "DISCORD_BOT_TOKEN"
	}
	if cfg.Discord.Prefix == "" {
		cfg.Discord.Prefix = "!course"
	}
}
