package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Addr != ":5001" {
		t.Errorf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Embedder.Provider != "openai" || cfg.Embedder.Model != "text-embedding-ada-002" {
		t.Errorf("unexpected embedder defaults: %+v", cfg.Embedder)
	}
	if cfg.Generator.Model != "gpt-4" {
		t.Errorf("unexpected generator model: %s", cfg.Generator.Model)
	}
	if cfg.Catalog.PublicBaseURL != "http://localhost:5001/uploads" {
		t.Errorf("unexpected public base: %s", cfg.Catalog.PublicBaseURL)
	}
	if !cfg.Catalog.SyncOnStart || !cfg.Embedder.Cache {
		t.Error("sync on start and cache should default on")
	}
	if cfg.Chat.TopK != 3 {
		t.Errorf("unexpected top k: %d", cfg.Chat.TopK)
	}
}

func TestLoad_OverridesAndProviderDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  addr: ":8080"
embedder:
  provider: ollama
  cache: false
generator:
  provider: ollama
  model: mistral
sessions:
  driver: memory
  data_path: /var/lib/coursechat
chat:
  extra_prohibited_keywords: ["kubernetes"]
discord:
  enabled: true
`
	os.WriteFile(path, []byte(yaml), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Embedder.Model != "nomic-embed-text" {
		t.Errorf("ollama embedder should default to nomic-embed-text, got %s", cfg.Embedder.Model)
	}
	if cfg.Embedder.Cache {
		t.Error("cache should be disabled by file")
	}
	if cfg.Generator.Model != "mistral" {
		t.Errorf("unexpected generator model: %s", cfg.Generator.Model)
	}
	if cfg.Embedder.CachePath != "/var/lib/coursechat/embeddings" {
		t.Errorf("unexpected cache path: %s", cfg.Embedder.CachePath)
	}
	if len(cfg.Chat.ExtraKeywords) != 1 || !cfg.Discord.Enabled || cfg.Discord.Prefix != "!course" {
		t.Errorf("unexpected chat/discord config: %+v %+v", cfg.Chat, cfg.Discord)
	}
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("embedder:\n  provider: cohere\n"), 0644)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "cohere") {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("server: [unclosed"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSecretsFromEnv(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-123")
	t.Setenv("TEST_DISCORD", "tok")

	cfg := defaultConfig()
	cfg.OpenAI.APIKeyEnv = "TEST_OPENAI_KEY"
	cfg.Discord.TokenEnv = "TEST_DISCORD"

	if cfg.OpenAIKey() != "sk-123" || cfg.DiscordToken() != "tok" {
		t.Error("secrets should be read from configured env vars")
	}
}

func TestLoad_RetriesDefaultOffAndExplicitZeroKept(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Embedder.MaxRetries != 0 {
		t.Errorf("retries should default to 0, got %d", cfg.Embedder.MaxRetries)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("embedder:\n  max_retries: 0\n"), 0644)
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Embedder.MaxRetries != 0 {
		t.Errorf("explicit max_retries: 0 was overwritten with %d", cfg.Embedder.MaxRetries)
	}

	os.WriteFile(path, []byte("embedder:\n  max_retries: 2\n"), 0644)
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Embedder.MaxRetries != 2 {
		t.Errorf("expected 2 retries, got %d", cfg.Embedder.MaxRetries)
	}
}

func TestLoad_TemperatureZeroIsDistinctFromUnset(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Generator.Temperature != nil {
		t.Errorf("temperature should be unset by default, got %v", *cfg.Generator.Temperature)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("generator:\n  temperature: 0\n"), 0644)
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Generator.Temperature == nil || *cfg.Generator.Temperature != 0 {
		t.Errorf("explicit temperature 0 should be kept, got %v", cfg.Generator.Temperature)
	}
}
