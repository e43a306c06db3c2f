// Package llm provides the completion adapters.
// Clean Architecture: adapters implementing ports.CompletionService.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// OllamaConfig configures the Ollama generator. A zero MaxTokens or nil
// Temperature leaves the model's own default in place.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// OllamaLLMAdapter implements ports.CompletionService using Ollama API.
type OllamaLLMAdapter struct {
	baseURL string
	model   string
	options *ollamaOptions
	client  *http.Client
}

// NewOllamaLLMAdapter creates a new Ollama LLM adapter.
func NewOllamaLLMAdapter(cfg OllamaConfig) *OllamaLLMAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second // local models can be slow to load
	}

	var opts *ollamaOptions
	if cfg.MaxTokens > 0 || cfg.Temperature != nil {
		opts = &ollamaOptions{NumPredict: cfg.MaxTokens, Temperature: cfg.Temperature}
	}

	return &OllamaLLMAdapter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		options: opts,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type ollamaOptions struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Complete sends one non-streaming generate request.
func (a *OllamaLLMAdapter) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	jsonData, err := json.Marshal(ollamaGenerateRequest{
		Model:   a.model,
		System:  systemPrompt,
		Prompt:  userContent,
		Stream:  false,
		Options: a.options,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	var genResp ollamaGenerateResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&genResp)

	if resp.StatusCode != http.StatusOK {
		if genResp.Error != "" {
			return "", fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, genResp.Error)
		}
		return "", fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decoding response: %w", decodeErr)
	}
	if strings.TrimSpace(genResp.Response) == "" {
		return "", errors.New("Ollama returned an empty response")
	}

	log.Printf("[DEBUG] Ollama %s answered in %s", a.model, time.Since(start).Round(time.Millisecond))
	return strings.TrimSpace(genResp.Response), nil
}
