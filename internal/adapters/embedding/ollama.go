// Package embedding provides the embedding adapters.
// Clean Architecture: adapters implement ports.EmbeddingService.
// They know about Ollama and OpenAI specifics but the domain layer doesn't.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// OllamaAdapter implements ports.EmbeddingService using Ollama API.
type OllamaAdapter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaAdapter creates a new Ollama embedding adapter.
func NewOllamaAdapter(baseURL, model string) *OllamaAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaAdapter{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Model returns the embedding model name.
func (a *OllamaAdapter) Model() string { return a.model }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Embed generates an embedding for a single text.
func (a *OllamaAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(ollamaEmbedRequest{
		Model:  a.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		log.Printf("[ERROR] Ollama embedding call failed: %v", err)
		return nil, fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	var embedResp ollamaEmbedResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&embedResp)

	if resp.StatusCode != http.StatusOK {
		if embedResp.Error != "" {
			return nil, fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, embedResp.Error)
		}
		return nil, fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding response: %w", decodeErr)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, errors.New("Ollama returned an empty embedding")
	}

	log.Printf("[DEBUG] Got %d-dim embedding from %s", len(embedResp.Embedding), a.model)
	return embedResp.Embedding, nil
}
