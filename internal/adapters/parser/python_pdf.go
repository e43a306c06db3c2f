// Package parser provides document parsing adapters.
// The PDF parser calls an external Python extraction service over HTTP.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// PythonPDFParser implements ports.DocumentParser using the Python PDF service.
type PythonPDFParser struct {
	serviceURL string
	client     *http.Client
}

// NewPythonPDFParser creates a new PDF parser that calls the Python service.
func NewPythonPDFParser(serviceURL string, timeout time.Duration) *PythonPDFParser {
	if serviceURL == "" {
		serviceURL = "http://localhost:8081"
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &PythonPDFParser{
		serviceURL: serviceURL,
		client:     &http.Client{Timeout: timeout},
	}
}

type parseResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
	Error string `json:"error,omitempty"`
}

// Parse extracts text from PDF bytes.
func (p *PythonPDFParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("X-Filename", filename)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling PDF service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("PDF parse error for %s: %s", filename, result.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("PDF service returned status %d", resp.StatusCode)
	}

	log.Printf("[DEBUG] Parsed %s: %d pages, %d chars", filename, result.Pages, len(result.Text))
	return result.Text, nil
}

// SupportedFormats returns formats this parser handles.
func (p *PythonPDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// StartService launches the Python service script from dir and waits until
// it answers health checks. The returned function stops it.
func (p *PythonPDFParser) StartService(ctx context.Context, python, dir string, wait time.Duration) (func(), error) {
	scriptPath := filepath.Join(dir, "pdf_service.py")
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("pdf_service.py not found at %s: %w", scriptPath, err)
	}
	if python == "" {
		python = "python3"
	}

	cmd := exec.Command(python, scriptPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting Python service: %w", err)
	}

	stop := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
	}

	if err := p.WaitHealthy(ctx, wait); err != nil {
		stop()
		return nil, err
	}
	log.Printf("[OK] PDF service started (pid %d)", cmd.Process.Pid)
	return stop, nil
}

// WaitHealthy polls the health endpoint until it succeeds or wait elapses.
func (p *PythonPDFParser) WaitHealthy(ctx context.Context, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.IsServiceHealthy(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("PDF service at %s not healthy: %w", p.serviceURL, ctx.Err())
		case <-ticker.C:
		}
	}
}

// IsServiceHealthy checks if the Python service is running.
func (p *PythonPDFParser) IsServiceHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serviceURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
