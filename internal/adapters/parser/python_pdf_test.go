package parser

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPythonPDFParser_Parse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/parse" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "fake pdf" {
			t.Errorf("unexpected body: %q", body)
		}
		if r.Header.Get("X-Filename") != "test.pdf" {
			t.Errorf("missing filename header")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":  "Hello from PDF",
			"pages": 1,
		})
	}))
	defer server.Close()

	parser := NewPythonPDFParser(server.URL, 0)
	text, err := parser.Parse(context.Background(), []byte("fake pdf"), "test.pdf")

	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if text != "Hello from PDF" {
		t.Errorf("unexpected text: %s", text)
	}
}

func TestPythonPDFParser_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "parsing failed",
			"text":  "",
		})
	}))
	defer server.Close()

	parser := NewPythonPDFParser(server.URL, 0)
	if _, err := parser.Parse(context.Background(), []byte("bad"), "test.pdf"); err == nil {
		t.Error("should error on parse failure")
	}
}

func TestPythonPDFParser_NonJSONFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	parser := NewPythonPDFParser(server.URL, 0)
	if _, err := parser.Parse(context.Background(), []byte("x"), "x.pdf"); err == nil {
		t.Error("should error on non-JSON failure")
	}
}

func TestPythonPDFParser_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	parser := NewPythonPDFParser(server.URL, 0)
	if !parser.IsServiceHealthy(context.Background()) {
		t.Error("expected healthy service")
	}
	if err := parser.WaitHealthy(context.Background(), time.Second); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestPythonPDFParser_WaitHealthyTimesOut(t *testing.T) {
	parser := NewPythonPDFParser("http://127.0.0.1:1", time.Second)
	if err := parser.WaitHealthy(context.Background(), 300*time.Millisecond); err == nil {
		t.Error("expected timeout")
	}
}

func TestPythonPDFParser_StartServiceMissingScript(t *testing.T) {
	parser := NewPythonPDFParser("", 0)
	if _, err := parser.StartService(context.Background(), "", t.TempDir(), time.Second); err == nil {
		t.Error("should fail without pdf_service.py")
	}
}

func TestPythonPDFParser_DefaultValues(t *testing.T) {
	parser := NewPythonPDFParser("", 0)
	if parser.serviceURL != "http://localhost:8081" {
		t.Errorf("unexpected default URL: %s", parser.serviceURL)
	}
	if formats := parser.SupportedFormats(); len(formats) != 1 || formats[0] != "pdf" {
		t.Errorf("unexpected formats: %v", formats)
	}
}
