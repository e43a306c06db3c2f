// Package ports defines interfaces for external dependencies.
// Use cases depend on these abstractions; adapters implement them.
package ports

import (
	"context"

	"github.com/campusify/coursechat/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionService produces an answer from a system instruction and a user turn.
type CompletionService interface {
	// Complete sends a single completion request and returns the generated text.
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
}

// TextExtractor pulls plain text out of a stored document.
type TextExtractor interface {
	// Extract returns the text content of the document at locator (URL or path).
	Extract(ctx context.Context, locator string) (string, error)
}

// DocumentParser extracts text from binary document formats.
type DocumentParser interface {
	// Parse extracts text content from document bytes.
	Parse(ctx context.Context, data []byte, filename string) (string, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf").
	SupportedFormats() []string
}

// MaterialCatalog is the course-material catalog.
type MaterialCatalog interface {
	// FindMaterials returns matching materials in catalog order, each with resolved file URLs.
	FindMaterials(ctx context.Context, q entities.MaterialQuery) ([]entities.CourseMaterial, error)

	// AddMaterial registers a material and its files, replacing any material with
	// the same ID. An empty ID is assigned by the catalog.
	AddMaterial(ctx context.Context, m *entities.CourseMaterial) error

	// RemoveFile drops a file by name from every material, deleting materials left empty.
	RemoveFile(ctx context.Context, fileName string) error
}

// SessionStore persists chat sessions.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Create persists a new session.
	Create(ctx context.Context, s *entities.ChatSession) error

	// Get loads a session by ID. Returns entities.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*entities.ChatSession, error)

	// Update writes the whole session back. The write succeeds only if the stored
	// version equals s.Version; on success s.Version is incremented.
	// A stale write returns entities.ErrConflict.
	Update(ctx context.Context, s *entities.ChatSession) error

	// ListByUser returns the sessions owned by userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]entities.ChatSession, error)
}

// ContentPolicy decides whether a question must be refused before retrieval.
type ContentPolicy interface {
	IsProhibited(question string) bool
}

// FileWatcher monitors a directory tree for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
