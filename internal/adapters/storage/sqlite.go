// Package storage provides persistence adapters for chat sessions and the
// course-material catalog.
// SQLiteStore implements ports.SessionStore and ports.MaterialCatalog on one
// database file; InMemoryStore does the same without persistence.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore persists sessions and materials in SQLite.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	dataPath string
	baseURL  string
}

// NewSQLiteStore opens (or creates) coursechat.db under dataPath.
// publicBaseURL is prefixed to stored file names to form file URLs.
func NewSQLiteStore(dataPath, publicBaseURL string) (*SQLiteStore, error) {
	if dataPath == "" {
		dataPath = "./data"
	}

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "coursechat.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:       db,
		dataPath: dataPath,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
	}

	if err := store.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		year TEXT NOT NULL,
		semester TEXT NOT NULL,
		subject TEXT NOT NULL,
		regulation TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		document_refs TEXT NOT NULL,
		messages TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON chat_sessions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS materials (
		id TEXT PRIMARY KEY,
		year TEXT NOT NULL,
		semester TEXT NOT NULL,
		regulation TEXT NOT NULL,
		course TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL,
		units TEXT NOT NULL,
		uploaded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_materials_lookup ON materials(year, semester, subject, units);

	CREATE TABLE IF NOT EXISTS material_files (
		material_id TEXT NOT NULL REFERENCES materials(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		file_name TEXT NOT NULL,
		file_url TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (material_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_material_files_name ON material_files(file_name);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PublicURL builds the URL a stored file is served from. Names that already
// carry a scheme are returned unchanged.
func PublicURL(baseURL, fileName string) string {
	if strings.Contains(fileName, "://") {
		return fileName
	}
	segments := strings.Split(strings.TrimLeft(filepath.ToSlash(fileName), "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.Join(segments, "/")
}
