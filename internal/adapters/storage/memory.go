package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campusify/coursechat/internal/domain/entities"
)

// InMemoryStore keeps sessions and materials in process memory.
// Useful for tests and throwaway deployments.
type InMemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]entities.ChatSession
	materials []entities.CourseMaterial
	baseURL   string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(publicBaseURL string) *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]entities.ChatSession),
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
	}
}

// Ping always succeeds.
func (s *InMemoryStore) Ping(ctx context.Context) error { return nil }

// Create persists a new session.
func (s *InMemoryStore) Create(ctx context.Context, session *entities.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("%w: session %s already exists", entities.ErrConflict, session.ID)
	}
	s.sessions[session.ID] = copySession(*session)
	return nil
}

// Get loads a session by ID.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*entities.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	c := copySession(session)
	return &c, nil
}

// Update stores the session's messages if the version still matches.
func (s *InMemoryStore) Update(ctx context.Context, session *entities.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.ID]
	if !ok {
		return entities.ErrNotFound
	}
	if current.Version != session.Version {
		return entities.ErrConflict
	}

	current.Messages = append([]entities.Message{}, session.Messages...)
	current.Version++
	s.sessions[session.ID] = current
	session.Version = current.Version
	return nil
}

// ListByUser returns the user's sessions, newest first.
func (s *InMemoryStore) ListByUser(ctx context.Context, userID string) ([]entities.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entities.ChatSession
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, copySession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FindMaterials returns matching materials in insertion order.
func (s *InMemoryStore) FindMaterials(ctx context.Context, q entities.MaterialQuery) ([]entities.CourseMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entities.CourseMaterial
	for _, m := range s.materials {
		if !matches(q.Year, m.Year) || !matches(q.Semester, m.Semester) ||
			!matches(q.Subject, m.Subject) || !matches(q.Units, m.Units) {
			continue
		}
		out = append(out, s.withURLs(m))
	}
	return out, nil
}

// AddMaterial inserts or replaces a material by ID.
func (s *InMemoryStore) AddMaterial(ctx context.Context, m *entities.CourseMaterial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.UploadedAt.IsZero() {
		m.UploadedAt = time.Now().UTC()
	}

	stored := *m
	stored.Files = append([]entities.MaterialFile(nil), m.Files...)

	replaced := false
	for i := range s.materials {
		if s.materials[i].ID == m.ID {
			stored.UploadedAt = s.materials[i].UploadedAt
			s.materials[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		s.materials = append(s.materials, stored)
	}

	for i := range m.Files {
		if m.Files[i].FileURL == "" {
			m.Files[i].FileURL = PublicURL(s.baseURL, m.Files[i].FileName)
		}
	}
	return nil
}

// RemoveFile drops a file from every material, deleting emptied materials.
func (s *InMemoryStore) RemoveFile(ctx context.Context, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.materials[:0]
	for _, m := range s.materials {
		files := m.Files[:0]
		for _, f := range m.Files {
			if f.FileName != fileName {
				files = append(files, f)
			}
		}
		m.Files = files
		if len(m.Files) > 0 {
			kept = append(kept, m)
		}
	}
	s.materials = kept
	return nil
}

func (s *InMemoryStore) withURLs(m entities.CourseMaterial) entities.CourseMaterial {
	files := make([]entities.MaterialFile, len(m.Files))
	for i, f := range m.Files {
		if f.FileURL == "" {
			f.FileURL = PublicURL(s.baseURL, f.FileName)
		}
		files[i] = f
	}
	m.Files = files
	return m
}

func matches(want, got string) bool {
	return want == "" || want == got
}

func copySession(s entities.ChatSession) entities.ChatSession {
	s.DocumentReferences = append([]string(nil), s.DocumentReferences...)
	s.Messages = append([]entities.Message{}, s.Messages...)
	return s
}
