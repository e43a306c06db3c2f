package usecases

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/campusify/coursechat/internal/domain/entities"
)

// mockEmbedder implements ports.EmbeddingService for testing
type mockEmbedder struct {
	mu      sync.Mutex
	calls   int
	embedFn func(text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.embedFn != nil {
		return m.embedFn(text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// keywordEmbedder maps text to a 3-d vector by keyword presence.
func keywordEmbedder(text string) ([]float32, error) {
	t := strings.ToLower(text)
	v := []float32{0, 0, 0}
	if strings.Contains(t, "tree") {
		v[0] = 1
	}
	if strings.Contains(t, "stack") {
		v[1] = 1
	}
	if strings.Contains(t, "queue") {
		v[2] = 1
	}
	return v, nil
}

// mockCompleter implements ports.CompletionService for testing
type mockCompleter struct {
	calls       int
	lastSystem  string
	lastContent string
	completeFn  func(system, content string) (string, error)
}

func (m *mockCompleter) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	m.calls++
	m.lastSystem = systemPrompt
	m.lastContent = userContent
	if m.completeFn != nil {
		return m.completeFn(systemPrompt, userContent)
	}
	return "mocked answer", nil
}

// mockExtractor implements ports.TextExtractor for testing
type mockExtractor struct {
	calls []string
	texts map[string]string
	fail  map[string]bool
}

func (m *mockExtractor) Extract(ctx context.Context, locator string) (string, error) {
	m.calls = append(m.calls, locator)
	if m.fail[locator] {
		return "", errors.New("corrupt pdf")
	}
	return m.texts[locator], nil
}

// mockCatalog implements ports.MaterialCatalog for testing
type mockCatalog struct {
	materials []entities.CourseMaterial
	lastQuery entities.MaterialQuery
	removed   []string
	findFn    func(q entities.MaterialQuery) ([]entities.CourseMaterial, error)
}

func (m *mockCatalog) FindMaterials(ctx context.Context, q entities.MaterialQuery) ([]entities.CourseMaterial, error) {
	m.lastQuery = q
	if m.findFn != nil {
		return m.findFn(q)
	}
	return m.materials, nil
}

func (m *mockCatalog) AddMaterial(ctx context.Context, mat *entities.CourseMaterial) error {
	for i := range m.materials {
		if m.materials[i].ID == mat.ID {
			m.materials[i] = *mat
			return nil
		}
	}
	m.materials = append(m.materials, *mat)
	return nil
}

func (m *mockCatalog) RemoveFile(ctx context.Context, fileName string) error {
	m.removed = append(m.removed, fileName)
	return nil
}

// mockStore implements ports.SessionStore for testing
type mockStore struct {
	mu       sync.Mutex
	sessions map[string]entities.ChatSession
	updates  int
	createFn func(s *entities.ChatSession) error
}

func newMockStore() *mockStore {
	return &mockStore{sessions: make(map[string]entities.ChatSession)}
}

func (m *mockStore) Create(ctx context.Context, s *entities.ChatSession) error {
	if m.createFn != nil {
		return m.createFn(s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(*s)
	return nil
}

func (m *mockStore) Get(ctx context.Context, id string) (*entities.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	c := cloneSession(s)
	return &c, nil
}

func (m *mockStore) Update(ctx context.Context, s *entities.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[s.ID]
	if !ok {
		return entities.ErrNotFound
	}
	if current.Version != s.Version {
		return entities.ErrConflict
	}
	s.Version++
	m.sessions[s.ID] = cloneSession(*s)
	m.updates++
	return nil
}

func (m *mockStore) ListByUser(ctx context.Context, userID string) ([]entities.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.ChatSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func cloneSession(s entities.ChatSession) entities.ChatSession {
	s.DocumentReferences = append([]string(nil), s.DocumentReferences...)
	s.Messages = append([]entities.Message(nil), s.Messages...)
	return s
}
