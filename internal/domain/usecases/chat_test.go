package usecases

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/campusify/coursechat/internal/domain/entities"
)

const dsDoc = "http://localhost:5001/uploads/ds_unit2.pdf"

func seedSession(store *mockStore, refs ...string) {
	store.sessions["chat-1"] = entities.ChatSession{
		ID:                 "chat-1",
		UserID:             "u1",
		Year:               "2nd Year",
		Semester:           "1st Semester",
		Subject:            "Data Structures",
		Regulation:         "R20",
		CreatedAt:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DocumentReferences: refs,
		Messages:           []entities.Message{},
	}
}

func newTestChat(store *mockStore, extractor *mockExtractor, embedder *mockEmbedder, completer *mockCompleter) *ChatUseCase {
	return NewChatUseCase(
		store,
		extractor,
		NewRanker(embedder, 3, 2),
		completer,
		NewKeywordPolicy(DefaultProhibitedKeywords),
		ChatOptions{},
	)
}

func TestChatUseCase_AnswersFromRankedContext(t *testing.T) {
	store := newMockStore()
	seedSession(store, dsDoc)
	extractor := &mockExtractor{texts: map[string]string{
		dsDoc: "A queue is FIFO.\n\nA stack is a LIFO structure.\n\nTrees have roots.\n\nStack overflow happens when a stack is full.",
	}}
	embedder := &mockEmbedder{embedFn: keywordEmbedder}
	completer := &mockCompleter{completeFn: func(system, content string) (string, error) {
		return "A stack is a LIFO data structure.", nil
	}}
	uc := newTestChat(store, extractor, embedder, completer)

	answer, err := uc.AskQuestion(context.Background(), "chat-1", "What is a stack?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	if answer.Response != "A stack is a LIFO data structure." || answer.Refused {
		t.Errorf("unexpected answer: %+v", answer)
	}
	if completer.lastSystem != DefaultSystemPrompt {
		t.Errorf("unexpected system prompt: %q", completer.lastSystem)
	}
	if !strings.HasPrefix(completer.lastContent, "Context:\nA stack is a LIFO structure.") {
		t.Errorf("most similar chunk should lead the context, got %q", completer.lastContent)
	}
	if !strings.HasSuffix(completer.lastContent, "\n\nQuestion: What is a stack?") {
		t.Errorf("question should close the user content, got %q", completer.lastContent)
	}

	saved := store.sessions["chat-1"]
	if len(saved.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(saved.Messages))
	}
	if saved.Messages[0].Role != entities.RoleUser || saved.Messages[0].Content != "What is a stack?" {
		t.Errorf("unexpected user message: %+v", saved.Messages[0])
	}
	if saved.Messages[1].Role != entities.RoleSystem || saved.Messages[1].Content != answer.Response {
		t.Errorf("unexpected system message: %+v", saved.Messages[1])
	}
	if saved.Messages[0].SubjectDetails.Subject != "Data Structures" {
		t.Errorf("messages should carry subject details, got %+v", saved.Messages[0].SubjectDetails)
	}
}

func TestChatUseCase_RefusesProhibitedQuestion(t *testing.T) {
	store := newMockStore()
	seedSession(store, dsDoc)
	extractor := &mockExtractor{}
	embedder := &mockEmbedder{}
	completer := &mockCompleter{}
	uc := newTestChat(store, extractor, embedder, completer)

	answer, err := uc.AskQuestion(context.Background(), "chat-1", "What is your tech stack?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	if !answer.Refused || answer.Response != DefaultRefusalMessage {
		t.Errorf("expected refusal, got %+v", answer)
	}
	if len(extractor.calls) != 0 || embedder.callCount() != 0 || completer.calls != 0 {
		t.Error("refusal must not reach extraction, embedding or generation")
	}
	saved := store.sessions["chat-1"]
	if len(saved.Messages) != 2 || saved.Messages[1].Content != DefaultRefusalMessage {
		t.Errorf("refusal should be recorded, got %+v", saved.Messages)
	}
}

func TestChatUseCase_SkipsDocumentsThatFailExtraction(t *testing.T) {
	store := newMockStore()
	seedSession(store, "bad.pdf", "good.pdf")
	extractor := &mockExtractor{
		texts: map[string]string{"good.pdf": "A stack is LIFO."},
		fail:  map[string]bool{"bad.pdf": true},
	}
	completer := &mockCompleter{}
	uc := newTestChat(store, extractor, &mockEmbedder{embedFn: keywordEmbedder}, completer)

	if _, err := uc.AskQuestion(context.Background(), "chat-1", "stack?"); err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	if len(extractor.calls) != 2 || extractor.calls[0] != "bad.pdf" || extractor.calls[1] != "good.pdf" {
		t.Errorf("documents should be extracted in order, got %v", extractor.calls)
	}
	if !strings.Contains(completer.lastContent, "A stack is LIFO.") {
		t.Errorf("surviving document should reach the context, got %q", completer.lastContent)
	}
}

func TestChatUseCase_AllExtractionFailsStillAnswers(t *testing.T) {
	store := newMockStore()
	seedSession(store, "bad.pdf")
	extractor := &mockExtractor{fail: map[string]bool{"bad.pdf": true}}
	completer := &mockCompleter{}
	uc := newTestChat(store, extractor, &mockEmbedder{}, completer)

	answer, err := uc.AskQuestion(context.Background(), "chat-1", "anything?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if answer.Response != "mocked answer" {
		t.Errorf("unexpected answer: %s", answer.Response)
	}
	if completer.lastContent != "Context:\n\n\nQuestion: anything?" {
		t.Errorf("expected empty context, got %q", completer.lastContent)
	}
}

func TestChatUseCase_QuestionEmbeddingFailure(t *testing.T) {
	store := newMockStore()
	seedSession(store, dsDoc)
	extractor := &mockExtractor{texts: map[string]string{dsDoc: "text"}}
	embedder := &mockEmbedder{embedFn: func(text string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	}}
	completer := &mockCompleter{}
	uc := newTestChat(store, extractor, embedder, completer)

	_, err := uc.AskQuestion(context.Background(), "chat-1", "What is a stack?")
	if !errors.Is(err, entities.ErrEmbeddingFailed) {
		t.Errorf("expected embedding failure, got %v", err)
	}
	if completer.calls != 0 {
		t.Error("generation should not run")
	}
	if len(store.sessions["chat-1"].Messages) != 0 {
		t.Error("failed question must not be recorded")
	}
}

func TestChatUseCase_GenerationFailure(t *testing.T) {
	store := newMockStore()
	seedSession(store, dsDoc)
	extractor := &mockExtractor{texts: map[string]string{dsDoc: "text"}}
	completer := &mockCompleter{completeFn: func(system, content string) (string, error) {
		return "", errors.New("rate limited")
	}}
	uc := newTestChat(store, extractor, &mockEmbedder{}, completer)

	_, err := uc.AskQuestion(context.Background(), "chat-1", "What is a stack?")
	if !errors.Is(err, entities.ErrGenerationFailed) {
		t.Errorf("expected generation failure, got %v", err)
	}
	if store.updates != 0 || len(store.sessions["chat-1"].Messages) != 0 {
		t.Error("failed question must not be recorded")
	}
}

func TestChatUseCase_UnknownSession(t *testing.T) {
	uc := newTestChat(newMockStore(), &mockExtractor{}, &mockEmbedder{}, &mockCompleter{})

	_, err := uc.AskQuestion(context.Background(), "nope", "What is a stack?")
	if !errors.Is(err, entities.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestChatUseCase_InvalidRequest(t *testing.T) {
	uc := newTestChat(newMockStore(), &mockExtractor{}, &mockEmbedder{}, &mockCompleter{})

	if _, err := uc.AskQuestion(context.Background(), "chat-1", "  "); !errors.Is(err, entities.ErrInvalidRequest) {
		t.Errorf("blank question should be invalid, got %v", err)
	}
	if _, err := uc.AskQuestion(context.Background(), "", "q"); !errors.Is(err, entities.ErrInvalidRequest) {
		t.Errorf("blank chat ID should be invalid, got %v", err)
	}
}

func TestChatUseCase_SessionWithoutReferences(t *testing.T) {
	store := newMockStore()
	seedSession(store)
	completer := &mockCompleter{}
	uc := newTestChat(store, &mockExtractor{}, &mockEmbedder{}, completer)

	_, err := uc.AskQuestion(context.Background(), "chat-1", "What is a stack?")
	if !errors.Is(err, entities.ErrNoMaterialFound) {
		t.Errorf("expected no material, got %v", err)
	}
	if completer.calls != 0 {
		t.Error("generation should not run")
	}
}

func TestChatUseCase_ConcurrentQuestionsAreSerialized(t *testing.T) {
	store := newMockStore()
	seedSession(store, dsDoc)
	extractor := &mockExtractor{texts: map[string]string{dsDoc: "A stack is LIFO."}}

	var mu sync.Mutex
	completer := &mockCompleter{completeFn: func(system, content string) (string, error) {
		return "answer to " + content[strings.LastIndex(content, " ")+1:], nil
	}}
	guarded := &lockedCompleter{mu: &mu, next: completer}
	uc := NewChatUseCase(store, extractor, NewRanker(&mockEmbedder{}, 3, 2), guarded,
		NewKeywordPolicy(DefaultProhibitedKeywords), ChatOptions{})

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := uc.AskQuestion(context.Background(), "chat-1", "question-"+string(rune('a'+i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent ask failed: %v", err)
		}
	}

	saved := store.sessions["chat-1"]
	if len(saved.Messages) != 2*n {
		t.Fatalf("expected %d messages, got %d", 2*n, len(saved.Messages))
	}
	for i := 0; i < len(saved.Messages); i += 2 {
		q, a := saved.Messages[i], saved.Messages[i+1]
		if q.Role != entities.RoleUser || a.Role != entities.RoleSystem {
			t.Fatalf("messages %d,%d not a user/system pair", i, i+1)
		}
		if a.Content != "answer to "+q.Content {
			t.Errorf("answer %q does not follow its question %q", a.Content, q.Content)
		}
	}
}

func TestChatUseCase_CustomOptions(t *testing.T) {
	store := newMockStore()
	seedSession(store, dsDoc)
	completer := &mockCompleter{}
	uc := NewChatUseCase(store, &mockExtractor{texts: map[string]string{dsDoc: "x"}},
		NewRanker(&mockEmbedder{}, 1, 1), completer, NewKeywordPolicy([]string{"exam answers"}),
		ChatOptions{SystemPrompt: "Be brief.", RefusalMessage: "No."})

	answer, err := uc.AskQuestion(context.Background(), "chat-1", "Give me the exam answers")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if answer.Response != "No." {
		t.Errorf("expected custom refusal, got %q", answer.Response)
	}

	if _, err := uc.AskQuestion(context.Background(), "chat-1", "What is a stack?"); err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if completer.lastSystem != "Be brief." {
		t.Errorf("expected custom system prompt, got %q", completer.lastSystem)
	}
}

// lockedCompleter guards a mockCompleter for concurrent use.
type lockedCompleter struct {
	mu   *sync.Mutex
	next *mockCompleter
}

func (l *lockedCompleter) Complete(ctx context.Context, system, content string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next.Complete(ctx, system, content)
}
