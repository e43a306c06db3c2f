package usecases

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/campusify/coursechat/internal/domain/entities"
	"github.com/campusify/coursechat/internal/domain/ports"
)

// DefaultSystemPrompt is the persona sent with every completion request.
const DefaultSystemPrompt = "You are Campusify Bot, a helpful assistant. " +
	"You should provide clear and concise answers to the user's questions " +
	"without revealing any information about your technical stack or internal implementations."

// ChatOptions tunes the question pipeline. Zero values use the defaults.
type ChatOptions struct {
	SystemPrompt   string
	RefusalMessage string
}

// ChatUseCase answers questions inside a chat session.
type ChatUseCase struct {
	store     ports.SessionStore
	extractor ports.TextExtractor
	ranker    *Ranker
	completer ports.CompletionService
	policy    ports.ContentPolicy

	systemPrompt string
	refusal      string

	locks sessionLocks
}

// NewChatUseCase creates a ChatUseCase with injected dependencies.
func NewChatUseCase(
	store ports.SessionStore,
	extractor ports.TextExtractor,
	ranker *Ranker,
	completer ports.CompletionService,
	policy ports.ContentPolicy,
	opts ChatOptions,
) *ChatUseCase {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.RefusalMessage == "" {
		opts.RefusalMessage = DefaultRefusalMessage
	}
	return &ChatUseCase{
		store:        store,
		extractor:    extractor,
		ranker:       ranker,
		completer:    completer,
		policy:       policy,
		systemPrompt: opts.SystemPrompt,
		refusal:      opts.RefusalMessage,
	}
}

// AskQuestion runs policy check, extraction, ranking and synthesis for one
// question, then appends the question and answer to the session.
// Questions for the same session are handled one at a time.
func (uc *ChatUseCase) AskQuestion(ctx context.Context, sessionID, question string) (*entities.Answer, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: chat ID and question are required", entities.ErrInvalidRequest)
	}

	unlock := uc.locks.lock(sessionID)
	defer unlock()

	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if uc.policy != nil && uc.policy.IsProhibited(question) {
		log.Printf("[INFO] Refusing prohibited question in session %s", sessionID)
		session.AppendExchange(question, uc.refusal)
		if err := uc.store.Update(ctx, session); err != nil {
			return nil, fmt.Errorf("saving session: %w", err)
		}
		return &entities.Answer{Response: uc.refusal, Refused: true}, nil
	}

	if len(session.DocumentReferences) == 0 {
		return nil, entities.ErrNoMaterialFound
	}

	chunks := uc.collectChunks(ctx, session.DocumentReferences)

	ranked, err := uc.ranker.Rank(ctx, question, chunks)
	if err != nil {
		return nil, err
	}

	answer, err := uc.completer.Complete(ctx, uc.systemPrompt, BuildUserContent(JoinContext(ranked), question))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrGenerationFailed, err)
	}

	session.AppendExchange(question, answer)
	if err := uc.store.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	log.Printf("[OK] Answered question in session %s from %d chunks (%d ranked)", sessionID, len(chunks), len(ranked))
	return &entities.Answer{Response: answer}, nil
}

// collectChunks extracts every document in order. A document that fails
// extraction is logged and skipped.
func (uc *ChatUseCase) collectChunks(ctx context.Context, refs []string) []string {
	var chunks []string
	for _, ref := range refs {
		text, err := uc.extractor.Extract(ctx, ref)
		if err != nil {
			log.Printf("[ERROR] Extracting text from %s: %v", ref, err)
			continue
		}
		chunks = append(chunks, SplitChunks(text)...)
	}
	return chunks
}

// BuildUserContent formats the user turn sent to the completion service.
func BuildUserContent(contextText, question string) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}

// sessionLocks hands out one mutex per session ID, dropping it when unused.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sessionLock)
	}
	entry, ok := l.locks[id]
	if !ok {
		entry = &sessionLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
