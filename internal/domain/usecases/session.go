package usecases

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusify/coursechat/internal/domain/entities"
	"github.com/campusify/coursechat/internal/domain/ports"
)

// SessionUseCase starts chat sessions and serves their history.
type SessionUseCase struct {
	catalog ports.MaterialCatalog
	store   ports.SessionStore
	now     func() time.Time
	newID   func() string
}

// NewSessionUseCase creates a SessionUseCase with injected dependencies.
func NewSessionUseCase(catalog ports.MaterialCatalog, store ports.SessionStore) *SessionUseCase {
	return &SessionUseCase{
		catalog: catalog,
		store:   store,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// StartSession resolves course material for the filter and creates a session
// referencing every matching file.
func (uc *SessionUseCase) StartSession(ctx context.Context, filter entities.SessionFilter, userID string) (*entities.SessionSummary, error) {
	missing := filter.MissingFields()
	if strings.TrimSpace(userID) == "" {
		missing = append(missing, "userId")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", entities.ErrInvalidRequest, strings.Join(missing, ", "))
	}

	materials, err := uc.catalog.FindMaterials(ctx, entities.MaterialQuery{
		Year:     filter.Year,
		Semester: filter.Semester,
		Subject:  filter.Subject,
		Units:    filter.Unit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrMaterialLookupFailed, err)
	}

	refs := entities.Locators(materials)
	if len(refs) == 0 {
		return nil, entities.ErrNoMaterialFound
	}

	session := &entities.ChatSession{
		ID:                 uc.newID(),
		UserID:             userID,
		Year:               filter.Year,
		Semester:           filter.Semester,
		Subject:            filter.Subject,
		Regulation:         filter.Regulation,
		CreatedAt:          uc.now().UTC(),
		DocumentReferences: refs,
		Messages:           []entities.Message{},
	}
	if err := uc.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	log.Printf("[INFO] Started session %s for user %s with %d documents", session.ID, userID, len(refs))

	return &entities.SessionSummary{
		SessionID:  session.ID,
		Subject:    session.Subject,
		Regulation: session.Regulation,
		CreatedAt:  session.CreatedAt,
	}, nil
}

// GetHistory returns the transcript of a session owned by userID.
// A session owned by someone else is reported as not found.
func (uc *SessionUseCase) GetHistory(ctx context.Context, sessionID, userID string) (*entities.History, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: chat ID and userId are required", entities.ErrInvalidRequest)
	}

	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, entities.ErrNotFound
	}

	return &entities.History{
		SessionID:          session.ID,
		CreatedAt:          session.CreatedAt,
		Messages:           session.Messages,
		UserID:             session.UserID,
		DocumentReferences: session.DocumentReferences,
	}, nil
}

// GetUserSessions lists a user's sessions, newest first.
func (uc *SessionUseCase) GetUserSessions(ctx context.Context, userID string) ([]entities.ChatSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", entities.ErrInvalidRequest)
	}
	return uc.store.ListByUser(ctx, userID)
}
