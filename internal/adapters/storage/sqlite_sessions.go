package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/campusify/coursechat/internal/domain/entities"
)

const sessionColumns = `id, user_id, year, semester, subject, regulation, created_at, document_refs, messages, version`

// Create persists a new session.
func (s *SQLiteStore) Create(ctx context.Context, session *entities.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs, messages, err := encodeSession(session)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.UserID,
		session.Year,
		session.Semester,
		session.Subject,
		session.Regulation,
		session.CreatedAt.UTC().UnixNano(),
		string(refs),
		string(messages),
		session.Version,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: session %s already exists", entities.ErrConflict, session.ID)
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique)
}

// Get loads a session by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*entities.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entities.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return session, nil
}

// Update writes messages back if the stored version still matches.
// Identity, filter and document references are fixed at creation and not rewritten.
func (s *SQLiteStore) Update(ctx context.Context, session *entities.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, err := json.Marshal(nonNilMessages(session.Messages))
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions SET messages = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, string(messages), session.ID, session.Version)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE id = ?`, session.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking session: %w", err)
		}
		if exists == 0 {
			return entities.ErrNotFound
		}
		return entities.ErrConflict
	}

	session.Version++
	return nil
}

// ListByUser returns the user's sessions, newest first.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]entities.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM chat_sessions
		WHERE user_id = ?
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []entities.ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// SessionCount returns the number of stored sessions.
func (s *SQLiteStore) SessionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_sessions").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*entities.ChatSession, error) {
	var (
		session   entities.ChatSession
		createdAt int64
		refsJSON  string
		msgsJSON  string
	)
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Year,
		&session.Semester,
		&session.Subject,
		&session.Regulation,
		&createdAt,
		&refsJSON,
		&msgsJSON,
		&session.Version,
	)
	if err != nil {
		return nil, err
	}

	session.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(refsJSON), &session.DocumentReferences); err != nil {
		return nil, fmt.Errorf("decoding document references: %w", err)
	}
	if err := json.Unmarshal([]byte(msgsJSON), &session.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}
	session.Messages = nonNilMessages(session.Messages)
	return &session, nil
}

func encodeSession(session *entities.ChatSession) (refs, messages []byte, err error) {
	r := session.DocumentReferences
	if r == nil {
		r = []string{}
	}
	refs, err = json.Marshal(r)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding document references: %w", err)
	}
	messages, err = json.Marshal(nonNilMessages(session.Messages))
	if err != nil {
		return nil, nil, fmt.Errorf("encoding messages: %w", err)
	}
	return refs, messages, nil
}

func nonNilMessages(m []entities.Message) []entities.Message {
	if m == nil {
		return []entities.Message{}
	}
	return m
}
