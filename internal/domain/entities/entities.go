// Package entities contains core business entities.
// These are pure domain objects with no knowledge of storage or transport.
package entities

import (
	"strings"
	"time"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// SubjectDetails is the subject context copied onto every message at send time.
type SubjectDetails struct {
	Year     string `json:"year"`
	Semester string `json:"semester"`
	Subject  string `json:"subject"`
}

// Message is one immutable transcript entry.
type Message struct {
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	SubjectDetails SubjectDetails `json:"subjectDetails"`
}

// ChatSession binds a user, a course filter, a fixed document set and a growing transcript.
// DocumentReferences is set at creation and never changes; Messages is append-only.
type ChatSession struct {
	ID                 string    `json:"chatId"`
	UserID             string    `json:"userId"`
	Year               string    `json:"year"`
	Semester           string    `json:"semester"`
	Subject            string    `json:"subject"`
	Regulation         string    `json:"regulation"`
	CreatedAt          time.Time `json:"createdAt"`
	DocumentReferences []string  `json:"documentReferences"`
	Messages           []Message `json:"messages"`

	// Version increases on every persisted update. Stores use it to reject stale writes.
	Version int64 `json:"-"`
}

// SubjectDetails returns the denormalized subject context of the session.
func (s *ChatSession) SubjectDetails() SubjectDetails {
	return SubjectDetails{Year: s.Year, Semester: s.Semester, Subject: s.Subject}
}

// AppendExchange appends a user question and the system reply as one pair.
func (s *ChatSession) AppendExchange(question, reply string) {
	details := s.SubjectDetails()
	s.Messages = append(s.Messages,
		Message{Role: RoleUser, Content: question, SubjectDetails: details},
		Message{Role: RoleSystem, Content: reply, SubjectDetails: details},
	)
}

// SessionFilter selects course material for a new session.
type SessionFilter struct {
	Year       string `json:"year"`
	Semester   string `json:"semester"`
	Subject    string `json:"subject"`
	Regulation string `json:"regulation"`
	Unit       string `json:"units"`
}

// MissingFields lists the names of required fields that are blank.
func (f SessionFilter) MissingFields() []string {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"year", f.Year},
		{"semester", f.Semester},
		{"subject", f.Subject},
		{"regulation", f.Regulation},
		{"units", f.Unit},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// SessionSummary is returned when a session is started.
type SessionSummary struct {
	SessionID  string    `json:"chatId"`
	Subject    string    `json:"subject"`
	Regulation string    `json:"regulation"`
	CreatedAt  time.Time `json:"createdAt"`
}

// History is the transcript view of a session returned to its owner.
type History struct {
	SessionID          string    `json:"chatId"`
	CreatedAt          time.Time `json:"createdAt"`
	Messages           []Message `json:"messages"`
	UserID             string    `json:"userId"`
	DocumentReferences []string  `json:"documentReferences"`
}

// Answer is the reply to a single question.
type Answer struct {
	Response string `json:"response"`
	Refused  bool   `json:"refused,omitempty"`
}

// MaterialFile is one uploaded file belonging to a course material entry.
type MaterialFile struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
}

// CourseMaterial is a catalog entry grouping files for one subject unit.
type CourseMaterial struct {
	ID         string         `json:"id"`
	Year       string         `json:"year"`
	Semester   string         `json:"semester"`
	Regulation string         `json:"regulation"`
	Course     string         `json:"course,omitempty"`
	Subject    string         `json:"subject"`
	Units      string         `json:"units"`
	Files      []MaterialFile `json:"files"`
	UploadedAt time.Time      `json:"uploadDate"`
}

// MaterialQuery filters the catalog. Empty fields match everything.
type MaterialQuery struct {
	Year     string
	Semester string
	Subject  string
	Units    string
}

// Locators flattens the file URLs of every material, preserving order.
func Locators(materials []CourseMaterial) []string {
	var out []string
	for _, m := range materials {
		for _, f := range m.Files {
			out = append(out, f.FileURL)
		}
	}
	return out
}

// RankedChunk is a transient scored span of document text.
type RankedChunk struct {
	Text  string
	Score float64
	Index int // position in the per-question chunk list
}
