// Package client talks to a running course chat server over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campusify/coursechat/internal/domain/entities"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap maps the error code back onto the domain sentinel, so callers can
// use errors.Is(err, entities.ErrNoMaterialFound) and friends.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "invalid_request":
		return entities.ErrInvalidRequest
	case "no_material":
		return entities.ErrNoMaterialFound
	case "not_found":
		return entities.ErrNotFound
	case "conflict":
		return entities.ErrConflict
	}
	return nil
}

// Client is a course chat API client.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the server at baseURL (e.g. http://localhost:5001).
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 150 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// StartChat opens a session for the course filter.
func (c *Client) StartChat(ctx context.Context, filter entities.SessionFilter, userID string) (*entities.SessionSummary, error) {
	body := struct {
		entities.SessionFilter
		UserID string `json:"userId"`
	}{filter, userID}

	var summary entities.SessionSummary
	if err := c.do(ctx, http.MethodPost, "/api/chat/start", body, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Ask sends a question to a session.
func (c *Client) Ask(ctx context.Context, chatID, question string) (*entities.Answer, error) {
	body := map[string]string{"chatId": chatID, "question": question}

	var answer entities.Answer
	if err := c.do(ctx, http.MethodPost, "/api/chat/ask", body, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// History fetches a session transcript.
func (c *Client) History(ctx context.Context, chatID, userID string) (*entities.History, error) {
	path := "/api/chat/" + url.PathEscape(chatID) + "/history?userId=" + url.QueryEscape(userID)

	var history entities.History
	if err := c.do(ctx, http.MethodGet, path, nil, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// Sessions lists a user's sessions, newest first.
func (c *Client) Sessions(ctx context.Context, userID string) ([]entities.ChatSession, error) {
	var sessions []entities.ChatSession
	if err := c.do(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(userID), nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Materials lists catalog entries matching q.
func (c *Client) Materials(ctx context.Context, q entities.MaterialQuery) ([]entities.CourseMaterial, error) {
	params := url.Values{}
	for k, v := range map[string]string{"year": q.Year, "semester": q.Semester, "subject": q.Subject, "units": q.Units} {
		if v != "" {
			params.Set(k, v)
		}
	}
	path := "/api/materials"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var materials []entities.CourseMaterial
	if err := c.do(ctx, http.MethodGet, path, nil, &materials); err != nil {
		return nil, err
	}
	return materials, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
