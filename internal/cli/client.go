package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/findify/internal/models"
	"github.com/hyperjump/findify/internal/session"
)

// Session is the set of operations the demo loop and the search command drive.
// *session.Controller implements it in process; RemoteSession over HTTP.
type Session interface {
	Search(ctx context.Context, query string) error
	LoadMore(ctx context.Context) (bool, error)
	SendChatMessage(ctx context.Context, text string) error
	Snapshot() models.SessionState
}

var _ Session = (*session.Controller)(nil)

// Client talks to a running findify server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 90 * time.Second},
	}
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Unwrap maps the well-known answers back to session errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return session.ErrSessionNotFound
	case http.StatusConflict:
		return session.ErrSuperseded
	case http.StatusBadRequest:
		switch e.Message {
		case session.ErrEmptyQuery.Error():
			return session.ErrEmptyQuery
		case session.ErrEmptyMessage.Error():
			return session.ErrEmptyMessage
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreateSession opens a new session on the server.
func (c *Client) CreateSession(ctx context.Context) (*RemoteSession, error) {
	var state models.SessionState
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", nil, &state); err != nil {
		return nil, err
	}
	return &RemoteSession{client: c, state: state}, nil
}

// Status returns the server status document.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	var status map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// RemoteSession is a server-side session driven over HTTP. Snapshot returns the
// state from the most recent response.
type RemoteSession struct {
	client *Client
	state  models.SessionState
}

// ID returns the server-side session id.
func (s *RemoteSession) ID() string {
	return s.state.SessionID
}

func (s *RemoteSession) path(op string) string {
	return "/api/v1/sessions/" + s.state.SessionID + op
}

func (s *RemoteSession) Search(ctx context.Context, query string) error {
	return s.client.do(ctx, http.MethodPost, s.path("/search"), map[string]string{"query": query}, &s.state)
}

func (s *RemoteSession) SendChatMessage(ctx context.Context, text string) error {
	return s.client.do(ctx, http.MethodPost, s.path("/chat"), map[string]string{"message": text}, &s.state)
}

func (s *RemoteSession) LoadMore(ctx context.Context) (bool, error) {
	var out struct {
		Applied bool                `json:"applied"`
		State   models.SessionState `json:"state"`
	}
	if err := s.client.do(ctx, http.MethodPost, s.path("/load-more"), nil, &out); err != nil {
		return false, err
	}
	s.state = out.State
	return out.Applied, nil
}

func (s *RemoteSession) Snapshot() models.SessionState {
	return s.state
}

// Close closes the session on the server, which archives it.
func (s *RemoteSession) Close(ctx context.Context) error {
	return s.client.do(ctx, http.MethodDelete, s.path(""), nil, nil)
}

// Collect runs query on s and loads more until pages are loaded or no more are
// available. It returns the final state.
func Collect(ctx context.Context, s Session, query string, pages int) (models.SessionState, error) {
	if err := s.Search(ctx, query); err != nil {
		return models.SessionState{}, err
	}
	for i := 1; i < pages; i++ {
		applied, err := s.LoadMore(ctx)
		if err != nil {
			return models.SessionState{}, err
		}
		if !applied {
			break
		}
	}
	return s.Snapshot(), nil
}
