// Package palaver provides a Go client for the palaver chat server.
package palaver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/palaver-chat/palaver/internal/models"
	"github.com/palaver-chat/palaver/internal/session"
)

// Client is a palaver API client. A signed-in client remembers its
// session on disk, so later runs resume without credentials.
type Client struct {
	BaseURL    string
	UserID     string
	Token      string
	HTTPClient *http.Client

	cache *session.Cache
}

// NewClient creates a client against baseURL and loads any remembered
// session from the local cache.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("PALAVER_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".palaver")
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	cache, err := session.Open(filepath.Join(configDir, "session.db"))
	if err != nil {
		return nil, err
	}

	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
	}

	if entry, err := cache.LastUser(); err == nil && entry != nil {
		c.UserID = entry.UserID
		c.Token = entry.Token
	}
	return c, nil
}

// Close releases the session cache.
func (c *Client) Close() error {
	return c.cache.Close()
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &APIError{Status: resp.StatusCode, Message: errBody.Error}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Register creates an account and returns the new user id.
func (c *Client) Register(email, password, pseudo string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.do("POST", "/register", map[string]any{
		"email":    email,
		"password": password,
		"profile":  map[string]string{"pseudo": pseudo},
	}, &resp)
	return resp.ID, err
}

// Login authenticates and remembers the session for later runs.
func (c *Client) Login(email, password string) error {
	var resp struct {
		UserID string `json:"userId"`
		Token  string `json:"token"`
	}
	if err := c.do("POST", "/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp); err != nil {
		return err
	}

	c.UserID = resp.UserID
	c.Token = resp.Token
	return c.cache.RememberUser(resp.UserID, email, resp.Token)
}

// Logout forgets the remembered session.
func (c *Client) Logout() error {
	c.UserID = ""
	c.Token = ""
	return c.cache.Forget()
}

// LastUser returns the remembered sign-in, if any.
func (c *Client) LastUser() (*session.Entry, error) {
	return c.cache.LastUser()
}

// Accounts lists the server's account directory.
func (c *Client) Accounts() ([]Account, error) {
	var out []Account
	err := c.do("GET", "/accounts", nil, &out)
	return out, err
}

// Account is the public directory view of a user.
type Account struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Profile struct {
		FullName string `json:"fullName"`
		Pseudo   string `json:"pseudo"`
		Phone    string `json:"phone"`
	} `json:"profile"`
}

// ResolveDirect returns the conversation id shared with another user.
func (c *Client) ResolveDirect(userID string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.do("GET", "/conversations/direct/"+url.PathEscape(userID), nil, &resp)
	return resp.ID, err
}

// Messages returns the full ordered log of a conversation.
func (c *Client) Messages(convID string) ([]models.Message, error) {
	var out []models.Message
	err := c.do("GET", "/conversations/"+url.PathEscape(convID)+"/messages", nil, &out)
	return out, err
}

// SendText appends a text message and returns its id.
func (c *Client) SendText(convID, text string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.do("POST", "/conversations/"+url.PathEscape(convID)+"/messages", map[string]string{
		"kind": "text",
		"text": text,
	}, &resp)
	return resp.ID, err
}

// MarkSeen records a read receipt on a message.
func (c *Client) MarkSeen(convID, msgID string) error {
	return c.do("POST", "/conversations/"+url.PathEscape(convID)+"/messages/"+url.PathEscape(msgID)+"/seen", struct{}{}, nil)
}

// Groups lists the caller's group conversations, newest activity first.
func (c *Client) Groups() ([]models.Conversation, error) {
	var out []models.Conversation
	err := c.do("GET", "/conversations", nil, &out)
	return out, err
}

// CreateGroup creates a group with the given members.
func (c *Client) CreateGroup(name string, members []string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.do("POST", "/conversations", map[string]any{
		"name":    name,
		"members": members,
	}, &resp)
	return resp.ID, err
}

// Frame is one event from the live stream.
type Frame struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversationId,omitempty"`
	Messages       []models.Message `json:"messages,omitempty"`
	Slot           string           `json:"slot,omitempty"`
	Typing         bool             `json:"typing,omitempty"`
	UserID         string           `json:"userId,omitempty"`
	Online         bool             `json:"online,omitempty"`
	LastSeenAt     int64            `json:"lastSeenAt,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// Stream is a live websocket session against the gateway.
type Stream struct {
	ws *websocket.Conn
}

// Connect opens the websocket gateway, joins convID and returns the
// stream. The caller reads frames until the context ends.
func (c *Client) Connect(ctx context.Context, convID string) (*Stream, error) {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(c.Token)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &APIError{Status: resp.StatusCode, Message: "missing or expired token"}
		}
		return nil, err
	}

	s := &Stream{ws: ws}
	if err := s.write(map[string]string{"type": "join", "conversationId": convID}); err != nil {
		ws.Close()
		return nil, err
	}
	return s, nil
}

// Next blocks for the next frame.
func (s *Stream) Next() (Frame, error) {
	var frame Frame
	err := s.ws.ReadJSON(&frame)
	return frame, err
}

// Send appends a text message through the stream.
func (s *Stream) Send(convID, text string) error {
	return s.write(map[string]string{
		"type":           "send",
		"conversationId": convID,
		"kind":           "text",
		"text":           text,
	})
}

// Typing publishes the caller's typing flag for a conversation.
func (s *Stream) Typing(convID string, typing bool) error {
	return s.write(map[string]any{
		"type":           "typing",
		"conversationId": convID,
		"typing":         typing,
	})
}

// Close ends the stream.
func (s *Stream) Close() error {
	return s.ws.Close()
}

func (s *Stream) write(v any) error {
	return s.ws.WriteJSON(v)
}
