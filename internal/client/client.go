// Package client talks to a running wallroll worker over HTTP.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/wallroll/internal/config"
	"github.com/thebtf/wallroll/internal/worker"
)

// DefaultTimeout bounds a single request to the worker.
const DefaultTimeout = 10 * time.Second

// APIError is returned for non-2xx worker responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("worker returned %d", e.Status)
	}
	return fmt.Sprintf("worker returned %d: %s", e.Status, e.Message)
}

// Client is an HTTP client for the worker API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL. A bare host:port gets an http:// scheme.
func New(baseURL string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// ForLocalWorker creates a client for the worker on the configured local port.
func ForLocalWorker() *Client {
	return New(fmt.Sprintf("%s:%d", config.DefaultWorkerHost, config.GetWorkerPort()))
}

// BaseURL returns the worker address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsRunning reports whether the worker answers its health check.
func (c *Client) IsRunning(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Version returns the worker version, or "" if it cannot be determined.
func (c *Client) Version(ctx context.Context) string {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &out); err != nil {
		return ""
	}
	return out.Version
}

// Send delivers one message to a chat.
func (c *Client) Send(ctx context.Context, chat, text string) (*worker.MessageResponse, error) {
	var out worker.MessageResponse
	if err := c.do(ctx, http.MethodPost, chatPath(chat, "messages"), worker.MessageRequest{Text: text}, &out); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &out, nil
}

// Restart starts a fresh conversation in a chat.
func (c *Client) Restart(ctx context.Context, chat string) (*worker.MessageResponse, error) {
	var out worker.MessageResponse
	if err := c.do(ctx, http.MethodPost, chatPath(chat, "restart"), nil, &out); err != nil {
		return nil, fmt.Errorf("restart chat: %w", err)
	}
	return &out, nil
}

// Chat returns the in-progress state of a chat.
func (c *Client) Chat(ctx context.Context, chat string) (*worker.ChatResponse, error) {
	var out worker.ChatResponse
	if err := c.do(ctx, http.MethodGet, chatPath(chat, ""), nil, &out); err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &out, nil
}

// Clear drops the in-progress session of a chat.
func (c *Client) Clear(ctx context.Context, chat string) error {
	if err := c.do(ctx, http.MethodDelete, chatPath(chat, ""), nil, nil); err != nil {
		return fmt.Errorf("clear chat: %w", err)
	}
	return nil
}

func chatPath(chat, action string) string {
	p := "/api/chats/" + url.PathEscape(chat)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
