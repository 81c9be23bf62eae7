package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/wallroll/internal/dialog"
	"github.com/thebtf/wallroll/internal/session"
	"github.com/thebtf/wallroll/internal/worker"
	"github.com/thebtf/wallroll/pkg/models"
)

type ClientSuite struct {
	suite.Suite
	server *httptest.Server
	client *Client
	ctx    context.Context
}

func (s *ClientSuite) SetupTest() {
	manager := session.NewManager(
		session.NewMemoryStore(session.MemoryConfig{}),
		dialog.NewController(dialog.Options{}),
	)
	svc := worker.NewService(worker.Options{Version: "1.2.3", Manager: manager})
	svc.SetReady(true)

	s.server = httptest.NewServer(svc.Handler())
	s.client = New(s.server.URL)
	s.ctx = context.Background()
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) TestHealthAndVersion() {
	s.True(s.client.IsRunning(s.ctx))
	s.Equal("1.2.3", s.client.Version(s.ctx))
}

func (s *ClientSuite) TestConversation() {
	resp, err := s.client.Restart(s.ctx, "chat-1")
	s.Require().NoError(err)
	s.Equal("chat-1", resp.Chat)
	s.Require().Len(resp.Replies, 2)
	s.Equal(dialog.ReplyGreeting, resp.Replies[0].Kind)

	for _, text := range []string{"5", "3", "2.7", "1", "1.2", "1.3", "0", "0.53", "10.05"} {
		resp, err = s.client.Send(s.ctx, "chat-1", text)
		s.Require().NoError(err)
		s.Equal(dialog.ReplyPrompt, resp.Replies[len(resp.Replies)-1].Kind, "after %q", text)
	}

	chat, err := s.client.Chat(s.ctx, "chat-1")
	s.Require().NoError(err)
	s.True(chat.Active)
	s.Require().NotNil(chat.Step)
	s.Equal(models.StepRapport, *chat.Step)

	resp, err = s.client.Send(s.ctx, "chat-1", "0")
	s.Require().NoError(err)
	s.Equal(dialog.ReplyResult, resp.Replies[0].Kind)
	s.NotEmpty(resp.RestartButton)

	chat, err = s.client.Chat(s.ctx, "chat-1")
	s.Require().NoError(err)
	s.False(chat.Active)
}

func (s *ClientSuite) TestClear() {
	_, err := s.client.Restart(s.ctx, "c")
	s.Require().NoError(err)
	s.Require().NoError(s.client.Clear(s.ctx, "c"))

	chat, err := s.client.Chat(s.ctx, "c")
	s.Require().NoError(err)
	s.False(chat.Active)
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := New(url)
	ctx := context.Background()
	assert.False(t, c.IsRunning(ctx))
	assert.Empty(t, c.Version(ctx))
	_, err := c.Send(ctx, "x", "1")
	assert.Error(t, err)
}

func TestClient_APIError(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		message string
	}{
		{
			name: "json error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":"service not ready"}`))
			},
			status:  http.StatusServiceUnavailable,
			message: "service not ready",
		},
		{
			name: "plain body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("upstream down"))
			},
			status: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := New(server.URL).Restart(context.Background(), "x")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := New(server.URL)
	assert.Empty(t, c.Version(context.Background()))
	_, err := c.Chat(context.Background(), "x")
	assert.ErrorContains(t, err, "decode response")
}

func TestNew_NormalizesBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"127.0.0.1:37790", "http://127.0.0.1:37790"},
		{"http://host:1/", "http://host:1"},
		{"https://example.com", "https://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.in).BaseURL())
		})
	}
}

func TestForLocalWorker(t *testing.T) {
	t.Setenv("WALLROLL_WORKER_PORT", "41234")
	assert.Equal(t, "http://127.0.0.1:41234", ForLocalWorker().BaseURL())
}
