package worker

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/wallroll/internal/db/gorm"
	"github.com/thebtf/wallroll/internal/dialog"
	"github.com/thebtf/wallroll/pkg/models"
)

// MessageRequest is the body of POST /api/chats/{chat}/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse carries the replies for one inbound message.
type MessageResponse struct {
	Chat    string         `json:"chat"`
	Replies []dialog.Reply `json:"replies"`
	// RestartButton is the button label to show when any reply offers a restart.
	RestartButton string `json:"restart_button,omitempty"`
}

// ChatResponse describes the in-progress session of a chat.
type ChatResponse struct {
	Chat    string          `json:"chat"`
	Active  bool            `json:"active"`
	Step    *models.Step    `json:"step,omitempty"`
	Item    int             `json:"item,omitempty"`
	Prompt  string          `json:"prompt,omitempty"`
	Session *models.Session `json:"session,omitempty"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleMessage(w http.ResponseWriter, r *http.Request) {
	chat := chi.URLParam(r, "chat")

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req MessageRequest
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	replies, err := s.manager.HandleMessage(r.Context(), chat, req.Text)
	if err != nil {
		log.Error().Err(err).Str("chat", chat).Msg("Failed to handle message")
		writeError(w, http.StatusInternalServerError, "failed to handle message")
		return
	}
	writeJSON(w, http.StatusOK, s.messageResponse(chat, replies))
}

func (s *Service) handleRestart(w http.ResponseWriter, r *http.Request) {
	chat := chi.URLParam(r, "chat")

	replies, err := s.manager.Restart(r.Context(), chat)
	if err != nil {
		log.Error().Err(err).Str("chat", chat).Msg("Failed to restart conversation")
		writeError(w, http.StatusInternalServerError, "failed to restart conversation")
		return
	}
	writeJSON(w, http.StatusOK, s.messageResponse(chat, replies))
}

func (s *Service) messageResponse(chat string, replies []dialog.Reply) MessageResponse {
	return NewMessageResponse(chat, replies, s.manager.Controller().Catalog().RestartButton())
}

// NewMessageResponse builds a MessageResponse, setting RestartButton only
// when one of the replies offers a restart.
func NewMessageResponse(chat string, replies []dialog.Reply, button string) MessageResponse {
	resp := MessageResponse{Chat: chat, Replies: replies}
	for _, reply := range replies {
		if reply.OfferRestart {
			resp.RestartButton = button
			break
		}
	}
	return resp
}

func (s *Service) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat := chi.URLParam(r, "chat")

	sess, err := s.manager.Session(r.Context(), chat)
	if err != nil {
		log.Error().Err(err).Str("chat", chat).Msg("Failed to load session")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	resp := ChatResponse{Chat: chat}
	if sess != nil {
		resp.Active = true
		step := sess.Cursor
		resp.Step = &step
		resp.Item = sess.CurrentItem()
		resp.Prompt = s.manager.Controller().Catalog().Prompt(sess.Cursor, sess.CurrentItem())
		resp.Session = sess
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chat := chi.URLParam(r, "chat")

	if err := s.manager.Abandon(r.Context(), chat); err != nil {
		log.Error().Err(err).Str("chat", chat).Msg("Failed to clear session")
		writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusNotFound, "statistics disabled")
		return
	}

	totals, err := s.stats.Totals(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load stats totals")
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	recent, err := s.stats.Recent(r.Context(), gorm.ParseLimitParam(r, 20))
	if err != nil {
		log.Error().Err(err).Msg("Failed to load recent chats")
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totals":      totals,
		"recent":      chatStatViews(recent),
		"sse_clients": s.sseBroadcaster.ClientCount(),
	})
}

func (s *Service) handleChatStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusNotFound, "statistics disabled")
		return
	}
	chat := chi.URLParam(r, "chat")

	row, err := s.stats.GetChat(r.Context(), chat)
	if err != nil {
		log.Error().Err(err).Str("chat", chat).Msg("Failed to load chat stats")
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, chatStatView(*row))
}

// ChatStatView is the JSON form of gorm.ChatStat.
type ChatStatView struct {
	Chat                  string    `json:"chat"`
	FirstSeen             time.Time `json:"first_seen"`
	LastSeen              time.Time `json:"last_seen"`
	Messages              int64     `json:"messages"`
	SessionsStarted       int64     `json:"sessions_started"`
	CalculationsCompleted int64     `json:"calculations_completed"`
	GeometryFailures      int64     `json:"geometry_failures"`
	Failures              int64     `json:"failures"`
	InputRejections       int64     `json:"input_rejections"`
	RollsRecommended      int64     `json:"rolls_recommended"`
}

func chatStatView(c gorm.ChatStat) ChatStatView {
	return ChatStatView{
		Chat:                  c.ChatKey,
		FirstSeen:             time.UnixMilli(c.FirstSeenEpoch).UTC(),
		LastSeen:              time.UnixMilli(c.LastSeenEpoch).UTC(),
		Messages:              c.Messages,
		SessionsStarted:       c.SessionsStarted,
		CalculationsCompleted: c.CalculationsCompleted,
		GeometryFailures:      c.GeometryFailures,
		Failures:              c.Failures,
		InputRejections:       c.InputRejections,
		RollsRecommended:      c.RollsRecommended,
	}
}

func chatStatViews(rows []gorm.ChatStat) []ChatStatView {
	views := make([]ChatStatView, 0, len(rows))
	for _, row := range rows {
		views = append(views, chatStatView(row))
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
