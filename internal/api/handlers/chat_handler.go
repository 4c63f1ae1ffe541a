package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/models"
	query "github.com/lectern-ai/lectern/internal/core/query_engine"
)

type ChatHandler struct {
	query *query.Service
	log   *zap.Logger
}

func NewChatHandler(q *query.Service, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{query: q, log: log.Named("chat")}
}

type chatRequest struct {
	CourseID  string `json:"course_id"`
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.CourseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "course_id is required"})
		return
	}

	ans, err := h.query.Ask(r.Context(), req.CourseID, req.Question, req.SessionID)
	if err != nil {
		if core.IsRetryable(err) {
			h.log.Error("query failed", zap.String("course_id", req.CourseID), zap.Error(err))
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	msgs, err := h.query.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
