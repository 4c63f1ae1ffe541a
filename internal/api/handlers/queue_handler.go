package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lectern-ai/lectern/internal/core"
)

type QueueHandler struct {
	queue core.ProcessingQueue
	log   *zap.Logger
}

func NewQueueHandler(queue core.ProcessingQueue, log *zap.Logger) *QueueHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &QueueHandler{queue: queue, log: log.Named("queue")}
}

func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	st, err := h.queue.Status(r.Context(), courseID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *QueueHandler) Retry(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	reset, err := h.queue.RetryFailed(r.Context(), courseID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.log.Info("failed jobs reset", zap.String("course_id", courseID), zap.Int("count", reset))
	writeJSON(w, http.StatusOK, map[string]int{"reset": reset})
}

func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	removed, err := h.queue.Clear(r.Context(), courseID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.log.Info("queue cleared", zap.String("course_id", courseID), zap.Int("removed", removed))
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
