package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/models"
	"github.com/lectern-ai/lectern/internal/services"
)

// SyncHandler receives notifications from the browser extension: course
// metadata upserts and file-ready announcements.
type SyncHandler struct {
	db   core.DbClient
	docs *services.DocumentService
	log  *zap.Logger
}

func NewSyncHandler(db core.DbClient, docs *services.DocumentService, log *zap.Logger) *SyncHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncHandler{db: db, docs: docs, log: log.Named("sync")}
}

type courseSyncRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	FileCount   int    `json:"file_count"`
	ModuleCount int    `json:"module_count"`
}

// SyncCourse upserts the course record sent by the extension.
func (h *SyncHandler) SyncCourse(w http.ResponseWriter, r *http.Request) {
	var req courseSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "course id is required"})
		return
	}

	course := &models.Course{
		ID:          req.ID,
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		FileCount:   req.FileCount,
		ModuleCount: req.ModuleCount,
	}
	if err := h.db.SyncCourse(r.Context(), course); err != nil {
		h.log.Error("course sync failed", zap.String("course_id", req.ID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced", "course_id": req.ID})
}

type fileReadyRequest struct {
	CourseID string `json:"course_id"`
	FilePath string `json:"path"`
	Filename string `json:"filename"`
}

// FileReady enqueues a synced file for ingestion. Idempotent: announcing
// the same file twice while it is still queued returns the same job.
func (h *SyncHandler) FileReady(w http.ResponseWriter, r *http.Request) {
	var req fileReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.CourseID == "" || req.FilePath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "course_id and path are required"})
		return
	}

	jobID, err := h.docs.EnqueueSynced(r.Context(), req.CourseID, req.FilePath, req.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "job_id": jobID})
}
