package handlers

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lectern-ai/lectern/internal/models"
	"github.com/lectern-ai/lectern/internal/services"
)

type DocumentHandler struct {
	docs *services.DocumentService
	log  *zap.Logger
}

func NewDocumentHandler(docs *services.DocumentService, log *zap.Logger) *DocumentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentHandler{docs: docs, log: log.Named("documents")}
}

// Upload validates the file before any write: unsupported extensions get a
// 400 and oversized bodies a 413, and in both cases nothing is queued.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")

	r.Body = http.MaxBytesReader(w, r.Body, h.docs.MaxUploadBytes()+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file field"})
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if err := h.docs.Validate(filename, header.Size); err != nil {
		if header.Size > h.docs.MaxUploadBytes() {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable file body"})
		return
	}

	doc, err := h.docs.UploadAndEnqueue(r.Context(), courseID, filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		h.log.Error("upload failed", zap.String("course_id", courseID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	docs, err := h.docs.ListByCourse(r.Context(), courseID)
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	if err := h.docs.Delete(r.Context(), documentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "document_id": documentID})
}

// DeleteCourse removes a course and everything ingested for it.
func (h *DocumentHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	if err := h.docs.DeleteCourse(r.Context(), courseID); err != nil {
		h.log.Error("course delete failed", zap.String("course_id", courseID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "course_id": courseID})
}
