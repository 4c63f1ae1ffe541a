package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/core/database"
	"github.com/lectern-ai/lectern/internal/core/objectstore"
	"github.com/lectern-ai/lectern/internal/core/queue"
	"github.com/lectern-ai/lectern/internal/core/vectorindex"
	"github.com/lectern-ai/lectern/internal/models"
	"github.com/lectern-ai/lectern/internal/services"
)

type apiFixture struct {
	db     *database.MemoryClient
	queue  *queue.MemoryQueue
	index  *vectorindex.MemoryIndex
	router chi.Router
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		db:    database.NewMemoryClient(),
		queue: queue.NewMemoryQueue(3),
		index: vectorindex.NewMemoryIndex(),
	}
	docs := services.NewDocumentService(
		f.db, objectstore.NewMemoryStore(), f.queue, f.index,
		"test-bucket", 50, zap.NewNop(),
	)
	docHandler := NewDocumentHandler(docs, zap.NewNop())
	syncHandler := NewSyncHandler(f.db, docs, zap.NewNop())
	queueHandler := NewQueueHandler(f.queue, zap.NewNop())

	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		api.Post("/sync/course", syncHandler.SyncCourse)
		api.Post("/sync/file-ready", syncHandler.FileReady)
		api.Route("/courses/{courseID}", func(course chi.Router) {
			course.Delete("/", docHandler.DeleteCourse)
			course.Post("/files", docHandler.Upload)
			course.Get("/documents", docHandler.List)
			course.Get("/queue", queueHandler.Status)
			course.Post("/queue/retry", queueHandler.Retry)
			course.Post("/queue/clear", queueHandler.Clear)
		})
		api.Delete("/documents/{documentID}", docHandler.Delete)
	})
	f.router = r

	require.NoError(t, f.db.SyncCourse(context.Background(), &models.Course{ID: "course-1", Name: "Algorithms"}))
	return f
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	f := newAPIFixture(t)

	body, contentType := multipartBody(t, "malware.exe", "MZ...")
	req := httptest.NewRequest(http.MethodPost, "/api/courses/course-1/files", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported format")

	// Nothing was stored or queued.
	st, err := f.queue.Status(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatus{}, st)

	docs, err := f.db.ListDocumentsByCourse(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUploadAcceptsTextFileAndQueues(t *testing.T) {
	f := newAPIFixture(t)

	body, contentType := multipartBody(t, "notes.txt", strings.Repeat("lecture notes ", 50))
	req := httptest.NewRequest(http.MethodPost, "/api/courses/course-1/files", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, models.DocStatusPending, doc.Status)

	st, err := f.queue.Status(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Queued)
}

func TestUploadUnknownCourse(t *testing.T) {
	f := newAPIFixture(t)

	body, contentType := multipartBody(t, "notes.txt", "content")
	req := httptest.NewRequest(http.MethodPost, "/api/courses/nope/files", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncCourseThenFileReady(t *testing.T) {
	f := newAPIFixture(t)

	payload := `{"id":"course-2","name":"Databases","code":"CS145","file_count":3}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync/course", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	ready := `{"course_id":"course-2","path":"course-2/week1/slides.pptx","filename":"slides.pptx"}`
	req = httptest.NewRequest(http.MethodPost, "/api/sync/file-ready", strings.NewReader(ready))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Announcing the same file again is idempotent.
	var first map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	req = httptest.NewRequest(http.MethodPost, "/api/sync/file-ready", strings.NewReader(ready))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var second map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first["job_id"], second["job_id"])

	st, err := f.queue.Status(context.Background(), "course-2")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Queued)
}

func TestFileReadyUnsupportedExtension(t *testing.T) {
	f := newAPIFixture(t)

	ready := `{"course_id":"course-1","path":"course-1/tool.exe","filename":"tool.exe"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync/file-ready", strings.NewReader(ready))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	st, err := f.queue.Status(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatus{}, st)
}

func TestQueueStatusRetryClear(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, "course-1", "course-1/a.txt", "a.txt")
	require.NoError(t, err)
	job, err := f.queue.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkFailedPermanent(ctx, job.ID, "corrupt"))

	req := httptest.NewRequest(http.MethodGet, "/api/courses/course-1/queue", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var st models.QueueStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, models.QueueStatus{Failed: 1}, st)

	req = httptest.NewRequest(http.MethodPost, "/api/courses/course-1/queue/retry", nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reset":1}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/courses/course-1/queue/clear", nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":1}`, rec.Body.String())
}

func TestDeleteDocumentCascades(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	doc := &models.Document{CourseID: "course-1", Filename: "a.txt", FilePath: "course-1/a.txt", Status: models.DocStatusCompleted}
	require.NoError(t, f.db.CreateDocument(ctx, doc))
	_, err := f.queue.Enqueue(ctx, "course-1", "course-1/a.txt", "a.txt")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/"+doc.ID, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.db.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	st, err := f.queue.Status(ctx, "course-1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatus{}, st)
}

func TestDeleteCourseCascades(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	doc := &models.Document{CourseID: "course-1", Filename: "a.txt", FilePath: "course-1/a.txt", Status: models.DocStatusCompleted}
	require.NoError(t, f.db.CreateDocument(ctx, doc))
	require.NoError(t, f.index.Upsert(ctx, []core.ChunkEntry{
		{CourseID: "course-1", DocumentID: doc.ID, ChunkIndex: 0, Text: "arrays", Embedding: []float32{1, 0, 0}},
		{CourseID: "course-1", DocumentID: doc.ID, ChunkIndex: 1, Text: "heaps", Embedding: []float32{0, 1, 0}},
	}))
	_, err := f.queue.Enqueue(ctx, "course-1", "course-1/b.txt", "b.txt")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/courses/course-1", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	course, err := f.db.GetCourseByID(ctx, "course-1")
	require.NoError(t, err)
	assert.Nil(t, course)

	docs, err := f.db.ListDocumentsByCourse(ctx, "course-1")
	require.NoError(t, err)
	assert.Empty(t, docs)

	st, err := f.queue.Status(ctx, "course-1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatus{}, st)

	matches, err := f.index.Search(ctx, "course-1", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDeleteUnknownCourse(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/courses/nope", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUnknownDocument(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/does-not-exist", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
