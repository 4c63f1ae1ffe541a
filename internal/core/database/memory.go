package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/models"
)

// MemoryClient is an in-process DbClient for tests and local runs. Semantics
// mirror the Postgres client, including delete cascades.
type MemoryClient struct {
	mu        sync.Mutex
	courses   map[string]models.Course
	documents map[string]models.Document
	sessions  map[string]models.ChatSession
	messages  []models.ChatMessage
}

var _ core.DbClient = (*MemoryClient)(nil)

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		courses:   make(map[string]models.Course),
		documents: make(map[string]models.Document),
		sessions:  make(map[string]models.ChatSession),
	}
}

func (m *MemoryClient) Close() error { return nil }

func (m *MemoryClient) SyncCourse(ctx context.Context, course *models.Course) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	c := *course
	if prev, ok := m.courses[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.LastSync = &now
	c.IsActive = true
	c.UpdatedAt = now
	m.courses[c.ID] = c
	return nil
}

func (m *MemoryClient) GetCourseByID(ctx context.Context, id string) (*models.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[id]
	if !ok {
		return nil, nil
	}
	cp := c
	return &cp, nil
}

// DeleteCourse mirrors the Postgres ON DELETE CASCADE: documents, sessions,
// and messages for the course go with it.
func (m *MemoryClient) DeleteCourse(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.courses[id]; !ok {
		return &core.NotFoundError{Kind: "course", ID: id}
	}
	delete(m.courses, id)
	for docID, d := range m.documents {
		if d.CourseID == id {
			delete(m.documents, docID)
		}
	}
	for sessID, s := range m.sessions {
		if s.CourseID == id {
			delete(m.sessions, sessID)
		}
	}
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.CourseID != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

func (m *MemoryClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now()
	d := *doc
	d.CreatedAt = now
	d.UpdatedAt = now
	m.documents[d.ID] = d
	return nil
}

func (m *MemoryClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.documents[id]
	if !ok {
		return nil, nil
	}
	cp := d
	return &cp, nil
}

func (m *MemoryClient) GetDocumentByPath(ctx context.Context, courseID, filePath string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.documents {
		if d.CourseID == courseID && d.FilePath == filePath {
			cp := d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryClient) ListDocumentsByCourse(ctx context.Context, courseID string) ([]models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Document
	for _, d := range m.documents {
		if d.CourseID == courseID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (m *MemoryClient) UpdateDocumentStatus(ctx context.Context, id, status, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.documents[id]
	if !ok {
		return &core.NotFoundError{Kind: "document", ID: id}
	}
	d.Status = status
	d.ErrorMessage = errMsg
	d.UpdatedAt = time.Now()
	m.documents[id] = d
	return nil
}

func (m *MemoryClient) FinishDocument(ctx context.Context, id string, chunkCount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.documents[id]
	if !ok {
		return &core.NotFoundError{Kind: "document", ID: id}
	}
	now := time.Now()
	d.Status = models.DocStatusCompleted
	d.ChunkCount = chunkCount
	d.ErrorMessage = ""
	d.ProcessedAt = &now
	d.UpdatedAt = now
	m.documents[id] = d
	return nil
}

func (m *MemoryClient) DeleteDocument(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[id]; !ok {
		return &core.NotFoundError{Kind: "document", ID: id}
	}
	delete(m.documents, id)
	return nil
}

func (m *MemoryClient) GetOrCreateSession(ctx context.Context, courseID, sessionID string) (*models.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != "" {
		if s, ok := m.sessions[sessionID]; ok && s.CourseID == courseID && s.IsActive {
			cp := s
			return &cp, nil
		}
	}
	now := time.Now()
	s := models.ChatSession{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[s.ID] = s
	cp := s
	return &cp, nil
}

func (m *MemoryClient) AddChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *MemoryClient) GetMessagesBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ChatMessage
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
