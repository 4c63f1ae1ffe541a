// Package database implements DbClient over Postgres via the pgx stdlib
// driver.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/models"
)

type Client struct {
	db *sql.DB
}

var _ core.DbClient = (*Client)(nil)

func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &Client{db: db}, nil
}

// DB exposes the underlying pool so the queue and vector index can share it.
func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Courses

// SyncCourse inserts or refreshes a course record from the extension's
// course payload.
func (c *Client) SyncCourse(ctx context.Context, course *models.Course) error {
	if course == nil {
		return errors.New("nil course")
	}
	const q = `
		INSERT INTO courses (id, name, code, description, file_count, module_count, last_sync, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), true, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			code = EXCLUDED.code,
			description = EXCLUDED.description,
			file_count = EXCLUDED.file_count,
			module_count = EXCLUDED.module_count,
			last_sync = now(),
			is_active = true,
			updated_at = now()
	`
	_, err := c.db.ExecContext(ctx, q,
		course.ID, course.Name, course.Code, course.Description, course.FileCount, course.ModuleCount)
	return err
}

func (c *Client) GetCourseByID(ctx context.Context, id string) (*models.Course, error) {
	const q = `
		SELECT id, name, code, description, file_count, module_count, last_sync, is_active, created_at, updated_at
		FROM courses WHERE id = $1
	`
	var course models.Course
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&course.ID, &course.Name, &course.Code, &course.Description,
		&course.FileCount, &course.ModuleCount, &course.LastSync,
		&course.IsActive, &course.CreatedAt, &course.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// DeleteCourse removes the course row; documents, sessions, and messages go
// with it through the schema's ON DELETE CASCADE. Queue items and vector
// entries are the caller's cascade.
func (c *Client) DeleteCourse(ctx context.Context, id string) error {
	const q = `DELETE FROM courses WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Kind: "course", ID: id}
	}
	return nil
}

// Documents

func (c *Client) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO documents (id, course_id, filename, file_path, file_type, file_size, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.CourseID, doc.Filename, doc.FilePath, doc.FileType, doc.FileSize, doc.Status)
	return err
}

func (c *Client) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, course_id, filename, file_path, file_type, file_size, status,
		       COALESCE(error_message, ''), chunk_count, processed_at, created_at, updated_at
		FROM documents WHERE id = $1
	`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, id))
}

func (c *Client) GetDocumentByPath(ctx context.Context, courseID, filePath string) (*models.Document, error) {
	const q = `
		SELECT id, course_id, filename, file_path, file_type, file_size, status,
		       COALESCE(error_message, ''), chunk_count, processed_at, created_at, updated_at
		FROM documents WHERE course_id = $1 AND file_path = $2
	`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, courseID, filePath))
}

func (c *Client) scanDocument(row *sql.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.CourseID, &d.Filename, &d.FilePath, &d.FileType, &d.FileSize,
		&d.Status, &d.ErrorMessage, &d.ChunkCount, &d.ProcessedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) ListDocumentsByCourse(ctx context.Context, courseID string) ([]models.Document, error) {
	const q = `
		SELECT id, course_id, filename, file_path, file_type, file_size, status,
		       COALESCE(error_message, ''), chunk_count, processed_at, created_at, updated_at
		FROM documents
		WHERE course_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.CourseID, &d.Filename, &d.FilePath, &d.FileType, &d.FileSize,
			&d.Status, &d.ErrorMessage, &d.ChunkCount, &d.ProcessedAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *Client) UpdateDocumentStatus(ctx context.Context, id, status, errMsg string) error {
	const q = `
		UPDATE documents
		SET status = $2, error_message = NULLIF($3, ''), updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, errMsg)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Kind: "document", ID: id}
	}
	return nil
}

func (c *Client) FinishDocument(ctx context.Context, id string, chunkCount int) error {
	const q = `
		UPDATE documents
		SET status = $2, chunk_count = $3, error_message = NULL,
		    processed_at = now(), updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, models.DocStatusCompleted, chunkCount)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Kind: "document", ID: id}
	}
	return nil
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Kind: "document", ID: id}
	}
	return nil
}

// Chat

// GetOrCreateSession fetches the session if sessionID names a live one,
// otherwise starts a new session for the course.
func (c *Client) GetOrCreateSession(ctx context.Context, courseID, sessionID string) (*models.ChatSession, error) {
	if sessionID != "" {
		const q = `
			SELECT id, course_id, title, is_active, created_at, updated_at
			FROM chat_sessions WHERE id = $1 AND course_id = $2 AND is_active
		`
		var s models.ChatSession
		err := c.db.QueryRowContext(ctx, q, sessionID, courseID).Scan(
			&s.ID, &s.CourseID, &s.Title, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
		)
		if err == nil {
			return &s, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}

	s := models.ChatSession{
		ID:       uuid.NewString(),
		CourseID: courseID,
		IsActive: true,
	}
	const ins = `
		INSERT INTO chat_sessions (id, course_id, title, is_active, created_at, updated_at)
		VALUES ($1, $2, '', true, now(), now())
		RETURNING created_at, updated_at
	`
	if err := c.db.QueryRowContext(ctx, ins, s.ID, s.CourseID).Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) AddChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	sources, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	const q = `
		INSERT INTO chat_messages (id, session_id, course_id, role, content, sources, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	_, err = c.db.ExecContext(ctx, q,
		msg.ID, msg.SessionID, msg.CourseID, msg.Role, msg.Content, sources, msg.Confidence)
	return err
}

func (c *Client) GetMessagesBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	// Newest window of the conversation, returned oldest first.
	const q = `
		SELECT id, session_id, course_id, role, content, sources, confidence, created_at
		FROM (
			SELECT id, session_id, course_id, role, content, sources, confidence, created_at
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) latest
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var (
			m       models.ChatMessage
			sources []byte
		)
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.CourseID, &m.Role, &m.Content, &sources, &m.Confidence, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &m.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal sources: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
