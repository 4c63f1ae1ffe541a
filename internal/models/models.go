package models

import (
	"time"
)

// Course is the owning record for a set of documents. The pipeline only
// needs its identifier; the rest mirrors what the browser extension syncs.
type Course struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Code        string     `db:"code" json:"code"`
	Description string     `db:"description" json:"description"`
	FileCount   int        `db:"file_count" json:"file_count"`
	ModuleCount int        `db:"module_count" json:"module_count"`
	LastSync    *time.Time `db:"last_sync" json:"last_sync,omitempty"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Document lifecycle statuses.
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

// Document represents one ingested course file.
type Document struct {
	ID           string     `db:"id" json:"id"`
	CourseID     string     `db:"course_id" json:"course_id"`
	Filename     string     `db:"filename" json:"filename"`
	FilePath     string     `db:"file_path" json:"file_path"` // object-store key or sync path
	FileType     string     `db:"file_type" json:"file_type"`
	FileSize     int64      `db:"file_size" json:"file_size"`
	Status       string     `db:"status" json:"status"`
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	ChunkCount   int        `db:"chunk_count" json:"chunk_count"`
	ProcessedAt  *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Queue item statuses. failed is terminal until an explicit retry reset.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// QueueJob is one ingestion job tracked by the processing queue.
type QueueJob struct {
	ID          string     `db:"id" json:"id"`
	CourseID    string     `db:"course_id" json:"course_id"`
	FilePath    string     `db:"file_path" json:"file_path"`
	Filename    string     `db:"filename" json:"filename"`
	Status      string     `db:"status" json:"status"`
	RetryCount  int        `db:"retry_count" json:"retry_count"`
	LastError   string     `db:"last_error" json:"last_error,omitempty"`
	QueuedAt    time.Time  `db:"queued_at" json:"queued_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// QueueStatus is the per-course progress summary.
type QueueStatus struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// ChatSession groups the messages of one conversation about a course.
type ChatSession struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Title     string    `db:"title" json:"title"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Citation points an answer back at the passage it came from.
type Citation struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Locator    string `json:"locator,omitempty"` // e.g. "Page 3", "Slide 2"
}

// ChatMessage is one user or assistant turn. Confidence is only meaningful
// on assistant turns and always stays within [0,1].
type ChatMessage struct {
	ID         string     `db:"id" json:"id"`
	SessionID  string     `db:"session_id" json:"session_id"`
	CourseID   string     `db:"course_id" json:"course_id"`
	Role       string     `db:"role" json:"role"` // "user" or "assistant"
	Content    string     `db:"content" json:"content"`
	Sources    []Citation `db:"sources" json:"sources"`
	Confidence float64    `db:"confidence" json:"confidence"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
