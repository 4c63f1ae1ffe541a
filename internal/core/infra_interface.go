package core

import (
	"context"
	"io"

	"github.com/lectern-ai/lectern/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	SyncCourse(ctx context.Context, course *models.Course) error
	GetCourseByID(ctx context.Context, id string) (*models.Course, error)
	// DeleteCourse removes the course row and everything hanging off it
	// (documents, sessions, messages). Queue items and vector entries are
	// cleaned by the caller's cascade.
	DeleteCourse(ctx context.Context, id string) error

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByPath(ctx context.Context, courseID, filePath string) (*models.Document, error)
	ListDocumentsByCourse(ctx context.Context, courseID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id, status, errMsg string) error
	FinishDocument(ctx context.Context, id string, chunkCount int) error
	DeleteDocument(ctx context.Context, id string) error

	GetOrCreateSession(ctx context.Context, courseID, sessionID string) (*models.ChatSession, error)
	AddChatMessage(ctx context.Context, msg *models.ChatMessage) error
	GetMessagesBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be replaced with MinIO, GCS, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteFile(ctx context.Context, bucket, key string) error
}

// ProcessingQueue is the durable ingestion job tracker. ClaimNext is the
// single synchronization point of the pipeline: under concurrent callers at
// most one receives any given job.
type ProcessingQueue interface {
	// Enqueue inserts a queued item. Idempotent over (courseID, filePath):
	// if an item for that file is already queued or processing, the existing
	// job id is returned and nothing changes.
	Enqueue(ctx context.Context, courseID, filePath, filename string) (jobID string, err error)

	// ClaimNext atomically moves the oldest queued item to processing and
	// returns it exclusively to the caller. Returns (nil, nil) when empty.
	ClaimNext(ctx context.Context) (*models.QueueJob, error)

	MarkCompleted(ctx context.Context, jobID string) error

	// MarkFailed increments retry_count and requeues the job while under the
	// retry cap, otherwise freezes it in failed. Reports whether the job was
	// requeued.
	MarkFailed(ctx context.Context, jobID, errMsg string) (requeued bool, err error)

	// MarkFailedPermanent skips the retry policy entirely (corrupt or
	// unsupported content, extraction timeouts).
	MarkFailedPermanent(ctx context.Context, jobID, errMsg string) error

	Status(ctx context.Context, courseID string) (models.QueueStatus, error)

	// Clear removes non-processing items for a course; in-flight claims are
	// left alone to avoid orphaning them.
	Clear(ctx context.Context, courseID string) (removed int, err error)

	// RetryFailed resets failed items for a course back to queued with a
	// fresh retry budget.
	RetryFailed(ctx context.Context, courseID string) (reset int, err error)

	// DeleteForFile drops the file's non-processing items; part of the
	// document deletion cascade. An in-flight claim is left to its worker,
	// which no-ops the completion once it sees the parent is gone.
	DeleteForFile(ctx context.Context, courseID, filePath string) error
}

// ChunkEntry is one chunk headed for the vector index. Identity is
// (DocumentID, ChunkIndex) and is immutable once written.
type ChunkEntry struct {
	CourseID   string
	DocumentID string
	ChunkIndex int
	Text       string
	Locator    string
	Embedding  []float32
}

// ChunkMatch is a retrieval hit, similarity in descending order.
type ChunkMatch struct {
	DocumentID string
	ChunkIndex int
	Text       string
	Locator    string
	Similarity float64
}

// VectorIndex stores chunk embeddings and serves course-scoped nearest
// neighbor search (cosine similarity, ties broken by ascending chunk
// identity).
type VectorIndex interface {
	Upsert(ctx context.Context, entries []ChunkEntry) error
	DeleteByDocument(ctx context.Context, documentID string) error
	DeleteByCourse(ctx context.Context, courseID string) error
	Search(ctx context.Context, courseID string, vector []float32, k int) ([]ChunkMatch, error)
}
