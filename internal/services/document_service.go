// Package services holds the use-case layer between the HTTP handlers and
// the core infrastructure clients.
package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/core/extractor"
	"github.com/lectern-ai/lectern/internal/models"
)

type DocumentService struct {
	db       core.DbClient
	storage  core.ObjectClient
	queue    core.ProcessingQueue
	index    core.VectorIndex
	bucket   string
	maxBytes int64
	log      *zap.Logger
}

func NewDocumentService(
	db core.DbClient,
	storage core.ObjectClient,
	queue core.ProcessingQueue,
	index core.VectorIndex,
	bucket string,
	maxUploadMB int,
	log *zap.Logger,
) *DocumentService {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentService{
		db: db, storage: storage, queue: queue, index: index,
		bucket: bucket,
		maxBytes: int64(maxUploadMB) << 20,
		log:      log.Named("documents"),
	}
}

// MaxUploadBytes is the upload size ceiling enforced before any write.
func (s *DocumentService) MaxUploadBytes() int64 { return s.maxBytes }

// Validate rejects unsupported extensions and oversized files before the
// blob touches storage or the queue. Both rejections are input validation
// here; UnsupportedFormatError is reserved for the worker-side extractor
// dispatch.
func (s *DocumentService) Validate(filename string, size int64) error {
	if !extractor.Supported(filename) {
		return &core.ValidationError{
			Reason: fmt.Sprintf("unsupported format %q", strings.ToLower(path.Ext(filename))),
		}
	}
	if size > s.maxBytes {
		return &core.ValidationError{
			Reason: fmt.Sprintf("file %s exceeds the %d MB limit", filename, s.maxBytes>>20),
		}
	}
	return nil
}

// UploadAndEnqueue stores the blob, records the document, and queues it for
// ingestion. The object key doubles as the queue's file path.
func (s *DocumentService) UploadAndEnqueue(ctx context.Context, courseID, filename, contentType string, data []byte) (*models.Document, error) {
	if err := s.Validate(filename, int64(len(data))); err != nil {
		return nil, err
	}
	course, err := s.db.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, &core.NotFoundError{Kind: "course", ID: courseID}
	}

	docID := uuid.NewString()
	key := s.objectKey(courseID, docID, filename)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := s.storage.UploadFile(ctx, s.bucket, key, bytes.NewReader(data), contentType); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	doc := &models.Document{
		ID:       docID,
		CourseID: courseID,
		Filename: filename,
		FilePath: key,
		FileType: strings.TrimPrefix(strings.ToLower(path.Ext(filename)), "."),
		FileSize: int64(len(data)),
		Status:   models.DocStatusPending,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	if _, err := s.queue.Enqueue(ctx, courseID, key, filename); err != nil {
		return nil, err
	}
	s.log.Info("document uploaded and queued",
		zap.String("course_id", courseID), zap.String("document_id", docID), zap.String("filename", filename))
	return doc, nil
}

// EnqueueSynced queues a file announced by the sync extension. No blob is
// uploaded here; the worker fetches it from storage by path.
func (s *DocumentService) EnqueueSynced(ctx context.Context, courseID, filePath, filename string) (string, error) {
	if filename == "" {
		filename = path.Base(filePath)
	}
	if err := s.Validate(filename, 0); err != nil {
		return "", err
	}
	course, err := s.db.GetCourseByID(ctx, courseID)
	if err != nil {
		return "", err
	}
	if course == nil {
		return "", &core.NotFoundError{Kind: "course", ID: courseID}
	}
	return s.queue.Enqueue(ctx, courseID, filePath, filename)
}

func (s *DocumentService) ListByCourse(ctx context.Context, courseID string) ([]models.Document, error) {
	return s.db.ListDocumentsByCourse(ctx, courseID)
}

// Delete cascades: chunks leave the vector index, queue items for the file
// are dropped, the blob is removed, then the record goes. A worker holding
// the file mid-flight will notice the record is gone and no-op its
// completion.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return &core.NotFoundError{Kind: "document", ID: documentID}
	}

	if err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.queue.DeleteForFile(ctx, doc.CourseID, doc.FilePath); err != nil {
		return fmt.Errorf("delete queue items: %w", err)
	}
	if err := s.storage.DeleteFile(ctx, s.bucket, doc.FilePath); err != nil {
		// The blob is orphaned but the record cascade continues; storage
		// lifecycle rules clean these up.
		s.log.Warn("blob delete failed", zap.String("document_id", documentID), zap.Error(err))
	}
	if err := s.db.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.log.Info("document deleted", zap.String("document_id", documentID))
	return nil
}

// DeleteCourse is the document cascade applied course-wide: vector entries
// for the whole course, the course's settled queue items, every document's
// blob, then the course row (which takes document, session, and message rows
// with it). In-flight jobs keep their claims and no-op on completion.
func (s *DocumentService) DeleteCourse(ctx context.Context, courseID string) error {
	course, err := s.db.GetCourseByID(ctx, courseID)
	if err != nil {
		return err
	}
	if course == nil {
		return &core.NotFoundError{Kind: "course", ID: courseID}
	}

	docs, err := s.db.ListDocumentsByCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if err := s.index.DeleteByCourse(ctx, courseID); err != nil {
		return fmt.Errorf("delete course chunks: %w", err)
	}
	if _, err := s.queue.Clear(ctx, courseID); err != nil {
		return fmt.Errorf("clear course queue: %w", err)
	}
	for _, doc := range docs {
		if err := s.storage.DeleteFile(ctx, s.bucket, doc.FilePath); err != nil {
			s.log.Warn("blob delete failed",
				zap.String("course_id", courseID), zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	if err := s.db.DeleteCourse(ctx, courseID); err != nil {
		return err
	}
	s.log.Info("course deleted", zap.String("course_id", courseID), zap.Int("documents", len(docs)))
	return nil
}

// objectKey creates a consistent storage key layout.
func (s *DocumentService) objectKey(courseID, docID, filename string) string {
	filename = strings.ReplaceAll(strings.TrimSpace(filename), " ", "_")
	return path.Join("courses", courseID, "documents", docID, filename)
}
