// Package ingestion_engine drains the processing queue: fetch blob,
// extract, chunk, embed, and atomically replace the document's chunk set in
// the vector index.
package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/core/extractor"
	"github.com/lectern-ai/lectern/internal/models"
)

// Config tunes the worker pool and the per-job pipeline.
type Config struct {
	Workers        int
	PollInterval   time.Duration
	JobTimeout     time.Duration
	ExtractTimeout time.Duration
	EmbedBatchSize int
	Chunker        ChunkerConfig
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 2 * time.Minute
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 16
	}
	return c
}

// Service owns the worker pool. Each worker claims one job at a time and
// runs it end to end; claim exclusivity in the queue is the only
// synchronization between workers.
type Service struct {
	queue      core.ProcessingQueue
	db         core.DbClient
	obj        core.ObjectClient
	bucket     string
	embedder   core.EmbeddingProvider
	index      core.VectorIndex
	extractors *extractor.Registry
	events     *Broadcaster
	log        *zap.Logger
	cfg        Config
}

func NewService(
	queue core.ProcessingQueue,
	db core.DbClient,
	obj core.ObjectClient,
	bucket string,
	embedder core.EmbeddingProvider,
	index core.VectorIndex,
	extractors *extractor.Registry,
	events *Broadcaster,
	log *zap.Logger,
	cfg Config,
) *Service {
	if events == nil {
		events = NewBroadcaster()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		queue: queue, db: db, obj: obj, bucket: bucket,
		embedder: embedder, index: index, extractors: extractors,
		events: events, log: log.Named("ingestor"), cfg: cfg.withDefaults(),
	}
}

// Events exposes the lifecycle broadcaster for subscribers.
func (s *Service) Events() *Broadcaster { return s.events }

// Run blocks until ctx is cancelled, polling the queue with the configured
// worker count.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := 1; w <= s.cfg.Workers; w++ {
		id := w
		g.Go(func() error { return s.worker(ctx, id) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Service) worker(ctx context.Context, id int) error {
	log := s.log.With(zap.Int("worker", id))
	for {
		processed, err := s.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker shutting down")
				return ctx.Err()
			}
			log.Error("claim failed", zap.Error(err))
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// ProcessNext claims and processes a single job. Reports whether a job was
// available; job-level failures are absorbed into queue bookkeeping and not
// returned.
func (s *Service) ProcessNext(ctx context.Context) (bool, error) {
	job, err := s.queue.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	s.process(ctx, job)
	return true, nil
}

func (s *Service) process(ctx context.Context, job *models.QueueJob) {
	log := s.log.With(
		zap.String("job_id", job.ID),
		zap.String("course_id", job.CourseID),
		zap.String("filename", job.Filename),
	)
	// Bookkeeping must outlive the job timeout, otherwise a timed-out job
	// would stay stuck in processing.
	bctx := context.WithoutCancel(ctx)
	jctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	s.events.Publish(Event{Type: EventJobStarted, CourseID: job.CourseID, Filename: job.Filename})
	log.Info("processing job", zap.Int("retry_count", job.RetryCount))

	doc, err := s.resolveDocument(jctx, job)
	if err != nil {
		s.fail(bctx, job, nil, fmt.Errorf("resolve document: %w", err))
		return
	}
	_ = s.db.UpdateDocumentStatus(jctx, doc.ID, models.DocStatusProcessing, "")

	blob, err := s.obj.GetFile(jctx, s.bucket, job.FilePath)
	if err != nil {
		s.fail(bctx, job, doc, fmt.Errorf("fetch blob: %w", err))
		return
	}

	ext, err := s.extractors.ForFilename(job.Filename)
	if err != nil {
		s.fail(bctx, job, doc, err)
		return
	}

	ectx, ecancel := context.WithTimeout(jctx, s.cfg.ExtractTimeout)
	text, markers, err := ext.Extract(ectx, blob)
	ecancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Re-extracting a pathologically large file would starve the
			// queue; one attempt is all it gets.
			s.failPermanent(bctx, job, doc, "extraction timed out")
			return
		}
		s.fail(bctx, job, doc, err)
		return
	}

	chunks := SplitText(text, markers, s.cfg.Chunker)
	if len(chunks) == 0 {
		s.failPermanent(bctx, job, doc, "no text extracted")
		return
	}

	vectors, err := s.embedAll(jctx, chunks)
	if err != nil {
		s.fail(bctx, job, doc, err)
		return
	}

	entries := make([]core.ChunkEntry, len(chunks))
	for i, ch := range chunks {
		entries[i] = core.ChunkEntry{
			CourseID:   job.CourseID,
			DocumentID: doc.ID,
			ChunkIndex: ch.Index,
			Text:       ch.Text,
			Locator:    ch.Locator,
			Embedding:  vectors[i],
		}
	}

	// Replace, never append: the previous chunk set goes away before the
	// new one lands, so a retried job can't leave stale or duplicate rows.
	if err := s.index.DeleteByDocument(jctx, doc.ID); err != nil {
		s.fail(bctx, job, doc, &core.VectorIndexError{Err: err})
		return
	}
	if err := s.index.Upsert(jctx, entries); err != nil {
		// Compensate a possibly half-written batch; the whole job retries.
		if derr := s.index.DeleteByDocument(bctx, doc.ID); derr != nil {
			log.Error("compensating delete failed", zap.Error(derr))
		}
		s.fail(bctx, job, doc, &core.VectorIndexError{Err: err})
		return
	}

	// The parent may have been deleted mid-flight; completion then becomes
	// a no-op and the fresh chunks are swept away.
	cur, err := s.db.GetDocumentByID(jctx, doc.ID)
	if err == nil && cur == nil {
		_ = s.index.DeleteByDocument(bctx, doc.ID)
		_ = s.queue.MarkCompleted(bctx, job.ID)
		log.Info("document deleted mid-flight, completion is a no-op")
		return
	}

	if err := s.db.FinishDocument(jctx, doc.ID, len(chunks)); err != nil {
		s.fail(bctx, job, doc, fmt.Errorf("finish document: %w", err))
		return
	}
	if err := s.queue.MarkCompleted(bctx, job.ID); err != nil {
		log.Error("mark completed failed", zap.Error(err))
		return
	}

	s.events.Publish(Event{Type: EventJobCompleted, CourseID: job.CourseID, DocumentID: doc.ID, Filename: job.Filename})
	log.Info("job completed", zap.Int("chunks", len(chunks)))
}

// resolveDocument finds the document record for the job's file, creating
// one for sync-originated files that were queued before any record existed.
func (s *Service) resolveDocument(ctx context.Context, job *models.QueueJob) (*models.Document, error) {
	doc, err := s.db.GetDocumentByPath(ctx, job.CourseID, job.FilePath)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		return doc, nil
	}
	doc = &models.Document{
		ID:       uuid.NewString(),
		CourseID: job.CourseID,
		Filename: job.Filename,
		FilePath: job.FilePath,
		Status:   models.DocStatusProcessing,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// embedAll embeds chunk texts in order-preserving batches.
func (s *Service) embedAll(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := start + s.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Text
		}
		vecs, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			var gw *core.EmbeddingGatewayError
			if errors.As(err, &gw) {
				return nil, err
			}
			return nil, &core.EmbeddingGatewayError{Err: err}
		}
		if len(vecs) != len(texts) {
			return nil, &core.EmbeddingGatewayError{
				Err: fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(texts)),
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (s *Service) fail(ctx context.Context, job *models.QueueJob, doc *models.Document, err error) {
	msg := err.Error()
	if !core.IsRetryable(err) {
		s.failPermanent(ctx, job, doc, msg)
		return
	}
	requeued, qerr := s.queue.MarkFailed(ctx, job.ID, msg)
	if qerr != nil {
		s.log.Error("mark failed errored", zap.String("job_id", job.ID), zap.Error(qerr))
		return
	}
	if requeued {
		s.events.Publish(Event{Type: EventJobRequeued, CourseID: job.CourseID, Filename: job.Filename, Error: msg})
		s.log.Warn("job requeued", zap.String("job_id", job.ID), zap.String("error", msg))
		return
	}
	if doc != nil {
		_ = s.db.UpdateDocumentStatus(ctx, doc.ID, models.DocStatusFailed, msg)
	}
	s.events.Publish(Event{Type: EventJobFailed, CourseID: job.CourseID, Filename: job.Filename, Error: msg})
	s.log.Error("job failed, retries exhausted", zap.String("job_id", job.ID), zap.String("error", msg))
}

func (s *Service) failPermanent(ctx context.Context, job *models.QueueJob, doc *models.Document, msg string) {
	if err := s.queue.MarkFailedPermanent(ctx, job.ID, msg); err != nil {
		s.log.Error("mark failed permanent errored", zap.String("job_id", job.ID), zap.Error(err))
	}
	if doc != nil {
		_ = s.db.UpdateDocumentStatus(ctx, doc.ID, models.DocStatusFailed, msg)
	}
	s.events.Publish(Event{Type: EventJobFailed, CourseID: job.CourseID, Filename: job.Filename, Error: msg})
	s.log.Error("job failed permanently", zap.String("job_id", job.ID), zap.String("error", msg))
}
