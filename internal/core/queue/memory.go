// Package queue provides the durable processing queue behind ingestion.
// Two implementations share one contract: a Postgres-backed queue for
// production and an in-memory queue for tests and single-node setups.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/models"
)

type memoryJob struct {
	models.QueueJob
	seq int64 // tie-break for identical QueuedAt timestamps
}

// MemoryQueue is a mutex-guarded ProcessingQueue. Claim exclusivity holds
// across any number of goroutines in one process.
type MemoryQueue struct {
	mu         sync.Mutex
	jobs       map[string]*memoryJob
	seq        int64
	maxRetries int
}

var _ core.ProcessingQueue = (*MemoryQueue)(nil)

func NewMemoryQueue(maxRetries int) *MemoryQueue {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &MemoryQueue{
		jobs:       make(map[string]*memoryJob),
		maxRetries: maxRetries,
	}
}

// Enqueue adds a job for (courseID, filePath). If a job for the same file is
// already queued or processing, the existing job's ID is returned and no
// duplicate is created.
func (q *MemoryQueue) Enqueue(ctx context.Context, courseID, filePath, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if courseID == "" || filePath == "" {
		return "", &core.ValidationError{Reason: "course id and file path are required"}
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, j := range q.jobs {
		if j.CourseID == courseID && j.FilePath == filePath &&
			(j.Status == models.JobQueued || j.Status == models.JobProcessing) {
			return j.ID, nil
		}
	}

	q.seq++
	j := &memoryJob{
		QueueJob: models.QueueJob{
			ID:       uuid.NewString(),
			CourseID: courseID,
			FilePath: filePath,
			Filename: filename,
			Status:   models.JobQueued,
			QueuedAt: time.Now(),
		},
		seq: q.seq,
	}
	q.jobs[j.ID] = j
	return j.ID, nil
}

// ClaimNext atomically moves the oldest queued job to processing and returns
// it. Returns (nil, nil) when nothing is queued.
func (q *MemoryQueue) ClaimNext(ctx context.Context) (*models.QueueJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	var oldest *memoryJob
	for _, j := range q.jobs {
		if j.Status != models.JobQueued {
			continue
		}
		if oldest == nil || j.QueuedAt.Before(oldest.QueuedAt) ||
			(j.QueuedAt.Equal(oldest.QueuedAt) && j.seq < oldest.seq) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	now := time.Now()
	oldest.Status = models.JobProcessing
	oldest.StartedAt = &now
	cp := oldest.QueueJob
	return &cp, nil
}

func (q *MemoryQueue) MarkCompleted(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return &core.NotFoundError{Kind: "queue job", ID: jobID}
	}
	now := time.Now()
	j.Status = models.JobCompleted
	j.CompletedAt = &now
	j.LastError = ""
	return nil
}

// MarkFailed records a transient failure. Below the retry cap the job goes
// back to queued with retry_count incremented; at the cap it lands in failed.
// Reports whether the job was requeued.
func (q *MemoryQueue) MarkFailed(ctx context.Context, jobID, errMsg string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return false, &core.NotFoundError{Kind: "queue job", ID: jobID}
	}
	j.RetryCount++
	j.LastError = errMsg
	if j.RetryCount >= q.maxRetries {
		now := time.Now()
		j.Status = models.JobFailed
		j.CompletedAt = &now
		return false, nil
	}
	j.Status = models.JobQueued
	j.StartedAt = nil
	return true, nil
}

// MarkFailedPermanent fails a job regardless of its retry budget. Used for
// errors that cannot succeed on retry, like unsupported or corrupt files.
func (q *MemoryQueue) MarkFailedPermanent(ctx context.Context, jobID, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return &core.NotFoundError{Kind: "queue job", ID: jobID}
	}
	now := time.Now()
	j.Status = models.JobFailed
	j.LastError = errMsg
	j.CompletedAt = &now
	return nil
}

func (q *MemoryQueue) Status(ctx context.Context, courseID string) (models.QueueStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.QueueStatus{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	var st models.QueueStatus
	for _, j := range q.jobs {
		if courseID != "" && j.CourseID != courseID {
			continue
		}
		switch j.Status {
		case models.JobQueued:
			st.Queued++
		case models.JobProcessing:
			st.Processing++
		case models.JobCompleted:
			st.Completed++
		case models.JobFailed:
			st.Failed++
		}
	}
	return st, nil
}

// Clear removes queued, completed, and failed jobs for a course. Jobs in
// processing are left alone; their workers own them.
func (q *MemoryQueue) Clear(ctx context.Context, courseID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, j := range q.jobs {
		if courseID != "" && j.CourseID != courseID {
			continue
		}
		if j.Status == models.JobProcessing {
			continue
		}
		delete(q.jobs, id)
		removed++
	}
	return removed, nil
}

// RetryFailed resets every failed job for a course back to queued with a
// fresh retry budget.
func (q *MemoryQueue) RetryFailed(ctx context.Context, courseID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	reset := 0
	for _, j := range q.jobs {
		if courseID != "" && j.CourseID != courseID {
			continue
		}
		if j.Status != models.JobFailed {
			continue
		}
		j.Status = models.JobQueued
		j.RetryCount = 0
		j.LastError = ""
		j.StartedAt = nil
		j.CompletedAt = nil
		j.QueuedAt = time.Now()
		q.seq++
		j.seq = q.seq
		reset++
	}
	return reset, nil
}

// DeleteForFile drops the file's jobs, sparing an in-flight claim the same
// way Clear does. The worker holding it finds the parent gone and no-ops
// the completion.
func (q *MemoryQueue) DeleteForFile(ctx context.Context, courseID, filePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, j := range q.jobs {
		if j.CourseID == courseID && j.FilePath == filePath && j.Status != models.JobProcessing {
			delete(q.jobs, id)
		}
	}
	return nil
}

// Jobs returns a snapshot of all jobs for a course ordered oldest first.
// Used by the queue status endpoint's detail view and by tests.
func (q *MemoryQueue) Jobs(ctx context.Context, courseID string) ([]models.QueueJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*memoryJob, 0, len(q.jobs))
	for _, j := range q.jobs {
		if courseID != "" && j.CourseID != courseID {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].QueuedAt.Equal(out[b].QueuedAt) {
			return out[a].QueuedAt.Before(out[b].QueuedAt)
		}
		return out[a].seq < out[b].seq
	})
	jobs := make([]models.QueueJob, len(out))
	for i, j := range out {
		jobs[i] = j.QueueJob
	}
	return jobs, nil
}
