package queue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/models"
)

// PostgresQueue backs the processing queue with the processing_queue table.
// Claim exclusivity comes from FOR UPDATE SKIP LOCKED, so any number of
// workers across any number of processes can poll the same table.
type PostgresQueue struct {
	db         *sql.DB
	maxRetries int
}

var _ core.ProcessingQueue = (*PostgresQueue)(nil)

func NewPostgresQueue(db *sql.DB, maxRetries int) *PostgresQueue {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &PostgresQueue{db: db, maxRetries: maxRetries}
}

// Enqueue relies on the partial unique index over (course_id, file_path)
// WHERE status IN ('queued','processing'): a concurrent duplicate insert
// hits ON CONFLICT DO NOTHING and the existing job id is re-selected.
func (q *PostgresQueue) Enqueue(ctx context.Context, courseID, filePath, filename string) (string, error) {
	if courseID == "" || filePath == "" {
		return "", &core.ValidationError{Reason: "course id and file path are required"}
	}
	const ins = `
		INSERT INTO processing_queue (id, course_id, file_path, filename, status, retry_count, queued_at)
		VALUES (gen_random_uuid(), $1, $2, $3, 'queued', 0, now())
		ON CONFLICT (course_id, file_path) WHERE status IN ('queued', 'processing')
		DO NOTHING
		RETURNING id
	`
	var id string
	err := q.db.QueryRowContext(ctx, ins, courseID, filePath, filename).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	const sel = `
		SELECT id FROM processing_queue
		WHERE course_id = $1 AND file_path = $2 AND status IN ('queued', 'processing')
		ORDER BY queued_at DESC
		LIMIT 1
	`
	if err := q.db.QueryRowContext(ctx, sel, courseID, filePath).Scan(&id); err != nil {
		return "", fmt.Errorf("enqueue reselect: %w", err)
	}
	return id, nil
}

func (q *PostgresQueue) ClaimNext(ctx context.Context) (*models.QueueJob, error) {
	const claim = `
		UPDATE processing_queue
		SET status = 'processing', started_at = now()
		WHERE id = (
			SELECT id FROM processing_queue
			WHERE status = 'queued'
			ORDER BY queued_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, course_id, file_path, filename, status, retry_count,
		          COALESCE(last_error, ''), queued_at, started_at, completed_at
	`
	var j models.QueueJob
	err := q.db.QueryRowContext(ctx, claim).Scan(
		&j.ID, &j.CourseID, &j.FilePath, &j.Filename, &j.Status, &j.RetryCount,
		&j.LastError, &j.QueuedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next: %w", err)
	}
	return &j, nil
}

func (q *PostgresQueue) MarkCompleted(ctx context.Context, jobID string) error {
	const upd = `
		UPDATE processing_queue
		SET status = 'completed', completed_at = now(), last_error = NULL
		WHERE id = $1
	`
	res, err := q.db.ExecContext(ctx, upd, jobID)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Kind: "queue job", ID: jobID}
	}
	return nil
}

// MarkFailed increments the retry counter and picks the next state in one
// statement, so a crash between the two can't split them.
func (q *PostgresQueue) MarkFailed(ctx context.Context, jobID, errMsg string) (bool, error) {
	const upd = `
		UPDATE processing_queue
		SET retry_count = retry_count + 1,
		    last_error  = $2,
		    status      = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'queued' END,
		    started_at  = CASE WHEN retry_count + 1 >= $3 THEN started_at ELSE NULL END,
		    completed_at = CASE WHEN retry_count + 1 >= $3 THEN now() ELSE NULL END
		WHERE id = $1
		RETURNING status
	`
	var status string
	err := q.db.QueryRowContext(ctx, upd, jobID, errMsg, q.maxRetries).Scan(&status)
	if err == sql.ErrNoRows {
		return false, &core.NotFoundError{Kind: "queue job", ID: jobID}
	}
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return status == models.JobQueued, nil
}

func (q *PostgresQueue) MarkFailedPermanent(ctx context.Context, jobID, errMsg string) error {
	const upd = `
		UPDATE processing_queue
		SET status = 'failed', last_error = $2, completed_at = now()
		WHERE id = $1
	`
	res, err := q.db.ExecContext(ctx, upd, jobID, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed permanent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Kind: "queue job", ID: jobID}
	}
	return nil
}

func (q *PostgresQueue) Status(ctx context.Context, courseID string) (models.QueueStatus, error) {
	const sel = `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM processing_queue
		WHERE ($1 = '' OR course_id = $1)
	`
	var st models.QueueStatus
	err := q.db.QueryRowContext(ctx, sel, courseID).Scan(
		&st.Queued, &st.Processing, &st.Completed, &st.Failed,
	)
	if err != nil {
		return models.QueueStatus{}, fmt.Errorf("queue status: %w", err)
	}
	return st, nil
}

func (q *PostgresQueue) Clear(ctx context.Context, courseID string) (int, error) {
	const del = `
		DELETE FROM processing_queue
		WHERE ($1 = '' OR course_id = $1) AND status <> 'processing'
	`
	res, err := q.db.ExecContext(ctx, del, courseID)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (q *PostgresQueue) RetryFailed(ctx context.Context, courseID string) (int, error) {
	const upd = `
		UPDATE processing_queue
		SET status = 'queued', retry_count = 0, last_error = NULL,
		    started_at = NULL, completed_at = NULL, queued_at = now()
		WHERE ($1 = '' OR course_id = $1) AND status = 'failed'
	`
	res, err := q.db.ExecContext(ctx, upd, courseID)
	if err != nil {
		return 0, fmt.Errorf("retry failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteForFile spares a processing row; the claiming worker no-ops once it
// sees the parent document is gone.
func (q *PostgresQueue) DeleteForFile(ctx context.Context, courseID, filePath string) error {
	const del = `
		DELETE FROM processing_queue
		WHERE course_id = $1 AND file_path = $2 AND status <> 'processing'
	`
	if _, err := q.db.ExecContext(ctx, del, courseID, filePath); err != nil {
		return fmt.Errorf("delete queue items for file: %w", err)
	}
	return nil
}
