package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectern-ai/lectern/internal/models"
)

func TestEnqueueIdempotent(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)

	first, err := q.Enqueue(ctx, "course-1", "course-1/notes.pdf", "notes.pdf")
	require.NoError(t, err)

	second, err := q.Enqueue(ctx, "course-1", "course-1/notes.pdf", "notes.pdf")
	require.NoError(t, err)
	assert.Equal(t, first, second, "same file while queued must not create a second job")

	st, err := q.Status(ctx, "course-1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Queued)

	// Same path in another course is a distinct job.
	other, err := q.Enqueue(ctx, "course-2", "course-1/notes.pdf", "notes.pdf")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestEnqueueAfterTerminalStateCreatesNewJob(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)

	first, err := q.Enqueue(ctx, "c", "c/a.txt", "a.txt")
	require.NoError(t, err)
	job, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, job.ID))

	second, err := q.Enqueue(ctx, "c", "c/a.txt", "a.txt")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "completed job must not block re-enqueue")
}

func TestClaimNextOldestFirst(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := q.Enqueue(ctx, "c", "c/"+name, name)
		require.NoError(t, err)
	}

	var got []string
	for i := 0; i < 3; i++ {
		job, err := q.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, models.JobProcessing, job.Status)
		got = append(got, job.Filename)
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, got)

	job, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, job, "empty queue claims (nil, nil)")
}

func TestClaimNextExclusiveUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)

	const jobs = 50
	for i := 0; i < jobs; i++ {
		_, err := q.Enqueue(ctx, "c", "c/file-"+string(rune('a'+i%26))+string(rune('0'+i/26)), "f")
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.ClaimNext(ctx)
				if err != nil || job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, jobs)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestMarkFailedRetriesThenFreezes(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)

	_, err := q.Enqueue(ctx, "c", "c/a.pdf", "a.pdf")
	require.NoError(t, err)

	// Two transient failures requeue, the third freezes.
	for attempt := 1; attempt <= 2; attempt++ {
		job, err := q.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, attempt-1, job.RetryCount)

		requeued, err := q.MarkFailed(ctx, job.ID, "embed timeout")
		require.NoError(t, err)
		assert.True(t, requeued)
	}

	job, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	requeued, err := q.MarkFailed(ctx, job.ID, "embed timeout")
	require.NoError(t, err)
	assert.False(t, requeued, "retry cap reached, job must freeze")

	st, err := q.Status(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatus{Failed: 1}, st)

	// Frozen jobs are not claimable.
	job, err = q.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestMarkFailedPermanentSkipsRetryBudget(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)

	_, err := q.Enqueue(ctx, "c", "c/a.exe", "a.exe")
	require.NoError(t, err)
	job, err := q.ClaimNext(ctx)
	require.NoError(t, err)

	require.NoError(t, q.MarkFailedPermanent(ctx, job.ID, "unsupported format"))

	st, err := q.Status(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Failed)

	next, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestRetryFailedResetsBudget(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)

	_, err := q.Enqueue(ctx, "c", "c/a.pdf", "a.pdf")
	require.NoError(t, err)
	job, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	requeued, err := q.MarkFailed(ctx, job.ID, "boom")
	require.NoError(t, err)
	require.False(t, requeued)

	reset, err := q.RetryFailed(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	job, err = q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 0, job.RetryCount, "retry budget must be fresh")
	assert.Empty(t, job.LastError)
}

func TestClearSparesProcessing(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)

	_, err := q.Enqueue(ctx, "c", "c/a.txt", "a.txt")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "c", "c/b.txt", "b.txt")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "other", "other/x.txt", "x.txt")
	require.NoError(t, err)

	inflight, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, "a.txt", inflight.Filename)

	removed, err := q.Clear(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only the queued job is cleared")

	st, err := q.Status(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatus{Processing: 1}, st)

	// The other course is untouched.
	st, err = q.Status(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Queued)
}

func TestDeleteForFileDropsSettledJobs(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)

	_, err := q.Enqueue(ctx, "c", "c/a.txt", "a.txt")
	require.NoError(t, err)
	job, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, job.ID))
	_, err = q.Enqueue(ctx, "c", "c/a.txt", "a.txt")
	require.NoError(t, err)

	require.NoError(t, q.DeleteForFile(ctx, "c", "c/a.txt"))

	st, err := q.Status(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatus{}, st)
}

func TestDeleteForFileSparesInFlightClaim(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)

	// A settled job and an in-flight claim for the same file.
	_, err := q.Enqueue(ctx, "c", "c/a.txt", "a.txt")
	require.NoError(t, err)
	job, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, job.ID))
	_, err = q.Enqueue(ctx, "c", "c/a.txt", "a.txt")
	require.NoError(t, err)
	claimed, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, q.DeleteForFile(ctx, "c", "c/a.txt"))

	st, err := q.Status(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatus{Processing: 1}, st, "the worker still owns its claim")

	// The owning worker can settle the spared claim normally.
	require.NoError(t, q.MarkCompleted(ctx, claimed.ID))
}
