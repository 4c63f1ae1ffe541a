package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectern-ai/lectern/internal/core"
)

func entry(course, doc string, idx int, vec []float32) core.ChunkEntry {
	return core.ChunkEntry{
		CourseID:   course,
		DocumentID: doc,
		ChunkIndex: idx,
		Text:       "chunk",
		Embedding:  vec,
	}
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, []core.ChunkEntry{
		entry("c", "doc-a", 0, []float32{1, 0, 0}),  // identical to query
		entry("c", "doc-a", 1, []float32{1, 1, 0}),  // ~0.707
		entry("c", "doc-a", 2, []float32{0, 1, 0}),  // orthogonal
		entry("c", "doc-a", 3, []float32{-1, 0, 0}), // opposite
	}))

	got, err := idx.Search(ctx, "c", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, 0, got[0].ChunkIndex)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-9)
	assert.Equal(t, 1, got[1].ChunkIndex)
	assert.InDelta(t, 0.7071, got[1].Similarity, 1e-3)
	assert.Equal(t, 2, got[2].ChunkIndex)
	assert.Equal(t, 3, got[3].ChunkIndex)
	assert.InDelta(t, -1.0, got[3].Similarity, 1e-9)
}

func TestSearchTieBreakIsStable(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	// All entries equidistant from the query.
	require.NoError(t, idx.Upsert(ctx, []core.ChunkEntry{
		entry("c", "doc-b", 1, []float32{1, 0}),
		entry("c", "doc-a", 2, []float32{1, 0}),
		entry("c", "doc-a", 0, []float32{1, 0}),
	}))

	got, err := idx.Search(ctx, "c", []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "doc-a", got[0].DocumentID)
	assert.Equal(t, 0, got[0].ChunkIndex)
	assert.Equal(t, "doc-a", got[1].DocumentID)
	assert.Equal(t, 2, got[1].ChunkIndex)
	assert.Equal(t, "doc-b", got[2].DocumentID)
}

func TestSearchScopedToCourse(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, []core.ChunkEntry{
		entry("course-1", "doc-a", 0, []float32{1, 0}),
		entry("course-2", "doc-b", 0, []float32{1, 0}),
	}))

	got, err := idx.Search(ctx, "course-1", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc-a", got[0].DocumentID)
}

func TestSearchHonorsK(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	for i := 0; i < 10; i++ {
		require.NoError(t, idx.Upsert(ctx, []core.ChunkEntry{
			entry("c", "doc", i, []float32{1, float32(i) * 0.1}),
		}))
	}

	got, err := idx.Search(ctx, "c", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestUpsertReplacesSameIdentity(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, []core.ChunkEntry{
		entry("c", "doc", 0, []float32{0, 1}),
	}))
	require.NoError(t, idx.Upsert(ctx, []core.ChunkEntry{
		entry("c", "doc", 0, []float32{1, 0}),
	}))

	assert.Equal(t, 1, idx.Count("doc"), "re-upsert must replace, not append")

	got, err := idx.Search(ctx, "c", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-9)
}

func TestDeleteByDocument(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, []core.ChunkEntry{
		entry("c", "doc-a", 0, []float32{1, 0}),
		entry("c", "doc-a", 1, []float32{1, 0}),
		entry("c", "doc-b", 0, []float32{1, 0}),
	}))

	require.NoError(t, idx.DeleteByDocument(ctx, "doc-a"))
	assert.Equal(t, 0, idx.Count("doc-a"))
	assert.Equal(t, 1, idx.Count("doc-b"))
}

func TestDeleteByCourse(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, []core.ChunkEntry{
		entry("course-1", "doc-a", 0, []float32{1, 0}),
		entry("course-2", "doc-b", 0, []float32{1, 0}),
	}))

	require.NoError(t, idx.DeleteByCourse(ctx, "course-1"))

	got, err := idx.Search(ctx, "course-1", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = idx.Search(ctx, "course-2", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
