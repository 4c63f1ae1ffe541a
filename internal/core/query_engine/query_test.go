package query_engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/core/database"
	"github.com/lectern-ai/lectern/internal/core/vectorindex"
	"github.com/lectern-ai/lectern/internal/models"
)

// unitEmbedder maps every text to a fixed unit vector so similarity against
// seeded chunks is fully controlled by the chunk embeddings.
type unitEmbedder struct{}

func (unitEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeLLM struct {
	calls      int
	lastSystem string
	lastUser   string
	answer     string
	err        error
}

func (f *fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type queryFixture struct {
	db    *database.MemoryClient
	index *vectorindex.MemoryIndex
	llm   *fakeLLM
	svc   *Service
}

func newQueryFixture(t *testing.T, cfg Config) *queryFixture {
	t.Helper()
	f := &queryFixture{
		db:    database.NewMemoryClient(),
		index: vectorindex.NewMemoryIndex(),
		llm:   &fakeLLM{answer: "Dynamic programming reuses subproblem results."},
	}
	f.svc = NewService(f.db, unitEmbedder{}, f.index, f.llm, zap.NewNop(), cfg)
	require.NoError(t, f.db.SyncCourse(context.Background(), &models.Course{ID: "course-1", Name: "Algorithms"}))
	return f
}

func (f *queryFixture) seedDoc(t *testing.T, docID, filename string) {
	t.Helper()
	require.NoError(t, f.db.CreateDocument(context.Background(), &models.Document{
		ID: docID, CourseID: "course-1", Filename: filename, FilePath: "course-1/" + filename,
		Status: models.DocStatusCompleted,
	}))
}

func chunkEntry(docID string, idx int, text, locator string, vec []float32) core.ChunkEntry {
	return core.ChunkEntry{
		CourseID: "course-1", DocumentID: docID, ChunkIndex: idx,
		Text: text, Locator: locator, Embedding: vec,
	}
}

func TestAskAnswersWithCitationsAndConfidence(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, Config{TopK: 5, RelevanceFloor: 0.35})
	f.seedDoc(t, "doc-a", "lecture-3.pdf")

	require.NoError(t, f.index.Upsert(ctx, []core.ChunkEntry{
		chunkEntry("doc-a", 0, "DP memoizes subproblems.", "Page 3", []float32{1, 0, 0}),
		chunkEntry("doc-a", 1, "Greedy differs from DP.", "Page 4", []float32{0.9, 0.4, 0}),
		chunkEntry("doc-a", 2, "Unrelated grading policy.", "Page 9", []float32{0, 0, 1}),
	}))

	ans, err := f.svc.Ask(ctx, "course-1", "What is dynamic programming?", "")
	require.NoError(t, err)

	assert.Equal(t, "Dynamic programming reuses subproblem results.", ans.Answer)
	assert.NotEmpty(t, ans.SessionID)
	assert.Equal(t, 2, ans.ChunksUsed, "the orthogonal chunk is below the floor")
	assert.Greater(t, ans.Confidence, 0.35)
	assert.LessOrEqual(t, ans.Confidence, 1.0)

	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "lecture-3.pdf", ans.Sources[0].Filename)
	assert.Equal(t, "Page 3", ans.Sources[0].Locator)

	// Context carries locator tags and reached the LLM.
	assert.Equal(t, 1, f.llm.calls)
	assert.Contains(t, f.llm.lastUser, "[Page 3] DP memoizes subproblems.")
	assert.Contains(t, f.llm.lastUser, "What is dynamic programming?")
}

func TestAskEmptyCourseInsufficientContext(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, Config{TopK: 5, RelevanceFloor: 0.35})

	ans, err := f.svc.Ask(ctx, "course-1", "What is covered in week 2?", "")
	require.NoError(t, err)

	assert.Equal(t, insufficientAnswer, ans.Answer)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, ans.Confidence)
	assert.Zero(t, f.llm.calls, "no relevant chunks means no generation call")

	// Both turns persisted regardless.
	msgs, err := f.svc.History(ctx, ans.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Zero(t, msgs[1].Confidence)
}

func TestAskAllChunksBelowFloor(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, Config{TopK: 5, RelevanceFloor: 0.35})
	f.seedDoc(t, "doc-a", "admin.txt")

	require.NoError(t, f.index.Upsert(ctx, []core.ChunkEntry{
		chunkEntry("doc-a", 0, "Office hours on Friday.", "", []float32{0, 1, 0}),
	}))

	ans, err := f.svc.Ask(ctx, "course-1", "Explain red-black trees", "")
	require.NoError(t, err)
	assert.Equal(t, insufficientAnswer, ans.Answer)
	assert.Zero(t, ans.Confidence)
	assert.Zero(t, f.llm.calls)
}

func TestAskConfidenceIsMeanOfUsedChunks(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, Config{TopK: 5, RelevanceFloor: 0.0})
	f.seedDoc(t, "doc-a", "notes.txt")

	// Similarities 1.0 and ~0.6.
	require.NoError(t, f.index.Upsert(ctx, []core.ChunkEntry{
		chunkEntry("doc-a", 0, "exact", "", []float32{1, 0, 0}),
		chunkEntry("doc-a", 1, "close", "", []float32{0.6, 0.8, 0}),
	}))

	ans, err := f.svc.Ask(ctx, "course-1", "anything", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, ans.Confidence, 1e-6)
}

func TestAskValidation(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, Config{})

	_, err := f.svc.Ask(ctx, "course-1", "   ", "")
	var validation *core.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = f.svc.Ask(ctx, "missing-course", "question?", "")
	var notFound *core.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestAskSessionContinuity(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, Config{TopK: 5, RelevanceFloor: 0.9})

	first, err := f.svc.Ask(ctx, "course-1", "first question", "")
	require.NoError(t, err)

	second, err := f.svc.Ask(ctx, "course-1", "second question", first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	msgs, err := f.svc.History(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestAskLLMErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, Config{TopK: 5, RelevanceFloor: 0.0})
	f.seedDoc(t, "doc-a", "notes.txt")
	require.NoError(t, f.index.Upsert(ctx, []core.ChunkEntry{
		chunkEntry("doc-a", 0, "text", "", []float32{1, 0, 0}),
	}))
	f.llm.err = errors.New("model unavailable")

	_, err := f.svc.Ask(ctx, "course-1", "question", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestAskContextBudgetLimitsChunks(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, Config{TopK: 5, RelevanceFloor: 0.0, MaxContextChars: 120})
	f.seedDoc(t, "doc-a", "notes.txt")

	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	require.NoError(t, f.index.Upsert(ctx, []core.ChunkEntry{
		chunkEntry("doc-a", 0, string(long), "", []float32{1, 0, 0}),
		chunkEntry("doc-a", 1, string(long), "", []float32{0.99, 0.1, 0}),
		chunkEntry("doc-a", 2, string(long), "", []float32{0.98, 0.2, 0}),
	}))

	ans, err := f.svc.Ask(ctx, "course-1", "question", "")
	require.NoError(t, err)
	assert.Equal(t, 1, ans.ChunksUsed, "budget admits only the best chunk")
	require.Len(t, ans.Sources, 1)
}
