// Package vectorindex stores chunk embeddings and serves course-scoped
// cosine similarity search. The pgvector implementation is the production
// path; the in-memory one backs tests and small single-node deployments.
package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/lectern-ai/lectern/internal/core"
)

// MemoryIndex is a mutex-guarded VectorIndex doing brute-force cosine scans.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []core.ChunkEntry
}

var _ core.VectorIndex = (*MemoryIndex)(nil)

func NewMemoryIndex() *MemoryIndex { return &MemoryIndex{} }

// Upsert inserts entries, replacing any existing entry with the same
// (document_id, chunk_index) identity.
func (m *MemoryIndex) Upsert(ctx context.Context, entries []core.ChunkEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		replaced := false
		for i := range m.entries {
			if m.entries[i].DocumentID == e.DocumentID && m.entries[i].ChunkIndex == e.ChunkIndex {
				m.entries[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			m.entries = append(m.entries, e)
		}
	}
	return nil
}

func (m *MemoryIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.DocumentID != documentID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

func (m *MemoryIndex) DeleteByCourse(ctx context.Context, courseID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.CourseID != courseID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

// Search returns the k nearest chunks of the course by cosine similarity,
// descending, ties broken by ascending (document_id, chunk_index).
func (m *MemoryIndex) Search(ctx context.Context, courseID string, vector []float32, k int) ([]core.ChunkMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []core.ChunkMatch
	for _, e := range m.entries {
		if e.CourseID != courseID {
			continue
		}
		matches = append(matches, core.ChunkMatch{
			DocumentID: e.DocumentID,
			ChunkIndex: e.ChunkIndex,
			Text:       e.Text,
			Locator:    e.Locator,
			Similarity: cosine(vector, e.Embedding),
		})
	}
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Similarity != matches[b].Similarity {
			return matches[a].Similarity > matches[b].Similarity
		}
		if matches[a].DocumentID != matches[b].DocumentID {
			return matches[a].DocumentID < matches[b].DocumentID
		}
		return matches[a].ChunkIndex < matches[b].ChunkIndex
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count reports the number of stored chunks for a document. Test helper.
func (m *MemoryIndex) Count(documentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if e.DocumentID == documentID {
			n++
		}
	}
	return n
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
