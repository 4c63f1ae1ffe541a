package vectorindex

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/lectern-ai/lectern/internal/core"
)

// PostgresIndex stores chunk embeddings in the document_chunks table using
// the pgvector extension. Cosine distance (<=>) drives retrieval.
type PostgresIndex struct {
	db *sql.DB
}

var _ core.VectorIndex = (*PostgresIndex)(nil)

func NewPostgresIndex(db *sql.DB) *PostgresIndex {
	return &PostgresIndex{db: db}
}

// Upsert writes the batch in one transaction; the (document_id, chunk_index)
// primary key turns a retried write into an update instead of a duplicate.
func (p *PostgresIndex) Upsert(ctx context.Context, entries []core.ChunkEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}

	const q = `
		INSERT INTO document_chunks (document_id, chunk_index, course_id, text, locator, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (document_id, chunk_index)
		DO UPDATE SET course_id = EXCLUDED.course_id,
		              text      = EXCLUDED.text,
		              locator   = EXCLUDED.locator,
		              embedding = EXCLUDED.embedding
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		vec := pgvector.NewVector(e.Embedding)
		if _, err := stmt.ExecContext(ctx,
			e.DocumentID, e.ChunkIndex, e.CourseID, e.Text, e.Locator, vec,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert chunk %d: %w", e.ChunkIndex, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (p *PostgresIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	const q = `DELETE FROM document_chunks WHERE document_id = $1`
	if _, err := p.db.ExecContext(ctx, q, documentID); err != nil {
		return fmt.Errorf("delete chunks by document: %w", err)
	}
	return nil
}

func (p *PostgresIndex) DeleteByCourse(ctx context.Context, courseID string) error {
	const q = `DELETE FROM document_chunks WHERE course_id = $1`
	if _, err := p.db.ExecContext(ctx, q, courseID); err != nil {
		return fmt.Errorf("delete chunks by course: %w", err)
	}
	return nil
}

// Search orders by cosine distance with (document_id, chunk_index) as the
// tie-break, so equal-distance results come back in a stable order.
func (p *PostgresIndex) Search(ctx context.Context, courseID string, vector []float32, k int) ([]core.ChunkMatch, error) {
	if k <= 0 {
		return nil, nil
	}
	const q = `
		SELECT document_id, chunk_index, text, locator,
		       1 - (embedding <=> $2) AS similarity
		FROM document_chunks
		WHERE course_id = $1
		ORDER BY embedding <=> $2, document_id, chunk_index
		LIMIT $3
	`
	vec := pgvector.NewVector(vector)
	rows, err := p.db.QueryContext(ctx, q, courseID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []core.ChunkMatch
	for rows.Next() {
		var m core.ChunkMatch
		if err := rows.Scan(&m.DocumentID, &m.ChunkIndex, &m.Text, &m.Locator, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
