// Package query_engine answers course questions over the retrieved chunk
// context: embed the question, search the vector index, assemble a bounded
// context, generate, and score confidence.
package query_engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lectern-ai/lectern/internal/core"
	"github.com/lectern-ai/lectern/internal/models"
)

const systemPrompt = "You are a course assistant. Answer using only the provided course material excerpts. " +
	"Cite the excerpts you draw on. If the excerpts do not contain the answer, say you cannot find it in the course material."

const insufficientAnswer = "I don't have enough information in the course materials to answer that question."

// Config tunes retrieval and context assembly.
type Config struct {
	TopK            int
	RelevanceFloor  float64
	MaxContextChars int
	HistoryLimit    int
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 8000
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	return c
}

// Answer is the result of one question.
type Answer struct {
	SessionID  string            `json:"session_id"`
	Answer     string            `json:"answer"`
	Sources    []models.Citation `json:"sources"`
	Confidence float64           `json:"confidence"`
	ChunksUsed int               `json:"chunks_used"`
}

type Service struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	index    core.VectorIndex
	llm      core.LLMProvider
	log      *zap.Logger
	cfg      Config
}

func NewService(
	db core.DbClient,
	embedder core.EmbeddingProvider,
	index core.VectorIndex,
	llm core.LLMProvider,
	log *zap.Logger,
	cfg Config,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db: db, embedder: embedder, index: index, llm: llm,
		log: log.Named("query"), cfg: cfg.withDefaults(),
	}
}

// Ask runs the full question pipeline. Both the question and the answer are
// persisted to the session before returning; when no chunk clears the
// relevance floor the fallback answer goes out with confidence 0 and the LLM
// is never called.
func (s *Service) Ask(ctx context.Context, courseID, question, sessionID string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &core.ValidationError{Reason: "question is empty"}
	}

	course, err := s.db.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return nil, &core.NotFoundError{Kind: "course", ID: courseID}
	}

	session, err := s.db.GetOrCreateSession(ctx, courseID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	if err := s.db.AddChatMessage(ctx, &models.ChatMessage{
		SessionID: session.ID,
		CourseID:  courseID,
		Role:      "user",
		Content:   question,
	}); err != nil {
		return nil, fmt.Errorf("persist question: %w", err)
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, &core.EmbeddingGatewayError{Err: fmt.Errorf("got %d embeddings for one question", len(vecs))}
	}

	matches, err := s.index.Search(ctx, courseID, vecs[0], s.cfg.TopK)
	if err != nil {
		return nil, &core.VectorIndexError{Err: err}
	}

	relevant := matches[:0:0]
	for _, m := range matches {
		if m.Similarity >= s.cfg.RelevanceFloor {
			relevant = append(relevant, m)
		}
	}

	if len(relevant) == 0 {
		s.log.Info("no relevant chunks",
			zap.String("course_id", courseID), zap.Int("candidates", len(matches)))
		ans := &Answer{
			SessionID:  session.ID,
			Answer:     insufficientAnswer,
			Sources:    []models.Citation{},
			Confidence: 0,
		}
		if err := s.persistAnswer(ctx, session.ID, courseID, ans); err != nil {
			return nil, err
		}
		return ans, nil
	}

	contextText, citations, used := s.assembleContext(ctx, relevant)

	userPrompt := fmt.Sprintf("Course material excerpts:\n%s\nQuestion: %s", contextText, question)
	text, err := s.llm.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	ans := &Answer{
		SessionID:  session.ID,
		Answer:     strings.TrimSpace(text),
		Sources:    citations,
		Confidence: confidence(relevant[:used]),
		ChunksUsed: used,
	}
	if err := s.persistAnswer(ctx, session.ID, courseID, ans); err != nil {
		return nil, err
	}
	return ans, nil
}

// History returns the newest messages of a session, oldest first.
func (s *Service) History(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	return s.db.GetMessagesBySession(ctx, sessionID, s.cfg.HistoryLimit)
}

func (s *Service) persistAnswer(ctx context.Context, sessionID, courseID string, ans *Answer) error {
	if err := s.db.AddChatMessage(ctx, &models.ChatMessage{
		SessionID:  sessionID,
		CourseID:   courseID,
		Role:       "assistant",
		Content:    ans.Answer,
		Sources:    ans.Sources,
		Confidence: ans.Confidence,
	}); err != nil {
		return fmt.Errorf("persist answer: %w", err)
	}
	return nil
}

// assembleContext concatenates chunk texts in similarity order until the
// character budget runs out. Citations are deduplicated by (document,
// locator); a missing document record degrades to an id-only citation rather
// than failing the question.
func (s *Service) assembleContext(ctx context.Context, matches []core.ChunkMatch) (string, []models.Citation, int) {
	var (
		sb        strings.Builder
		citations []models.Citation
		seen      = map[string]bool{}
		filenames = map[string]string{}
		used      int
	)
	for _, m := range matches {
		block := m.Text
		if m.Locator != "" {
			block = "[" + m.Locator + "] " + block
		}
		if used > 0 && sb.Len()+len(block) > s.cfg.MaxContextChars {
			break
		}
		sb.WriteString(block)
		sb.WriteString("\n---\n")
		used++

		key := m.DocumentID + "|" + m.Locator
		if seen[key] {
			continue
		}
		seen[key] = true

		name, ok := filenames[m.DocumentID]
		if !ok {
			if doc, err := s.db.GetDocumentByID(ctx, m.DocumentID); err == nil && doc != nil {
				name = doc.Filename
			}
			filenames[m.DocumentID] = name
		}
		citations = append(citations, models.Citation{
			DocumentID: m.DocumentID,
			Filename:   name,
			Locator:    m.Locator,
		})
	}
	return sb.String(), citations, used
}

// confidence is the mean similarity of the chunks that made it into the
// context, clamped to [0,1].
func confidence(matches []core.ChunkMatch) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		sum += m.Similarity
	}
	c := sum / float64(len(matches))
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
