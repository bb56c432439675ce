package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/oraculo-ai/oraculo/embeddings"
	"github.com/oraculo-ai/oraculo/llm"
	"github.com/oraculo-ai/oraculo/vecindex"
)

type stubEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

var _ embeddings.Embedder = (*stubEmbedder)(nil)

type stubLLM struct {
	tokens []string
	err    error
	calls  int
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	var builder []byte
	err := s.GenerateStream(ctx, messages, func(token string) error {
		builder = append(builder, token...)
		return nil
	})
	return string(builder), err
}

func (s *stubLLM) GenerateStream(_ context.Context, messages []llm.Message, fn func(string) error) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	if len(messages) < 2 {
		return errors.New("expected system and user messages")
	}
	for _, token := range s.tokens {
		if err := fn(token); err != nil {
			return err
		}
	}
	return nil
}

var _ llm.StreamClient = (*stubLLM)(nil)

type memoryRepo struct {
	questions []Question
	evidence  []Evidence
}

func (m *memoryRepo) CreateQuestion(_ context.Context, question *Question, _ []float32) error {
	if question.ID == uuid.Nil {
		question.ID = uuid.New()
	}
	m.questions = append(m.questions, *question)
	return nil
}

func (m *memoryRepo) AddEvidence(_ context.Context, evidence []Evidence) error {
	m.evidence = append(m.evidence, evidence...)
	return nil
}

func (m *memoryRepo) EvidenceFor(_ context.Context, questionID uuid.UUID) ([]Evidence, error) {
	matched := make([]Evidence, 0)
	for _, item := range m.evidence {
		if item.QuestionID == questionID {
			matched = append(matched, item)
		}
	}
	return matched, nil
}

var _ Repository = (*memoryRepo)(nil)

func buildIndex(t *testing.T, dir string) {
	t.Helper()
	ix, err := vecindex.New([]vecindex.Entry{
		{Vector: []float32{1, 0, 0}, Text: "we open at nine", Source: "docs/hours.pdf"},
		{Vector: []float32{0, 1, 0}, Text: "we ship worldwide", Source: ""},
	})
	require.NoError(t, err)
	require.NoError(t, vecindex.Save(ix, dir))
}

func collectTokens(tokens *[]string) func(string) error {
	return func(token string) error {
		*tokens = append(*tokens, token)
		return nil
	}
}

func TestAnswerWithoutIndexYieldsSingleFixedToken(t *testing.T) {
	dir := t.TempDir()
	model := &stubLLM{tokens: []string{"should", "not", "run"}}
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	svc := NewService(&memoryRepo{}, embedder, model, dir, nil)

	var tokens []string
	answer, questionID := svc.Answer(context.Background(), "any question", collectTokens(&tokens))

	require.Equal(t, MsgNoIndex, answer)
	require.Equal(t, []string{MsgNoIndex}, tokens)
	require.Equal(t, uuid.Nil, questionID)
	require.Zero(t, model.calls)
	require.Zero(t, embedder.calls)
}

func TestAnswerStreamsTokensAndPersistsEvidence(t *testing.T) {
	dir := t.TempDir()
	buildIndex(t, dir)

	repo := &memoryRepo{}
	model := &stubLLM{tokens: []string{"We ", "open ", "at nine."}}
	svc := NewService(repo, &stubEmbedder{vector: []float32{1, 0, 0}}, model, dir, nil)

	var tokens []string
	answer, questionID := svc.Answer(context.Background(), "when do you open?", collectTokens(&tokens))

	require.Equal(t, "We open at nine.", answer)
	require.Equal(t, []string{"We ", "open ", "at nine."}, tokens)

	require.Len(t, repo.questions, 1)
	require.Equal(t, "when do you open?", repo.questions[0].Text)
	require.NotEqual(t, uuid.Nil, questionID)
	require.Equal(t, repo.questions[0].ID, questionID)

	evidence, err := repo.EvidenceFor(context.Background(), questionID)
	require.NoError(t, err)
	require.Len(t, evidence, 2)
	require.Equal(t, "we open at nine", evidence[0].Text)
	require.Equal(t, "docs/hours.pdf", evidence[0].Source)
}

func TestAnswerConvertsGenerationErrorToDiagnosticToken(t *testing.T) {
	dir := t.TempDir()
	buildIndex(t, dir)

	repo := &memoryRepo{}
	model := &stubLLM{err: errors.New("upstream unavailable")}
	svc := NewService(repo, &stubEmbedder{vector: []float32{1, 0, 0}}, model, dir, nil)

	var tokens []string
	answer, questionID := svc.Answer(context.Background(), "when do you open?", collectTokens(&tokens))

	require.Equal(t, MsgStreamError, answer)
	require.Equal(t, []string{MsgStreamError}, tokens)

	// The question row was written before generation failed, so its sources
	// remain auditable.
	require.Len(t, repo.questions, 1)
	require.Equal(t, repo.questions[0].ID, questionID)
}

func TestAnswerConvertsEmbeddingErrorToDiagnosticToken(t *testing.T) {
	dir := t.TempDir()
	buildIndex(t, dir)

	svc := NewService(&memoryRepo{}, &stubEmbedder{err: errors.New("no credentials")}, &stubLLM{}, dir, nil)

	answer, questionID := svc.Answer(context.Background(), "when do you open?", nil)
	require.Equal(t, MsgStreamError, answer)
	require.Equal(t, uuid.Nil, questionID)
}

func TestAnswerWorksWithoutEmitCallback(t *testing.T) {
	dir := t.TempDir()
	buildIndex(t, dir)

	model := &stubLLM{tokens: []string{"nine"}}
	svc := NewService(&memoryRepo{}, &stubEmbedder{vector: []float32{1, 0, 0}}, model, dir, nil)

	answer, _ := svc.Answer(context.Background(), "when do you open?", nil)
	require.Equal(t, "nine", answer)
}

func TestSourceLabel(t *testing.T) {
	require.Equal(t, "hours.pdf", SourceLabel("docs/hours.pdf"))
	require.Equal(t, "Unknown", SourceLabel(""))
	require.Equal(t, "Unknown", SourceLabel("   "))
	require.Equal(t, "faq.csv", SourceLabel("faq.csv"))
}
