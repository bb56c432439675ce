// Package chat answers questions grounded on the trained vector index and
// streams the completion token by token.
package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oraculo-ai/oraculo/embeddings"
	"github.com/oraculo-ai/oraculo/llm"
	"github.com/oraculo-ai/oraculo/vecindex"
)

const defaultRetrievalLimit = 5

// Fixed user-facing messages for missing preconditions and failures. These
// are answers, not errors: the token stream never surfaces an exception.
const (
	MsgNoIndex     = "I have not been trained with any content yet. Please add training material first."
	MsgNoEvidence  = "I could not find relevant information to answer that question."
	MsgStreamError = "Sorry, something went wrong while generating the answer. Please try again."
)

type Service struct {
	repo           Repository
	embedder       embeddings.Embedder
	llm            llm.Client
	indexDir       string
	retrievalLimit int
	logger         *zap.Logger
}

func NewService(repo Repository, embedder embeddings.Embedder, llmClient llm.Client, indexDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:           repo,
		embedder:       embedder,
		llm:            llmClient,
		indexDir:       indexDir,
		retrievalLimit: defaultRetrievalLimit,
		logger:         logger,
	}
}

// Answer runs the full pipeline for one question. It returns the complete
// answer text together with the id of the persisted question row, which is
// what the sources endpoint is keyed on; the id is uuid.Nil when the pipeline
// stopped before a question was written. When emit is non-nil it receives
// every token as it arrives; an emit error stops the stream (client gone) but
// is not reported further. Answer itself never fails: retrieval or generation
// errors collapse into a single diagnostic token.
func (s *Service) Answer(ctx context.Context, questionText string, emit func(string) error) (string, uuid.UUID) {
	answer, questionID, err := s.answer(ctx, questionText, emit)
	if err != nil {
		s.logger.Error("answer pipeline failed",
			zap.String("question", questionText),
			zap.Error(err))
		if emit != nil {
			_ = emit(MsgStreamError)
		}
		return MsgStreamError, questionID
	}
	return answer, questionID
}

func (s *Service) answer(ctx context.Context, questionText string, emit func(string) error) (string, uuid.UUID, error) {
	questionText = strings.TrimSpace(questionText)
	if questionText == "" {
		return s.fixed(MsgNoEvidence, emit), uuid.Nil, nil
	}
	if s.embedder == nil || s.llm == nil {
		return "", uuid.Nil, fmt.Errorf("embedder and llm client must be configured")
	}

	ix, err := vecindex.Load(s.indexDir)
	if err != nil {
		if errors.Is(err, vecindex.ErrNotFound) {
			return s.fixed(MsgNoIndex, emit), uuid.Nil, nil
		}
		return "", uuid.Nil, fmt.Errorf("load index: %w", err)
	}

	vectors, err := s.embedder.Embed(ctx, []string{questionText})
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) == 0 {
		return "", uuid.Nil, fmt.Errorf("embedder returned no vectors")
	}

	question := &Question{Text: questionText}
	if s.repo != nil {
		if err := s.repo.CreateQuestion(ctx, question, vectors[0]); err != nil {
			return "", uuid.Nil, fmt.Errorf("persist question: %w", err)
		}
	}

	results, err := ix.Search(vectors[0], s.retrievalLimit)
	if err != nil {
		return "", question.ID, fmt.Errorf("search index: %w", err)
	}
	if len(results) == 0 {
		return s.fixed(MsgNoEvidence, emit), question.ID, nil
	}

	if s.repo != nil {
		evidence := make([]Evidence, len(results))
		for i, result := range results {
			evidence[i] = Evidence{
				QuestionID: question.ID,
				Source:     result.Source,
				Text:       result.Text,
			}
		}
		if err := s.repo.AddEvidence(ctx, evidence); err != nil {
			return "", question.ID, fmt.Errorf("persist evidence: %w", err)
		}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: buildSystemPrompt(results)},
		{Role: llm.RoleUser, Content: questionText},
	}

	answer, err := s.generate(ctx, messages, emit)
	return answer, question.ID, err
}

func (s *Service) generate(ctx context.Context, messages []llm.Message, emit func(string) error) (string, error) {
	if streamClient, ok := s.llm.(llm.StreamClient); ok {
		var builder strings.Builder
		err := streamClient.GenerateStream(ctx, messages, func(token string) error {
			if token == "" {
				return nil
			}
			builder.WriteString(token)
			if emit != nil {
				return emit(token)
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("llm stream generate: %w", err)
		}
		return builder.String(), nil
	}

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	if emit != nil {
		_ = emit(answer)
	}
	return answer, nil
}

func (s *Service) fixed(message string, emit func(string) error) string {
	if emit != nil {
		_ = emit(message)
	}
	return message
}

func buildSystemPrompt(results []vecindex.Result) string {
	var sb strings.Builder
	sb.WriteString("You are a support assistant. Answer only from the context below. ")
	sb.WriteString("If the context does not cover the question, say you do not know.\n\n")

	for _, result := range results {
		sb.WriteString("Source: ")
		sb.WriteString(SourceLabel(result.Source))
		sb.WriteString("\n")
		sb.WriteString(result.Text)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// SourceLabel derives a human-readable label from an origin identifier: the
// base file name, or "Unknown" when the origin is empty.
func SourceLabel(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return "Unknown"
	}
	return filepath.Base(source)
}
