// Package ingest orchestrates the training pipeline: extract documents from
// a record, chunk them, embed the chunks and merge them into the persisted
// vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oraculo-ai/oraculo/embeddings"
	"github.com/oraculo-ai/oraculo/training"
	"github.com/oraculo-ai/oraculo/vecindex"
)

type Service struct {
	records   training.Repository
	extractor *training.Extractor
	embedder  embeddings.Embedder
	indexDir  string
	chunkSize int
	overlap   int
	logger    *zap.Logger

	// Serializes load-modify-save on the shared index artifacts. Concurrent
	// ingestion jobs would otherwise race and silently drop each other's
	// entries (last write wins).
	mu sync.Mutex
}

func NewService(records training.Repository, extractor *training.Extractor, embedder embeddings.Embedder, indexDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = training.NewExtractor(logger)
	}

	return &Service{
		records:   records,
		extractor: extractor,
		embedder:  embedder,
		indexDir:  indexDir,
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		logger:    logger,
	}
}

// IngestByID fetches a stored record and runs it through the pipeline. Used
// by the job queue and the CLI.
func (s *Service) IngestByID(ctx context.Context, id uuid.UUID) error {
	if s.records == nil {
		return fmt.Errorf("training repository not configured")
	}

	record, err := s.records.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load training record: %w", err)
	}
	return s.IngestRecord(ctx, record)
}

// IngestRecord extracts, chunks, embeds and indexes one training record. A
// record with no extractable content is a no-op. Embedding and persistence
// errors propagate to the caller; the pipeline never retries on its own.
func (s *Service) IngestRecord(ctx context.Context, record *training.Record) error {
	if s.embedder == nil {
		return fmt.Errorf("embedder not configured")
	}

	docs, err := s.extractor.Extract(ctx, record)
	if err != nil {
		return fmt.Errorf("extract documents: %w", err)
	}
	if len(docs) == 0 {
		s.logger.Info("no extractable content in training record",
			zap.String("record_id", record.ID.String()))
		return nil
	}

	texts := make([]string, 0)
	sources := make([]string, 0)
	for _, doc := range docs {
		for _, chunk := range Chunk(doc.Text, s.chunkSize, s.overlap) {
			texts = append(texts, chunk)
			sources = append(sources, doc.Source)
		}
	}
	if len(texts) == 0 {
		s.logger.Info("training record produced no chunks",
			zap.String("record_id", record.ID.String()))
		return nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d vectors", len(texts), len(vectors))
	}

	entries := make([]vecindex.Entry, len(texts))
	for i := range texts {
		entries[i] = vecindex.Entry{
			Vector: vectors[i],
			Text:   texts[i],
			Source: sources[i],
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ix, err := s.mergeLocked(entries)
	if err != nil {
		return err
	}

	if err := vecindex.Save(ix, s.indexDir); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	s.logger.Info("training record ingested",
		zap.String("record_id", record.ID.String()),
		zap.Int("chunks", len(entries)),
		zap.Int("index_size", ix.Len()))
	return nil
}

// mergeLocked loads the persisted index and appends entries. Corrupt or
// dimensionally stale artifacts are quarantined and a fresh index is built
// from the current batch only; earlier content is gone until a reprocess run
// restores it. Caller holds s.mu.
func (s *Service) mergeLocked(entries []vecindex.Entry) (*vecindex.Index, error) {
	ix, err := vecindex.Load(s.indexDir)
	switch {
	case err == nil:
		if addErr := ix.Add(entries); addErr != nil {
			if !errors.Is(addErr, vecindex.ErrDimensionMismatch) {
				return nil, fmt.Errorf("merge into index: %w", addErr)
			}
			s.logger.Warn("persisted index has stale dimension, rebuilding",
				zap.Int("index_dimension", ix.Dimension()))
			return s.rebuildLocked(entries)
		}
		return ix, nil

	case errors.Is(err, vecindex.ErrNotFound):
		fresh, buildErr := vecindex.New(entries)
		if buildErr != nil {
			return nil, fmt.Errorf("build fresh index: %w", buildErr)
		}
		s.logger.Info("created first index", zap.Int("entries", fresh.Len()))
		return fresh, nil

	case errors.Is(err, vecindex.ErrCorrupt):
		s.logger.Warn("persisted index is corrupt, rebuilding from current batch", zap.Error(err))
		return s.rebuildLocked(entries)

	default:
		return nil, fmt.Errorf("load index: %w", err)
	}
}

func (s *Service) rebuildLocked(entries []vecindex.Entry) (*vecindex.Index, error) {
	if err := vecindex.Quarantine(s.indexDir); err != nil {
		return nil, fmt.Errorf("quarantine corrupt index: %w", err)
	}
	fresh, err := vecindex.New(entries)
	if err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}
	return fresh, nil
}

// Reprocess runs every stored training record through the pipeline, used to
// repopulate the index after corruption or an operator-requested clear.
func (s *Service) Reprocess(ctx context.Context) (int, error) {
	if s.records == nil {
		return 0, fmt.Errorf("training repository not configured")
	}

	records, err := s.records.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list training records: %w", err)
	}

	processed := 0
	for i := range records {
		if err := s.IngestRecord(ctx, &records[i]); err != nil {
			s.logger.Error("reprocess failed for record",
				zap.String("record_id", records[i].ID.String()),
				zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}
