package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/oraculo-ai/oraculo/embeddings"
	"github.com/oraculo-ai/oraculo/training"
	"github.com/oraculo-ai/oraculo/vecindex"
)

// hashEmbedder maps text deterministically onto a small vector so the same
// chunk always lands on the same point and self-retrieval scores highest.
type hashEmbedder struct {
	err error
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if h.err != nil {
		return nil, h.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 8)
		for j, r := range text {
			vec[(j+int(r))%8] += float32(r%13) + 1
		}
		vectors[i] = vec
	}
	return vectors, nil
}

var _ embeddings.Embedder = (*hashEmbedder)(nil)

type memoryRepo struct {
	records map[uuid.UUID]*training.Record
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[uuid.UUID]*training.Record)}
}

func (m *memoryRepo) Create(_ context.Context, record *training.Record) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	m.records[record.ID] = record
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (*training.Record, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, training.ErrRecordNotFound
	}
	return record, nil
}

func (m *memoryRepo) List(_ context.Context) ([]training.Record, error) {
	records := make([]training.Record, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, *record)
	}
	return records, nil
}

var _ training.Repository = (*memoryRepo)(nil)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc := NewService(newMemoryRepo(), nil, &hashEmbedder{}, dir, nil)
	return svc, dir
}

func TestIngestThenSearchFindsOwnChunk(t *testing.T) {
	svc, dir := newTestService(t)

	record := &training.Record{
		ID:      uuid.New(),
		Content: "Our support line answers weekdays between nine and five.",
	}
	require.NoError(t, svc.IngestRecord(context.Background(), record))

	ix, err := vecindex.Load(dir)
	require.NoError(t, err)

	query, err := (&hashEmbedder{}).Embed(context.Background(), []string{record.Content})
	require.NoError(t, err)

	results, err := ix.Search(query[0], 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, record.Content, results[0].Text)
}

func TestIngestAppendsToExistingIndex(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	first := &training.Record{ID: uuid.New(), Content: "first fact about shipping"}
	second := &training.Record{ID: uuid.New(), Content: "second fact about billing"}

	require.NoError(t, svc.IngestRecord(ctx, first))
	require.NoError(t, svc.IngestRecord(ctx, second))

	ix, err := vecindex.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 2, ix.Len())
}

func TestIngestEmptyRecordIsNoOp(t *testing.T) {
	svc, dir := newTestService(t)

	record := &training.Record{ID: uuid.New()}
	require.NoError(t, svc.IngestRecord(context.Background(), record))
	require.False(t, vecindex.Exists(dir))
}

func TestIngestRebuildsOnCorruption(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	old := &training.Record{ID: uuid.New(), Content: "old knowledge that will be lost"}
	require.NoError(t, svc.IngestRecord(ctx, old))

	// Corrupt both artifacts in place.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.bin"), []byte("garbage"), 0o644))

	fresh := &training.Record{ID: uuid.New(), Content: "new knowledge from this batch"}
	require.NoError(t, svc.IngestRecord(ctx, fresh))

	ix, err := vecindex.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 1, ix.Len())

	query, err := (&hashEmbedder{}).Embed(ctx, []string{fresh.Content})
	require.NoError(t, err)
	results, err := ix.Search(query[0], 5)
	require.NoError(t, err)
	require.Equal(t, fresh.Content, results[0].Text)

	// The unreadable artifact was moved aside, not destroyed.
	_, err = os.Stat(filepath.Join(dir, "index.bin.corrupt"))
	require.NoError(t, err)
}

func TestIngestPropagatesEmbeddingFailure(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("embedding service down")
	svc := NewService(newMemoryRepo(), nil, &hashEmbedder{err: boom}, dir, nil)

	record := &training.Record{ID: uuid.New(), Content: "anything"}
	err := svc.IngestRecord(context.Background(), record)
	require.ErrorIs(t, err, boom)
	require.False(t, vecindex.Exists(dir))
}

func TestIngestByIDLoadsStoredRecord(t *testing.T) {
	dir := t.TempDir()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, &hashEmbedder{}, dir, nil)
	ctx := context.Background()

	record := &training.Record{Content: "stored fact"}
	require.NoError(t, repo.Create(ctx, record))

	require.NoError(t, svc.IngestByID(ctx, record.ID))
	require.True(t, vecindex.Exists(dir))

	err := svc.IngestByID(ctx, uuid.New())
	require.ErrorIs(t, err, training.ErrRecordNotFound)
}

func TestReprocessRunsAllRecords(t *testing.T) {
	dir := t.TempDir()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, &hashEmbedder{}, dir, nil)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &training.Record{Content: "fact one"}))
	require.NoError(t, repo.Create(ctx, &training.Record{Content: "fact two"}))

	processed, err := svc.Reprocess(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, processed)

	ix, err := vecindex.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 2, ix.Len())
}
