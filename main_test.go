package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oraculo-ai/oraculo/vecindex"
)

type batchEmbedder struct {
	vectors [][]float32
	err     error
}

func (b *batchEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return b.vectors, b.err
}

func TestBuildSeedIndexPersistsArtifacts(t *testing.T) {
	dir := t.TempDir()
	embedder := &batchEmbedder{vectors: [][]float32{{0.1, 0.2, 0.3, 0.4}}}

	ix, err := buildSeedIndex(context.Background(), embedder, dir)
	require.NoError(t, err)
	require.Equal(t, 1, ix.Len())
	require.Equal(t, 4, ix.Dimension())
	require.True(t, vecindex.Exists(dir))

	loaded, err := vecindex.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
}

func TestBuildSeedIndexRejectsEmptyBatch(t *testing.T) {
	dir := t.TempDir()
	embedder := &batchEmbedder{vectors: nil}

	_, err := buildSeedIndex(context.Background(), embedder, dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no vectors")
	require.False(t, vecindex.Exists(dir))
}

func TestBuildSeedIndexPropagatesEmbedderError(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("provider down")
	embedder := &batchEmbedder{err: boom}

	_, err := buildSeedIndex(context.Background(), embedder, dir)
	require.ErrorIs(t, err, boom)
	require.False(t, vecindex.Exists(dir))
}
