// Package vecindex implements the persistent nearest-neighbor store over
// embedded chunks. The index is flat: every entry is scored by cosine
// similarity against the query vector. It is the single source of truth for
// retrieval; entries never carry a vector whose width differs from the width
// the index was created with.
package vecindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	// ErrNotFound reports that no persisted index exists at the given
	// directory (either artifact missing).
	ErrNotFound = errors.New("vector index not found")
	// ErrCorrupt reports that persisted artifacts exist but cannot be read
	// back into a consistent index.
	ErrCorrupt = errors.New("vector index corrupt")
	// ErrDimensionMismatch reports a vector whose width disagrees with the
	// index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Entry is one embedded chunk: the vector, the chunk text it was computed
// from, and an origin identifier for source attribution.
type Entry struct {
	Vector []float32
	Text   string
	Source string
}

// Result is a single search hit, best match first when returned from Search.
type Result struct {
	Text   string
	Source string
	Score  float64
}

type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   []Entry
}

// New builds a fresh index from the given entries. At least one entry is
// required; all vectors must share the same dimension.
func New(entries []Entry) (*Index, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("cannot build index from zero entries")
	}

	ix := &Index{dimension: len(entries[0].Vector)}
	if ix.dimension == 0 {
		return nil, fmt.Errorf("cannot build index from empty vectors")
	}

	if err := ix.Add(entries); err != nil {
		return nil, err
	}
	return ix, nil
}

// Add merges entries into the index. Existing entries are never rewritten;
// only membership matters.
func (ix *Index) Add(entries []Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for i := range entries {
		if len(entries[i].Vector) != ix.dimension {
			return fmt.Errorf("%w: index has %d, entry has %d", ErrDimensionMismatch, ix.dimension, len(entries[i].Vector))
		}
	}

	ix.entries = append(ix.entries, entries...)
	return nil
}

// Search returns up to k entries ordered by decreasing cosine similarity to
// the query vector. Ties keep insertion order, so identical calls return
// identical orderings.
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(query) != ix.dimension {
		return nil, fmt.Errorf("%w: index has %d, query has %d", ErrDimensionMismatch, ix.dimension, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	scored := make([]Result, len(ix.entries))
	for i := range ix.entries {
		scored[i] = Result{
			Text:   ix.entries[i].Text,
			Source: ix.entries[i].Source,
			Score:  cosineSimilarity(query, ix.entries[i].Vector),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func (ix *Index) Dimension() int {
	return ix.dimension
}

func (ix *Index) snapshot() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]Entry(nil), ix.entries...)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
