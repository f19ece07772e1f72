// Package index holds the per-document vector index: an immutable, ordered
// collection of text chunks and their embeddings searched by cosine
// similarity.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/vec/search"

	"github.com/abdulhaseeb2115/quizzio/internal/apperr"
	"github.com/abdulhaseeb2115/quizzio/internal/llm"
)

// BatchSize is the number of chunks sent to the embedder per call.
const BatchSize = 100

type Index struct {
	mu       sync.RWMutex
	chunks   []string
	vectors  [][]float32
	mags     []float32
	dim      int
	embedder llm.Embedder
	released bool
}

// Build embeds chunks batch by batch and returns the resulting index. The
// embedder is kept to embed queries.
func Build(ctx context.Context, embedder llm.Embedder, chunks []string) (*Index, error) {
	idx := &Index{
		chunks:   append([]string(nil), chunks...),
		vectors:  make([][]float32, 0, len(chunks)),
		mags:     make([]float32, 0, len(chunks)),
		embedder: embedder,
	}

	for start := 0; start < len(chunks); start += BatchSize {
		end := start + BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		vectors, err := embedder.Embed(ctx, batch)
		if err != nil {
			return nil, apperr.Embedding("failed to embed document chunks", err)
		}
		if len(vectors) != len(batch) {
			return nil, apperr.Embedding("malformed embedding response",
				fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(batch)))
		}
		for j, v := range vectors {
			if err := idx.checkDim(v); err != nil {
				return nil, apperr.Embedding("malformed embedding response",
					fmt.Errorf("chunk %d: %w", start+j, err))
			}
			idx.vectors = append(idx.vectors, v)
			idx.mags = append(idx.mags, search.Float32s(v).Magnitude())
		}
	}
	return idx, nil
}

func (i *Index) checkDim(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("empty vector")
	}
	if i.dim == 0 {
		i.dim = len(v)
		return nil
	}
	if len(v) != i.dim {
		return fmt.Errorf("inconsistent vector dims %d vs %d", len(v), i.dim)
	}
	return nil
}

type scored struct {
	pos      int
	distance float32
}

// Search returns up to k chunks ranked by similarity to query, most similar
// first. k <= 0 or k larger than the chunk count returns every chunk.
func (i *Index) Search(ctx context.Context, query string, k int) ([]string, error) {
	i.mu.RLock()
	released, n := i.released, len(i.chunks)
	i.mu.RUnlock()
	if released {
		return nil, apperr.NotFound("session expired or not found")
	}
	if n == 0 {
		return nil, nil
	}

	res, err := i.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, apperr.Embedding("failed to embed query", err)
	}
	if len(res) != 1 || len(res[0]) != i.dim {
		return nil, apperr.Embedding("malformed query embedding",
			fmt.Errorf("expected 1 vector of dim %d", i.dim))
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.released {
		return nil, apperr.NotFound("session expired or not found")
	}
	return i.rank(res[0], k), nil
}

// rank must be called with the read lock held.
func (i *Index) rank(query []float32, k int) []string {
	qv := search.Float32s(query)
	qm := qv.Magnitude()

	ranked := make([]scored, len(i.vectors))
	for j, v := range i.vectors {
		d := float32(2) // worst possible cosine distance
		if qm != 0 && i.mags[j] != 0 {
			d = qv.CosineDistance(v)
		}
		ranked[j] = scored{pos: j, distance: d}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].distance < ranked[b].distance
	})

	if k <= 0 || k > len(ranked) {
		k = len(ranked)
	}
	out := make([]string, k)
	for n := 0; n < k; n++ {
		out[n] = i.chunks[ranked[n].pos]
	}
	return out
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.chunks)
}

func (i *Index) Dimension() int {
	return i.dim
}

// Vectors returns a copy of the stored embeddings in document order.
func (i *Index) Vectors() [][]float32 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([][]float32, len(i.vectors))
	for j, v := range i.vectors {
		out[j] = append([]float32(nil), v...)
	}
	return out
}

// Release drops the chunks and vectors. Searches racing a release fail with
// a not-found error instead of reading freed state.
func (i *Index) Release() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.released = true
	i.chunks = nil
	i.vectors = nil
	i.mags = nil
}
