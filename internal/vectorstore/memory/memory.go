package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"docqa/internal/domain"
)

// Storage keeps chunks and their unit-length vectors in memory and ranks
// them by cosine similarity with a linear scan.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	chunks    []domain.Chunk
}

// NewStorage returns an empty store; call Init before Upsert.
func NewStorage() *Storage { return &Storage{} }

// Init sets the vector dimension and drops any stored chunks.
func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors, s.chunks = nil, nil
	return nil
}

// Upsert appends chunks with their vectors, normalised so Search can rank by dot product.
func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for _, v := range vectors {
		s.vectors = append(s.vectors, unit(v))
	}
	s.chunks = append(s.chunks, chunks...)
	return nil
}

// Search returns the topK chunks closest to vector. Ties keep insertion order.
func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 4
	}
	if len(s.vectors) > 0 && len(vector) != s.dimension {
		return nil, errors.New("query dimension mismatch")
	}
	query := unit(vector)
	results := make([]domain.SearchResult, len(s.vectors))
	for i, v := range s.vectors {
		results[i] = domain.SearchResult{Chunk: s.chunks[i], Score: dot(v, query)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results[:min(topK, len(results))], nil
}

// Clear removes every chunk but keeps the dimension.
func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors, s.chunks = nil, nil
	return nil
}

// Count returns the number of stored chunks.
func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Chunks returns a copy of every stored chunk in insertion order.
func (s *Storage) Chunks(_ context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk(nil), s.chunks...), nil
}

// Close is a no-op.
func (s *Storage) Close() error { return nil }

func unit(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := 0; i < min(len(a), len(b)); i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
