package vectorstore

import (
	"context"

	"docqa/internal/domain"
)

// Storage persists vectors and supports similarity search.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// Scanner is implemented by stores able to enumerate every stored chunk.
type Scanner interface {
	Chunks(ctx context.Context) ([]domain.Chunk, error)
}
