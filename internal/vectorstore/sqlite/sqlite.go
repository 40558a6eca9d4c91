// Package sqlite implements a persistent vector store on top of a single
// SQLite file opened through sqlite-vec's pure-Go engine.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/viant/sqlite-vec/engine"
	"github.com/viant/sqlite-vec/vector"

	"docqa/internal/domain"
	"docqa/internal/vectorstore/memory"
)

const dimensionKey = "dimension"

// Storage keeps chunks and their embeddings in SQLite. Similarity search runs
// over an in-memory copy that is loaded on first use and dropped on writes.
type Storage struct {
	db   *sql.DB
	path string

	mu    sync.Mutex
	cache *memory.Storage
}

// Config configures the SQLite store.
type Config struct {
	Path string
}

// NewStorage opens (or creates) the SQLite index at cfg.Path.
func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite: path required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	db, err := engine.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Storage{db: db, path: cfg.Path}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			chunk_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			page INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS index_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO index_meta(key, value) VALUES(?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, dimensionKey, strconv.Itoa(dimension))
	if err != nil {
		return fmt.Errorf("sqlite: store dimension: %w", err)
	}
	s.invalidate()
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	dim, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks(chunk_id, document_id, chunk_index, source, page, content, embedding)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(chunk_id) DO UPDATE SET
	document_id = excluded.document_id,
	chunk_index = excluded.chunk_index,
	source = excluded.source,
	page = excluded.page,
	content = excluded.content,
	embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, ch := range chunks {
		if len(vectors[i]) != dim {
			return errors.New("vector dimension mismatch")
		}
		blob, err := vector.EncodeEmbedding(vectors[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, ch.ChunkID, ch.DocumentID, ch.Index, ch.Source, ch.Page, ch.Text, blob); err != nil {
			return fmt.Errorf("sqlite: upsert %s: %w", ch.ChunkID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *Storage) Search(ctx context.Context, query []float32, topK int) ([]domain.SearchResult, error) {
	cache, err := s.loaded(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Search(ctx, query, topK)
}

// Chunks returns every stored chunk ordered by document and position.
func (s *Storage) Chunks(ctx context.Context) ([]domain.Chunk, error) {
	cache, err := s.loaded(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Chunks(ctx)
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM index_meta`); err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}
	s.invalidate()
	return nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) dimension(ctx context.Context) (int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = ?`, dimensionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("sqlite: store not initialized")
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

func (s *Storage) invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// loaded returns the in-memory copy of the table, reading it on first use.
func (s *Storage) loaded(ctx context.Context) (*memory.Storage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil {
		return s.cache, nil
	}
	cache := memory.NewStorage()
	dim, err := s.dimension(ctx)
	if err != nil {
		// an empty, never initialized index searches as empty
		s.cache = cache
		return cache, nil
	}
	if err := cache.Init(ctx, dim); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, document_id, chunk_index, source, page, content, embedding
FROM chunks ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	var vectors [][]float32
	for rows.Next() {
		var ch domain.Chunk
		var blob []byte
		if err := rows.Scan(&ch.ChunkID, &ch.DocumentID, &ch.Index, &ch.Source, &ch.Page, &ch.Text, &blob); err != nil {
			return nil, err
		}
		vec, err := vector.DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode %s: %w", ch.ChunkID, err)
		}
		chunks = append(chunks, ch)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := cache.Upsert(ctx, chunks, vectors); err != nil {
		return nil, err
	}
	s.cache = cache
	return cache, nil
}
