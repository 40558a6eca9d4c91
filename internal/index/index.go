// Package index builds the persisted vector index from a documents directory
// and reopens it at serve time.
package index

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/minio/highwayhash"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/vectorstore"
)

const (
	manifestFile = "manifest.json"
	stateFile    = "tfidf.json"
)

var (
	// ErrIndexNotFound means no usable index exists yet; run ingest first.
	ErrIndexNotFound = errors.New("vector index not found")
	// ErrEmbedderMismatch means the index was built with a different embedder.
	ErrEmbedderMismatch = errors.New("embedder does not match the index")
)

var hashKey = []byte("docqa-highwayhash-key-0123456789")

// Persister is implemented by embedders whose fitted state must be stored
// next to the index (the TF-IDF vocabulary).
type Persister interface {
	Save(path string) error
	Load(path string) error
}

// Config configures an Indexer.
type Config struct {
	// Dir holds the manifest and embedder state.
	Dir         string
	BatchSize   int
	Concurrency int
}

// DocumentEntry describes one ingested file.
type DocumentEntry struct {
	Path     string `json:"path"`
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
	Checksum string `json:"checksum"`
}

// Manifest records what an index was built from.
type Manifest struct {
	Embedder  string          `json:"embedder"`
	Dimension int             `json:"dimension"`
	Chunks    int             `json:"chunks"`
	Documents []DocumentEntry `json:"documents"`
	CreatedAt time.Time       `json:"created_at"`
}

// Report summarises a Build.
type Report struct {
	Files     int
	Pages     int
	Chunks    int
	Dimension int
	Embedder  string
	Duration  time.Duration
}

// Indexer ties the loader, chunker, embedder and store together.
type Indexer struct {
	cfg      Config
	loader   domain.Loader
	chunker  domain.Chunker
	embedder domain.Embedder
	store    vectorstore.Storage
	logger   *zap.Logger
}

// New creates an Indexer.
func New(cfg Config, loader domain.Loader, chunker domain.Chunker, embedder domain.Embedder, store vectorstore.Storage, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{cfg: cfg, loader: loader, chunker: chunker, embedder: embedder, store: store, logger: logger}
}

// Build loads every document in docsDir, replaces the store contents with
// their embedded chunks and writes the manifest.
func (ix *Indexer) Build(ctx context.Context, docsDir string) (*Report, error) {
	started := time.Now()
	ix.logger.Info("loading documents", zap.String("dir", docsDir))
	docs, err := ix.loader.Load(ctx, docsDir)
	if err != nil {
		return nil, err
	}

	ix.logger.Info("splitting into chunks", zap.Int("documents", len(docs)))
	var chunks []domain.Chunk
	entries := map[string]*DocumentEntry{}
	hashes := map[string][]byte{}
	for _, d := range docs {
		docChunks, err := ix.chunker.Chunk(d)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", d.ID, err)
		}
		chunks = append(chunks, docChunks...)
		entry, ok := entries[d.Path]
		if !ok {
			entry = &DocumentEntry{Path: d.Path}
			entries[d.Path] = entry
		}
		entry.Pages++
		entry.Chunks += len(docChunks)
		hashes[d.Path] = append(hashes[d.Path], d.Content...)
	}
	if len(chunks) == 0 {
		return nil, errors.New("no chunks produced from documents")
	}
	ix.logger.Info("total chunks created", zap.Int("chunks", len(chunks)))

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := ix.embedder.Prepare(ctx, texts); err != nil {
		return nil, fmt.Errorf("prepare embedder: %w", err)
	}

	ix.logger.Info("generating embeddings", zap.String("embedder", ix.embedder.Name()))
	vectors, err := embedding.EmbedAll(ctx, ix.embedder, texts, ix.cfg.BatchSize, ix.cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	dim := ix.embedder.Dimension()
	if dim == 0 && len(vectors) > 0 {
		dim = len(vectors[0])
	}

	// clear before init: some backends drop the whole collection on clear
	if err := ix.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear store: %w", err)
	}
	if err := ix.store.Init(ctx, dim); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := ix.store.Upsert(ctx, chunks, vectors); err != nil {
		return nil, fmt.Errorf("upsert chunks: %w", err)
	}

	manifest := &Manifest{
		Embedder:  ix.embedder.Name(),
		Dimension: dim,
		Chunks:    len(chunks),
		CreatedAt: time.Now().UTC(),
	}
	for path, entry := range entries {
		sum, err := checksum(hashes[path])
		if err != nil {
			return nil, err
		}
		entry.Checksum = sum
		manifest.Documents = append(manifest.Documents, *entry)
	}
	sort.Slice(manifest.Documents, func(i, j int) bool { return manifest.Documents[i].Path < manifest.Documents[j].Path })
	if err := ix.writeManifest(manifest); err != nil {
		return nil, err
	}
	if p, ok := ix.embedder.(Persister); ok {
		if err := p.Save(filepath.Join(ix.cfg.Dir, stateFile)); err != nil {
			return nil, fmt.Errorf("save embedder state: %w", err)
		}
	}

	report := &Report{
		Files:     len(entries),
		Pages:     len(docs),
		Chunks:    len(chunks),
		Dimension: dim,
		Embedder:  manifest.Embedder,
		Duration:  time.Since(started),
	}
	ix.logger.Info("ingestion complete",
		zap.Int("files", report.Files),
		zap.Int("pages", report.Pages),
		zap.Int("chunks", report.Chunks),
		zap.String("dir", ix.cfg.Dir),
		zap.Duration("took", report.Duration))
	return report, nil
}

// Open verifies that a built index is usable with the configured embedder
// and restores any embedder state saved at ingest.
func (ix *Indexer) Open(ctx context.Context) (*Manifest, error) {
	manifest, err := ReadManifest(ix.cfg.Dir)
	if err != nil {
		return nil, err
	}
	if manifest.Embedder != ix.embedder.Name() {
		return nil, fmt.Errorf("%w: index built with %s, configured %s", ErrEmbedderMismatch, manifest.Embedder, ix.embedder.Name())
	}
	if p, ok := ix.embedder.(Persister); ok {
		if err := p.Load(filepath.Join(ix.cfg.Dir, stateFile)); err != nil {
			return nil, fmt.Errorf("load embedder state: %w", err)
		}
	}
	count, err := ix.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count stored chunks: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: vector store is empty, run ingest first", ErrIndexNotFound)
	}
	ix.logger.Info("vector index loaded",
		zap.String("dir", ix.cfg.Dir),
		zap.String("embedder", manifest.Embedder),
		zap.Int("chunks", count))
	return manifest, nil
}

// ReadManifest reads the manifest stored in dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s: run ingest first", ErrIndexNotFound, dir)
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

func (ix *Indexer) writeManifest(m *Manifest) error {
	if err := os.MkdirAll(ix.cfg.Dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(ix.cfg.Dir, manifestFile), data, 0o644)
}

func checksum(data []byte) (string, error) {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return "", err
	}
	if _, err := h.Write(data); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
