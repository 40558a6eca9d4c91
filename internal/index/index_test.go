package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docqa/internal/chunker"
	"docqa/internal/embedding/tfidf"
	"docqa/internal/loader"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/sqlite"
)

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"billing.txt":  "Invoices are due within thirty days.\n\nLate invoices accrue a two percent fee.",
		"warranty.txt": "The warranty covers parts and labour for two years.",
	}
	for name, text := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644))
	}
	return dir
}

func newChunker(t *testing.T) *chunker.RecursiveChunker {
	t.Helper()
	ch, err := chunker.NewRecursiveChunker(60, 10)
	require.NoError(t, err)
	return ch
}

func TestBuildThenOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	docs := writeDocs(t)
	indexDir := t.TempDir()
	ld := loader.New(loader.WithExtensions(".txt"))

	store, err := sqlite.NewStorage(sqlite.Config{Path: filepath.Join(indexDir, "index.sqlite")})
	require.NoError(t, err)
	ix := New(Config{Dir: indexDir, BatchSize: 1, Concurrency: 2}, ld, newChunker(t), tfidf.NewEmbedder(), store, zap.NewNop())

	report, err := ix.Build(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, "tfidf", report.Embedder)
	require.NoError(t, store.Close())

	manifest, err := ReadManifest(indexDir)
	require.NoError(t, err)
	require.Len(t, manifest.Documents, 2)
	assert.Equal(t, filepath.Join(docs, "billing.txt"), manifest.Documents[0].Path)
	assert.Len(t, manifest.Documents[0].Checksum, 16)
	assert.FileExists(t, filepath.Join(indexDir, stateFile))

	// a fresh process: new store handle, unprepared embedder
	reopened, err := sqlite.NewStorage(sqlite.Config{Path: filepath.Join(indexDir, "index.sqlite")})
	require.NoError(t, err)
	defer reopened.Close()
	emb := tfidf.NewEmbedder()
	_, err = New(Config{Dir: indexDir}, ld, newChunker(t), emb, reopened, nil).Open(ctx)
	require.NoError(t, err)

	vec, err := emb.Embed(ctx, "warranty years")
	require.NoError(t, err)
	results, err := reopened.Search(ctx, vec, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Chunk.Text, "warranty")
}

func TestBuild_ChecksumStable(t *testing.T) {
	ctx := context.Background()
	docs := writeDocs(t)
	dirA, dirB := t.TempDir(), t.TempDir()
	ld := loader.New(loader.WithExtensions(".txt"))

	_, err := New(Config{Dir: dirA}, ld, newChunker(t), tfidf.NewEmbedder(), memory.NewStorage(), nil).Build(ctx, docs)
	require.NoError(t, err)
	_, err = New(Config{Dir: dirB}, ld, newChunker(t), tfidf.NewEmbedder(), memory.NewStorage(), nil).Build(ctx, docs)
	require.NoError(t, err)

	a, err := ReadManifest(dirA)
	require.NoError(t, err)
	b, err := ReadManifest(dirB)
	require.NoError(t, err)
	assert.Equal(t, a.Documents, b.Documents)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	ld := loader.New()

	_, err := New(Config{Dir: t.TempDir()}, ld, newChunker(t), tfidf.NewEmbedder(), memory.NewStorage(), nil).Open(ctx)
	assert.True(t, errors.Is(err, ErrIndexNotFound))

	indexDir := t.TempDir()
	ix := New(Config{Dir: indexDir}, loader.New(loader.WithExtensions(".txt")), newChunker(t), tfidf.NewEmbedder(), memory.NewStorage(), nil)
	_, err = ix.Build(ctx, writeDocs(t))
	require.NoError(t, err)

	_, err = New(Config{Dir: indexDir}, ld, newChunker(t), renamed{tfidf.NewEmbedder()}, memory.NewStorage(), nil).Open(ctx)
	assert.True(t, errors.Is(err, ErrEmbedderMismatch))

	// the manifest exists but this in-memory store was never filled
	_, err = New(Config{Dir: indexDir}, ld, newChunker(t), tfidf.NewEmbedder(), memory.NewStorage(), nil).Open(ctx)
	assert.True(t, errors.Is(err, ErrIndexNotFound))
}

func TestBuild_NoDocuments(t *testing.T) {
	ix := New(Config{Dir: t.TempDir()}, loader.New(), newChunker(t), tfidf.NewEmbedder(), memory.NewStorage(), nil)
	_, err := ix.Build(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no documents found")
}

type renamed struct{ *tfidf.Embedder }

func (renamed) Name() string { return "openai:text-embedding-3-small" }
