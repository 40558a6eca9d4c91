package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"google.golang.org/genai"
)

const (
	defaultModel = "gemini-embedding-001"

	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

// Config configures the Gemini embedder.
type Config struct {
	APIKeyEnv string
	Model     string
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// Embedder generates embeddings using Google's Gemini API. Batches are
// embedded as retrieval documents and single texts as retrieval queries.
type Embedder struct {
	client *genai.Client
	model  string

	mu        sync.Mutex
	dimension int
}

// NewEmbedder creates a Gemini embedder.
func NewEmbedder(ctx context.Context, cfg Config) (*Embedder, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	cc := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Embedder{client: client, model: cfg.Model}, nil
}

func (e *Embedder) Name() string { return "gemini:" + e.model }

func (e *Embedder) Prepare(context.Context, []string) error { return nil }

func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, taskQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, taskDocument)
}

func (e *Embedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: task})
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, errors.New("empty embedding")
		}
		out[i] = emb.Values
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(out[0])
	}
	e.mu.Unlock()
	return out, nil
}
