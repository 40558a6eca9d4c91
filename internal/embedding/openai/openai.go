package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"docqa/internal/openaiapi"
)

const defaultModel = "text-embedding-3-small"

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	api        *openaiapi.Client
	model      string
	deployment string
	batchSize  int

	mu        sync.Mutex
	dimension int
}

// Config configures the embeddings client. For Azure, Deployment and
// APIVersion select the deployment and BaseURL is the resource endpoint.
type Config struct {
	Azure      bool
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Deployment string
	APIVersion string
	Timeout    time.Duration
	BatchSize  int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	flavor := openaiapi.OpenAI
	if cfg.Azure {
		flavor = openaiapi.Azure
	}
	api, err := openaiapi.New(openaiapi.Config{
		Flavor:     flavor,
		BaseURL:    cfg.BaseURL,
		APIKey:     key,
		APIVersion: cfg.APIVersion,
		Deployment: cfg.Deployment,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	return &Client{api: api, model: cfg.Model, deployment: cfg.Deployment, batchSize: batch}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string {
	if c.api.Flavor() == openaiapi.Azure {
		return "azure:" + c.deployment
	}
	return "openai:" + c.model
}

// Prepare is not required for remote embedding. We will lazily set dimension on first embed.
func (c *Client) Prepare(context.Context, []string) error { return nil }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts, splitting them into requests of at most BatchSize inputs.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vectors, err := c.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

type request struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type response struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	// Ollama-native shape: { "embedding": [...] }
	Embedding []float32 `json:"embedding"`
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := request{Model: c.model, Input: texts}
	if c.api.Flavor() == openaiapi.Azure {
		// the deployment selects the model
		req.Model = ""
	}
	var raw json.RawMessage
	if err := c.api.Post(ctx, "embeddings", req, &raw); err != nil {
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	var vectors [][]float32
	switch {
	case len(resp.Data) > 0:
		sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		for _, d := range resp.Data {
			vectors = append(vectors, d.Embedding)
		}
	case len(resp.Embedding) > 0 && len(texts) == 1:
		vectors = [][]float32{resp.Embedding}
	default:
		return nil, errors.New("no embedding returned")
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	for _, v := range vectors {
		if len(v) == 0 {
			return nil, errors.New("empty embedding")
		}
	}
	c.mu.Lock()
	if c.dimension == 0 {
		c.dimension = len(vectors[0])
	}
	c.mu.Unlock()
	return vectors, nil
}
