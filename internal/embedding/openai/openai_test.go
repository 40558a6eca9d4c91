package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_EmbedBatchPreservesOrder(t *testing.T) {
	var requests []request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)
		// reply out of order; the client must sort by index
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = map[string]any{"index": j, "embedding": []float32{float32(len(req.Input[j])), 1}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_OPENAI_KEY", BatchSize: 2})
	require.NoError(t, err)

	vectors, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(2), vectors[1][0])
	assert.Equal(t, float32(3), vectors[2][0])
	assert.Len(t, requests, 2)
	assert.Equal(t, "text-embedding-3-small", requests[0].Model)
	assert.Equal(t, 2, c.Dimension())
	assert.Equal(t, "openai:text-embedding-3-small", c.Name())
}

func TestClient_AzureDeployment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/embed-dep/embeddings", r.URL.Path)
		assert.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "az-key", r.Header.Get("api-key"))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5,0.5,0.5]}]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_AZURE_KEY", "az-key")
	c, err := NewClient(Config{Azure: true, BaseURL: srv.URL, APIKeyEnv: "TEST_AZURE_KEY", Deployment: "embed-dep", APIVersion: "2024-02-01"})
	require.NoError(t, err)
	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 3)
	assert.Equal(t, "azure:embed-dep", c.Name())
}

func TestClient_OllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_OLLAMA_KEY", "unused")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_OLLAMA_KEY", Model: "nomic-embed-text"})
	require.NoError(t, err)
	v, err := c.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v)
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("TEST_EMPTY_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_EMPTY_KEY"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_EMPTY_KEY")
}
