package openaiapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_URLAndAuth(t *testing.T) {
	var gotPath, gotQuery, gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("api-key")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, err := New(Config{Flavor: Azure, BaseURL: srv.URL + "/", APIKey: "k", Deployment: "emb", APIVersion: "2024-02-01"})
	require.NoError(t, err)
	var out struct{ OK bool }
	require.NoError(t, c.Post(context.Background(), "embeddings", map[string]any{}, &out))
	assert.True(t, out.OK)
	assert.Equal(t, "/openai/deployments/emb/embeddings", gotPath)
	assert.Equal(t, "api-version=2024-02-01", gotQuery)
	assert.Equal(t, "k", gotKey)
	assert.Empty(t, gotAuth)

	c, err = New(Config{BaseURL: srv.URL, APIKey: "sk"})
	require.NoError(t, err)
	require.NoError(t, c.Post(context.Background(), "chat/completions", map[string]any{}, nil))
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk", gotAuth)
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "sk"})
	require.NoError(t, err)
	require.NoError(t, c.Post(context.Background(), "embeddings", map[string]any{}, nil))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClient_DecodesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "sk"})
	require.NoError(t, err)
	err = c.Post(context.Background(), "embeddings", map[string]any{}, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "bad key")
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "sk", MaxRetries: 2})
	require.NoError(t, err)
	err = c.Post(context.Background(), "embeddings", map[string]any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestClient_NoBackoffAfterFinalTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, APIKey: "sk", MaxRetries: 1})
	require.NoError(t, err)
	start := time.Now()
	err = c.Post(context.Background(), "embeddings", map[string]any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	// one 200ms backoff between the two attempts, none after the last
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestClient_BacksOffOnTruncatedBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Content-Length", "100")
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "sk", MaxRetries: 1})
	require.NoError(t, err)
	start := time.Now()
	require.NoError(t, c.Post(context.Background(), "embeddings", map[string]any{}, nil))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Flavor: Azure, APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{Flavor: "other", APIKey: "k"})
	assert.Error(t, err)
}
