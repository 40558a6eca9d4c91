package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestModel_Chat(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Thirty days.\n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_CHAT_KEY", "sk")
	m, err := NewModel(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_CHAT_KEY", Temperature: 0.2})
	require.NoError(t, err)
	answer, err := m.Chat(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "context"},
		{Role: domain.RoleUser, Content: "When are invoices due?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Thirty days.", answer)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.2, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "openai:gpt-4o-mini", m.Name())
}

func TestModel_AzureChatDeployment(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/chat-dep/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_AZ_CHAT_KEY", "az")
	m, err := NewModel(Config{Azure: true, BaseURL: srv.URL, APIKeyEnv: "TEST_AZ_CHAT_KEY", Deployment: "chat-dep", APIVersion: "2024-02-01"})
	require.NoError(t, err)
	answer, err := m.Chat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Empty(t, got.Model)
	assert.Equal(t, "azure:chat-dep", m.Name())
}

func TestModel_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_CHAT_KEY", "sk")
	m, err := NewModel(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_CHAT_KEY"})
	require.NoError(t, err)
	_, err = m.Chat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}})
	assert.Error(t, err)
}
