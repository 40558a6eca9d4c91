package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestModel_Chat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Two years."}]}}]}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_GEMINI_KEY", "gem")
	m, err := NewModel(context.Background(), Config{APIKeyEnv: "TEST_GEMINI_KEY", BaseURL: srv.URL})
	require.NoError(t, err)
	answer, err := m.Chat(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "The warranty lasts two years."},
		{Role: domain.RoleUser, Content: "How long is the warranty?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Two years.", answer)
	assert.Contains(t, body, "systemInstruction")
	assert.Equal(t, "gemini:gemini-2.5-flash", m.Name())
}

func TestModel_RequiresUserMessage(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "gem")
	m, err := NewModel(context.Background(), Config{APIKeyEnv: "TEST_GEMINI_KEY", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = m.Chat(context.Background(), []domain.Message{{Role: domain.RoleSystem, Content: "x"}})
	assert.Error(t, err)
}
