// Package openai implements a chat model backed by the OpenAI or Azure OpenAI
// chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/openaiapi"
)

const defaultModel = "gpt-4o-mini"

// Config configures the chat model. For Azure, Deployment names the chat
// deployment and BaseURL is the resource endpoint.
type Config struct {
	Azure       bool
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Deployment  string
	APIVersion  string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Model is a chat completions client implementing domain.ChatModel.
type Model struct {
	api  *openaiapi.Client
	cfg  Config
	name string
}

// NewModel creates a chat model from cfg. The API key is read from the
// environment variable named by APIKeyEnv.
func NewModel(cfg Config) (*Model, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	flavor := openaiapi.OpenAI
	name := "openai:" + cfg.Model
	if cfg.Azure {
		flavor = openaiapi.Azure
		name = "azure:" + cfg.Deployment
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
	return &Model{api: api, cfg: cfg, name: name}, nil
}

func (m *Model) Name() string { return m.name }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type response struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Chat sends messages and returns the content of the first choice.
func (m *Model) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages")
	}
	req := request{
		Model:       m.cfg.Model,
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
		Messages:    make([]message, len(messages)),
	}
	if m.cfg.Azure {
		req.Model = ""
	}
	for i, msg := range messages {
		req.Messages[i] = message{Role: string(msg.Role), Content: msg.Content}
	}
	var resp response
	if err := m.api.Post(ctx, "chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
