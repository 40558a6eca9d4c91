// Package gemini implements a chat model on top of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"docqa/internal/domain"
)

const defaultModel = "gemini-2.5-flash"

// Config configures the Gemini chat model.
type Config struct {
	APIKeyEnv   string
	Model       string
	Temperature float32
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// Model implements domain.ChatModel. System messages become the system
// instruction and assistant turns are sent with the model role.
type Model struct {
	client *genai.Client
	cfg    Config
}

// NewModel creates a Gemini chat model.
func NewModel(ctx context.Context, cfg Config) (*Model, error) {
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
	return &Model{client: client, cfg: cfg}, nil
}

func (m *Model) Name() string { return "gemini:" + m.cfg.Model }

func (m *Model) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	var system []string
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			system = append(system, msg.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", errors.New("no user message")
	}
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr(m.cfg.Temperature)}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	resp, err := m.client.Models.GenerateContent(ctx, m.cfg.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("GenAI returned an empty response")
	}
	return text, nil
}
