package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider names.
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	// ProviderLocal embeds with TF-IDF and answers extractively; it needs no network.
	ProviderLocal = "local"
)

// AzureConfig holds Azure OpenAI settings. The API key is read from the
// environment variable named by APIKeyEnv.
type AzureConfig struct {
	Endpoint             string `yaml:"endpoint"`
	APIKeyEnv            string `yaml:"api_key_env"`
	APIVersion           string `yaml:"api_version"`
	EmbeddingsDeployment string `yaml:"embeddings_deployment"`
	ChatDeployment       string `yaml:"chat_deployment"`
}

// OpenAIConfig holds settings for the direct OpenAI API or any compatible server.
type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	APIKeyEnv      string `yaml:"api_key_env"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// ChatConfig tunes answer generation.
type ChatConfig struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	TimeoutSecs  int     `yaml:"timeout_secs"`
	MaxSentences int     `yaml:"max_sentences"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// IngestConfig configures document loading and embedding.
type IngestConfig struct {
	DocsDir     string   `yaml:"docs_dir"`
	Extensions  []string `yaml:"extensions"`
	BatchSize   int      `yaml:"batch_size"`
	Concurrency int      `yaml:"concurrency"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Dir    string        `yaml:"dir"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// QAConfig selects the question answering variant.
type QAConfig struct {
	Mode string `yaml:"mode"`
	TopK int    `yaml:"top_k"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AnswerTimeoutSecs bounds retrieval plus generation for one question.
	AnswerTimeoutSecs int `yaml:"answer_timeout_secs"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Provider    string            `yaml:"provider"`
	Azure       AzureConfig       `yaml:"azure"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Gemini      GeminiConfig      `yaml:"gemini"`
	Chat        ChatConfig        `yaml:"chat"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Ingest      IngestConfig      `yaml:"ingest"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	QA          QAConfig          `yaml:"qa"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Defaults are applied first, then the environment overlay.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyConfigDefaults(cfg)
	ApplyEnv(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists it returns defaults; nothing is written.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	if userPath, err := defaultUserConfigPath(); err == nil {
		if _, err := os.Stat(userPath); err == nil {
			cfg, err := Load(userPath)
			return cfg, userPath, err
		}
	}
	cfg := defaultConfig()
	ApplyEnv(cfg)
	return cfg, "", nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides provider settings from the process environment.
func ApplyEnv(cfg *AppConfig) {
	set := func(dst *string, name string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Provider, "DOCQA_PROVIDER")
	set(&cfg.Azure.Endpoint, "AZURE_OPENAI_ENDPOINT")
	set(&cfg.Azure.APIVersion, "AZURE_OPENAI_API_VERSION")
	set(&cfg.Azure.EmbeddingsDeployment, "AZURE_OPENAI_EMBEDDINGS_DEPLOYMENT")
	set(&cfg.Azure.ChatDeployment, "AZURE_OPENAI_CHAT_DEPLOYMENT")
	set(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	set(&cfg.OpenAI.ChatModel, "OPENAI_CHAT_MODEL")
	set(&cfg.OpenAI.EmbeddingModel, "OPENAI_EMBEDDING_MODEL")
	cfg.Provider = strings.ToLower(cfg.Provider)
}

// Validate checks the settings that do not depend on credentials.
func (c *AppConfig) Validate() error {
	switch c.Provider {
	case ProviderAzure, ProviderOpenAI, ProviderGemini, ProviderLocal:
	default:
		return fmt.Errorf("unknown provider: %q", c.Provider)
	}
	switch c.VectorStore.Type {
	case "sqlite", "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return errors.New("qdrant url missing")
		}
	default:
		return fmt.Errorf("unknown vector store: %q", c.VectorStore.Type)
	}
	switch c.Chunker.Type {
	case "recursive":
		if c.Chunker.ChunkSize <= 0 {
			return errors.New("chunk_size must be positive")
		}
		if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
			return fmt.Errorf("chunk_overlap (%d) must be in [0, chunk_size)", c.Chunker.ChunkOverlap)
		}
	case "sentence":
		if c.Chunker.SentencesPerChunk <= 0 {
			return errors.New("sentences_per_chunk must be positive")
		}
	default:
		return fmt.Errorf("unknown chunker: %q", c.Chunker.Type)
	}
	if c.QA.TopK <= 0 {
		return errors.New("qa.top_k must be positive")
	}
	switch c.QA.Mode {
	case "chain", "pipeline":
	default:
		return fmt.Errorf("unknown qa mode: %q", c.QA.Mode)
	}
	return nil
}

// CheckEmbedding reports whether everything the Azure embeddings client needs is set.
func (a AzureConfig) CheckEmbedding() error {
	if os.Getenv(a.APIKeyEnv) == "" || a.Endpoint == "" || a.APIVersion == "" || a.EmbeddingsDeployment == "" {
		return errors.New("azure openai embedding configuration missing")
	}
	return nil
}

// CheckChat reports whether everything the Azure chat client needs is set.
func (a AzureConfig) CheckChat() error {
	if os.Getenv(a.APIKeyEnv) == "" || a.Endpoint == "" || a.APIVersion == "" || a.ChatDeployment == "" {
		return errors.New("azure openai chat configuration missing")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Provider:    ProviderAzure,
		Chat:        ChatConfig{Temperature: 0.2},
		Chunker:     ChunkerConfig{Type: "recursive", ChunkSize: 1000, ChunkOverlap: 200},
		Ingest:      IngestConfig{DocsDir: "docs", Extensions: []string{".pdf"}},
		VectorStore: VectorStoreConfig{Type: "sqlite", Dir: "vectorstore"},
		QA:          QAConfig{Mode: "chain", TopK: 4},
		Server:      ServerConfig{Addr: ":5000"},
		Logging:     LoggingConfig{Level: "info", Format: "json"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Azure.APIKeyEnv == "" {
		cfg.Azure.APIKeyEnv = "AZURE_OPENAI_API_KEY"
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Gemini.APIKeyEnv == "" {
		cfg.Gemini.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.Gemini.ChatModel == "" {
		cfg.Gemini.ChatModel = "gemini-2.5-flash"
	}
	if cfg.Gemini.EmbeddingModel == "" {
		cfg.Gemini.EmbeddingModel = "gemini-embedding-001"
	}
	if cfg.Chat.TimeoutSecs == 0 {
		cfg.Chat.TimeoutSecs = 60
	}
	if cfg.Chat.MaxSentences == 0 {
		cfg.Chat.MaxSentences = 3
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "recursive"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 32
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Ingest.TimeoutSecs == 0 {
		cfg.Ingest.TimeoutSecs = 30
	}
	if len(cfg.Ingest.Extensions) == 0 {
		cfg.Ingest.Extensions = []string{".pdf"}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Dir == "" {
		cfg.VectorStore.Dir = "vectorstore"
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "docqa"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if cfg.QA.Mode == "" {
		cfg.QA.Mode = "chain"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5000"
	}
	if cfg.Server.AnswerTimeoutSecs == 0 {
		cfg.Server.AnswerTimeoutSecs = 90
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
