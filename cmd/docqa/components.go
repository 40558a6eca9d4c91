package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding/gemini"
	"docqa/internal/embedding/openai"
	"docqa/internal/embedding/tfidf"
	"docqa/internal/index"
	"docqa/internal/llm/extractive"
	llmgemini "docqa/internal/llm/gemini"
	llmopenai "docqa/internal/llm/openai"
	"docqa/internal/loader"
	"docqa/internal/qa"
	"docqa/internal/retriever"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
	"docqa/internal/vectorstore/sqlite"
)

// app is the assembled set of components for one command.
type app struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	embedder domain.Embedder
	store    vectorstore.Storage
	indexer  *index.Indexer
}

func newApp(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	emb, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ch, err := buildChunker(cfg)
	if err != nil {
		return nil, err
	}
	st, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	ld := loader.New(loader.WithExtensions(cfg.Ingest.Extensions...), loader.WithLogger(logger))
	ix := index.New(index.Config{
		Dir:         cfg.VectorStore.Dir,
		BatchSize:   cfg.Ingest.BatchSize,
		Concurrency: cfg.Ingest.Concurrency,
	}, ld, ch, emb, st, logger)
	return &app{cfg: cfg, logger: logger, embedder: emb, store: st, indexer: ix}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing vector store", zap.Error(err))
	}
}

// answerer opens the index and builds the configured QA variant.
func (a *app) answerer(ctx context.Context, mode string) (qa.Answerer, error) {
	if _, err := a.indexer.Open(ctx); err != nil {
		return nil, err
	}
	model, err := buildChatModel(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = a.cfg.QA.Mode
	}
	a.logger.Info("answering with",
		zap.String("mode", mode),
		zap.String("model", model.Name()),
		zap.String("embedder", a.embedder.Name()),
		zap.Int("top_k", a.cfg.QA.TopK))
	return qa.New(mode, retriever.New(a.embedder, a.store, a.cfg.QA.TopK), model)
}

func buildEmbedder(ctx context.Context, cfg *config.AppConfig) (domain.Embedder, error) {
	timeout := time.Duration(cfg.Ingest.TimeoutSecs) * time.Second
	switch cfg.Provider {
	case config.ProviderAzure:
		if err := cfg.Azure.CheckEmbedding(); err != nil {
			return nil, err
		}
		return openai.NewClient(openai.Config{
			Azure:      true,
			BaseURL:    cfg.Azure.Endpoint,
			APIKeyEnv:  cfg.Azure.APIKeyEnv,
			Deployment: cfg.Azure.EmbeddingsDeployment,
			APIVersion: cfg.Azure.APIVersion,
			Timeout:    timeout,
			BatchSize:  cfg.Ingest.BatchSize,
		})
	case config.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.EmbeddingModel,
			Timeout:   timeout,
			BatchSize: cfg.Ingest.BatchSize,
		})
	case config.ProviderGemini:
		return gemini.NewEmbedder(ctx, gemini.Config{APIKeyEnv: cfg.Gemini.APIKeyEnv, Model: cfg.Gemini.EmbeddingModel})
	case config.ProviderLocal:
		return tfidf.NewEmbedder(), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

func buildChatModel(ctx context.Context, cfg *config.AppConfig) (domain.ChatModel, error) {
	timeout := time.Duration(cfg.Chat.TimeoutSecs) * time.Second
	switch cfg.Provider {
	case config.ProviderAzure:
		if err := cfg.Azure.CheckChat(); err != nil {
			return nil, err
		}
		return llmopenai.NewModel(llmopenai.Config{
			Azure:       true,
			BaseURL:     cfg.Azure.Endpoint,
			APIKeyEnv:   cfg.Azure.APIKeyEnv,
			Deployment:  cfg.Azure.ChatDeployment,
			APIVersion:  cfg.Azure.APIVersion,
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
			Timeout:     timeout,
		})
	case config.ProviderOpenAI:
		return llmopenai.NewModel(llmopenai.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.ChatModel,
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
			Timeout:     timeout,
		})
	case config.ProviderGemini:
		return llmgemini.NewModel(ctx, llmgemini.Config{
			APIKeyEnv:   cfg.Gemini.APIKeyEnv,
			Model:       cfg.Gemini.ChatModel,
			Temperature: cfg.Chat.Temperature,
		})
	case config.ProviderLocal:
		return extractive.NewModel(cfg.Chat.MaxSentences), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

func buildChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "recursive", "":
		return chunker.NewRecursiveChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	case "sentence":
		return chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
}

func buildStore(cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "sqlite", "":
		return sqlite.NewStorage(sqlite.Config{Path: filepath.Join(cfg.VectorStore.Dir, "index.sqlite")})
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		apiKey := ""
		if q.APIKeyEnv != "" {
			apiKey = os.Getenv(q.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     apiKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}
