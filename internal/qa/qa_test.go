package qa

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/llm/extractive"
)

type staticRetriever struct {
	results []domain.SearchResult
	err     error
}

func (r staticRetriever) Retrieve(context.Context, string) ([]domain.SearchResult, error) {
	return r.results, r.err
}

type recordingModel struct {
	reply    string
	err      error
	messages []domain.Message
}

func (m *recordingModel) Name() string { return "recording" }

func (m *recordingModel) Chat(_ context.Context, msgs []domain.Message) (string, error) {
	m.messages = msgs
	return m.reply, m.err
}

var docs = []domain.SearchResult{
	{Chunk: domain.Chunk{ChunkID: "w#1:0", Source: "docs/warranty.pdf", Page: 1, Text: "The warranty covers parts for two years."}, Score: 0.9},
	{Chunk: domain.Chunk{ChunkID: "b#2:0", Source: "docs/billing.pdf", Page: 2, Text: "Invoices are due within thirty days."}, Score: 0.4},
}

func TestRetrievalQA_StuffsContextIntoSystemPrompt(t *testing.T) {
	model := &recordingModel{reply: "Two years."}
	chain := NewRetrievalQA(staticRetriever{results: docs}, model)

	answer, err := chain.Run(context.Background(), "How long is the warranty?")
	require.NoError(t, err)
	assert.Equal(t, "Two years.", answer)

	require.Len(t, model.messages, 2)
	assert.Equal(t, domain.RoleSystem, model.messages[0].Role)
	assert.Contains(t, model.messages[0].Content, "Use the following pieces of context")
	assert.Contains(t, model.messages[0].Content, docs[0].Chunk.Text+"\n\n"+docs[1].Chunk.Text)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "How long is the warranty?"}, model.messages[1])
}

func TestRetrievalQA_Errors(t *testing.T) {
	_, err := NewRetrievalQA(staticRetriever{err: errors.New("store offline")}, &recordingModel{}).Answer(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")

	_, err = NewRetrievalQA(staticRetriever{results: docs}, &recordingModel{err: errors.New("rate limited")}).Answer(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestPipeline_Steps(t *testing.T) {
	model := &recordingModel{reply: "  Thirty days.\n"}
	p := NewPipeline(staticRetriever{results: docs}, model)

	ans, err := p.Answer(context.Background(), "When are invoices due?")
	require.NoError(t, err)
	assert.Equal(t, "Thirty days.", ans.Text)
	assert.Len(t, ans.Sources, 2)
	assert.Contains(t, model.messages[0].Content, "[docs/billing.pdf, page 2]\nInvoices are due")

	// steps can be swapped
	p.Parse = func(s string) string { return "parsed" }
	ans, err = p.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "parsed", ans.Text)
}

func TestFormatDocs(t *testing.T) {
	out := FormatDocs([]domain.SearchResult{
		{Chunk: domain.Chunk{Source: "a.txt", Text: "alpha"}},
		{Chunk: domain.Chunk{Text: "beta"}},
	})
	assert.Equal(t, "[a.txt]\nalpha\n\nbeta", out)
}

func TestPromptTemplate_Format(t *testing.T) {
	msgs := PromptTemplate{Human: "Q: {question} ({missing})"}.Format(map[string]string{"question": "why?"})
	require.Len(t, msgs, 1)
	assert.Equal(t, "Q: why? ({missing})", msgs[0].Content)
}

func TestNew_Modes(t *testing.T) {
	a, err := New(ModeChain, staticRetriever{}, &recordingModel{})
	require.NoError(t, err)
	assert.IsType(t, &RetrievalQA{}, a)
	a, err = New(ModePipeline, staticRetriever{}, &recordingModel{})
	require.NoError(t, err)
	assert.IsType(t, &Pipeline{}, a)
	_, err = New("agent", staticRetriever{}, &recordingModel{})
	assert.Error(t, err)
}

func TestBothModesWithExtractiveModel(t *testing.T) {
	for _, mode := range []string{ModeChain, ModePipeline} {
		a, err := New(mode, staticRetriever{results: docs}, extractive.NewModel(1))
		require.NoError(t, err)
		ans, err := a.Answer(context.Background(), "What does the warranty cover?")
		require.NoError(t, err)
		assert.Equal(t, "The warranty covers parts for two years.", ans.Text, mode)
	}
}

func TestBothModesDoNotQuoteThePrompt(t *testing.T) {
	receipts := []domain.SearchResult{
		{Chunk: domain.Chunk{ChunkID: "t#1:0", Source: "docs/tax.pdf", Page: 1, Text: "Receipts must be stored for seven years."}, Score: 0.7},
	}
	for _, mode := range []string{ModeChain, ModePipeline} {
		a, err := New(mode, staticRetriever{results: receipts}, extractive.NewModel(1))
		require.NoError(t, err)
		ans, err := a.Answer(context.Background(), "How concise should tasks be kept?")
		require.NoError(t, err)
		assert.Equal(t, extractive.NoAnswer, ans.Text, mode)
	}
}
