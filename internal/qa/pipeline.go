package qa

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/domain"
)

// PipelinePrompt is the default prompt of the composed pipeline.
var PipelinePrompt = PromptTemplate{
	System: "You are an assistant for question-answering tasks. Use the following retrieved context to answer " +
		"the question. If you don't know the answer, say that you don't know. Keep the answer concise.\n\n" +
		"Context:\n{context}",
	Human: "{question}",
}

// Pipeline is the manually composed variant. Each step is a field so callers
// can replace any of them.
type Pipeline struct {
	Retriever  domain.Retriever
	FormatDocs func([]domain.SearchResult) string
	Prompt     PromptTemplate
	Model      domain.ChatModel
	Parse      func(string) string
}

// NewPipeline creates a pipeline with the default steps.
func NewPipeline(retriever domain.Retriever, model domain.ChatModel) *Pipeline {
	return &Pipeline{
		Retriever:  retriever,
		FormatDocs: FormatDocs,
		Prompt:     PipelinePrompt,
		Model:      model,
		Parse:      strings.TrimSpace,
	}
}

func (p *Pipeline) Answer(ctx context.Context, question string) (*Answer, error) {
	docs, err := p.Retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	msgs := p.Prompt.Format(map[string]string{
		"context":  p.FormatDocs(docs),
		"question": question,
	})
	out, err := p.Model.Chat(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Model.Name(), err)
	}
	return &Answer{Text: p.Parse(out), Sources: docs}, nil
}

// FormatDocs renders each chunk under a [source, page] tag, separated by blank lines.
func FormatDocs(docs []domain.SearchResult) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		tag := d.Chunk.Source
		if d.Chunk.Page > 0 {
			tag = fmt.Sprintf("%s, page %d", tag, d.Chunk.Page)
		}
		if tag == "" {
			parts = append(parts, d.Chunk.Text)
			continue
		}
		parts = append(parts, "["+tag+"]\n"+d.Chunk.Text)
	}
	return strings.Join(parts, "\n\n")
}
