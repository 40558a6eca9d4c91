package qa

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/domain"
)

// StuffPrompt places every retrieved chunk in the system message.
var StuffPrompt = PromptTemplate{
	System: "Use the following pieces of context to answer the user's question. \n" +
		"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n" +
		"----------------\n{context}",
	Human: "{question}",
}

// RetrievalQA is the "stuff" chain: retrieve, join all chunks into one
// prompt, ask the model once.
type RetrievalQA struct {
	Retriever domain.Retriever
	Model     domain.ChatModel
	Prompt    PromptTemplate
}

// NewRetrievalQA creates a stuff chain with the default prompt.
func NewRetrievalQA(retriever domain.Retriever, model domain.ChatModel) *RetrievalQA {
	return &RetrievalQA{Retriever: retriever, Model: model, Prompt: StuffPrompt}
}

// Run returns only the answer text.
func (c *RetrievalQA) Run(ctx context.Context, question string) (string, error) {
	ans, err := c.Answer(ctx, question)
	if err != nil {
		return "", err
	}
	return ans.Text, nil
}

func (c *RetrievalQA) Answer(ctx context.Context, question string) (*Answer, error) {
	docs, err := c.Retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Chunk.Text
	}
	msgs := c.Prompt.Format(map[string]string{
		"context":  strings.Join(texts, "\n\n"),
		"question": question,
	})
	text, err := c.Model.Chat(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Model.Name(), err)
	}
	return &Answer{Text: text, Sources: docs}, nil
}
