// Package qa answers questions over retrieved document chunks, either with a
// prebuilt "stuff" chain or with an explicitly composed pipeline.
package qa

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/domain"
)

// Modes accepted by New.
const (
	ModeChain    = "chain"
	ModePipeline = "pipeline"
)

// Answer is a generated answer and the chunks it was grounded on.
type Answer struct {
	Text    string
	Sources []domain.SearchResult
}

// Answerer answers a single question.
type Answerer interface {
	Answer(ctx context.Context, question string) (*Answer, error)
}

// PromptTemplate renders a system and a human message. Placeholders are
// written as {name}.
type PromptTemplate struct {
	System string
	Human  string
}

// Format substitutes vars into both templates. An empty template yields no message.
func (p PromptTemplate) Format(vars map[string]string) []domain.Message {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	var msgs []domain.Message
	if p.System != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: r.Replace(p.System)})
	}
	if p.Human != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: r.Replace(p.Human)})
	}
	return msgs
}

// New returns the answerer for mode.
func New(mode string, retriever domain.Retriever, model domain.ChatModel) (Answerer, error) {
	switch mode {
	case ModeChain, "":
		return NewRetrievalQA(retriever, model), nil
	case ModePipeline:
		return NewPipeline(retriever, model), nil
	default:
		return nil, fmt.Errorf("unknown qa mode: %q", mode)
	}
}
