// Package retriever finds the chunks most relevant to a question.
package retriever

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/vectorstore"
)

// DefaultTopK is the number of chunks returned when none is configured.
const DefaultTopK = 4

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// VectorRetriever embeds the query and searches the store. When the query
// embedding carries no signal it ranks chunks by token overlap instead.
type VectorRetriever struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	topK     int
}

// New creates a retriever returning topK results.
func New(embedder domain.Embedder, store vectorstore.Storage, topK int) *VectorRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &VectorRetriever{embedder: embedder, store: store, topK: topK}
}

// Retrieve returns the topK chunks for query.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if embedding.IsZero(vec) {
		if res, ok, err := r.lexicalSearch(ctx, query); ok || err != nil {
			return res, err
		}
	}
	res, err := r.store.Search(ctx, vec, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}
	// negative similarities are still a ranking; only all-zero scores carry no signal
	allZero := true
	for _, sr := range res {
		if math.Abs(sr.Score) > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero {
		if lex, ok, err := r.lexicalSearch(ctx, query); ok || err != nil {
			return lex, err
		}
	}
	return res, nil
}

// lexicalSearch ranks every stored chunk by Ochiai token overlap with the
// query. ok is false when the store cannot enumerate its chunks.
func (r *VectorRetriever) lexicalSearch(ctx context.Context, query string) ([]domain.SearchResult, bool, error) {
	scanner, ok := r.store.(vectorstore.Scanner)
	if !ok {
		return nil, false, nil
	}
	chunks, err := scanner.Chunks(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("scan chunks: %w", err)
	}
	qset := toTokenSet(query)
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(chunks))
	for i, ch := range chunks {
		scores[i] = pair{i, overlapOchiai(qset, ch.Text)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	topK := min(r.topK, len(scores))
	out := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		p := scores[i]
		out = append(out, domain.SearchResult{Chunk: chunks[p.idx], Score: p.score})
	}
	return out, true, nil
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai returns |A∩B| / sqrt(|A||B|) over the distinct tokens of the query and text.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	stoks := unicodeWordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(stoks))
	inter := 0
	for _, t := range stoks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}

var _ domain.Retriever = (*VectorRetriever)(nil)
