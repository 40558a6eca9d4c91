// Package extractive implements an offline chat model that answers by quoting
// the context sentences that best match the question.
package extractive

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"docqa/internal/domain"
)

// NoAnswer is returned when the context does not mention the question terms.
const NoAnswer = "I don't know."

// Model ranks sentences by word frequency weighted by question overlap.
type Model struct {
	maxSentences  int
	tokenPattern  *regexp.Regexp
	sentenceSplit *regexp.Regexp
	stopwords     map[string]struct{}
}

// NewModel creates an extractive model returning at most maxSentences sentences.
func NewModel(maxSentences int) *Model {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Model{
		maxSentences:  maxSentences,
		tokenPattern:  regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		sentenceSplit: regexp.MustCompile(`[^.!?]+[.!?]?`),
		stopwords:     defaultStopwords(),
	}
}

func (m *Model) Name() string { return "extractive" }

// contextMarkers separate prompt instructions from the retrieved context.
var contextMarkers = []string{"----------------\n", "Context:\n"}

// Chat treats system messages as context and the last user message as the
// question. Instructions before a context marker are not quoted.
func (m *Model) Chat(_ context.Context, messages []domain.Message) (string, error) {
	var contextParts []string
	question := ""
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			contextParts = append(contextParts, stripInstructions(msg.Content))
		case domain.RoleUser:
			question = msg.Content
		}
	}
	return m.extract(strings.Join(contextParts, "\n\n"), question), nil
}

// stripInstructions returns the text after the earliest context marker, or
// the whole message when it has none.
func stripInstructions(system string) string {
	at, end := -1, 0
	for _, marker := range contextMarkers {
		if i := strings.Index(system, marker); i >= 0 && (at < 0 || i < at) {
			at, end = i, i+len(marker)
		}
	}
	if at < 0 {
		return system
	}
	return system[end:]
}

func (m *Model) extract(text, question string) string {
	var sentences []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			// source tag such as "[docs/a.pdf, page 2]"
			continue
		}
		for _, s := range m.sentenceSplit.FindAllString(line, -1) {
			if s = strings.TrimSpace(s); s != "" {
				sentences = append(sentences, s)
			}
		}
	}
	if len(sentences) == 0 {
		return NoAnswer
	}
	wanted := make(map[string]struct{})
	for _, tok := range m.tokens(question) {
		wanted[tok] = struct{}{}
	}
	if len(wanted) == 0 {
		return NoAnswer
	}

	// word frequencies over the whole context, normalised to the maximum
	freq := map[string]float64{}
	maxF := 0.0
	for _, sent := range sentences {
		for _, tok := range m.tokens(sent) {
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}
	for k, v := range freq {
		freq[k] = v / maxF
	}

	type pair struct {
		idx   int
		score float64
	}
	var scores []pair
	for i, sent := range sentences {
		toks := m.tokens(sent)
		if len(toks) == 0 {
			continue
		}
		matched := map[string]struct{}{}
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
			if _, ok := wanted[tok]; ok {
				matched[tok] = struct{}{}
			}
		}
		if len(matched) == 0 {
			continue
		}
		score = score / math.Sqrt(float64(len(toks))) * float64(1+len(matched))
		scores = append(scores, pair{i, score})
	}
	if len(scores) == 0 {
		return NoAnswer
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	n := min(m.maxSentences, len(scores))
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	// keep original order among selected
	sort.Ints(selected)
	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}

func (m *Model) tokens(text string) []string {
	raw := m.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := m.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		// question words
		"what", "which", "who", "whom", "whose", "when", "where", "why", "how", "do", "does", "did", "i", "you", "we", "my", "your", "our", "there", "any", "much", "many",
		// prompt vocabulary
		"use", "following", "pieces", "context", "answer", "question", "user's", "know", "don't", "say", "try", "make",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
