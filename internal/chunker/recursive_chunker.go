package chunker

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

// DefaultSeparators are tried in order, from paragraph breaks down to single characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text into chunks of at most size runes, carrying up
// to overlap runes of trailing context into the next chunk. Text is split on the
// coarsest separator present and pieces still too large are split again with
// the finer separators.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []string
}

// NewRecursiveChunker creates a recursive character chunker.
func NewRecursiveChunker(size, overlap int, separators ...string) (*RecursiveChunker, error) {
	if size <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlap < 0 || overlap >= size {
		return nil, errors.New("chunk overlap must be in [0, size)")
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &RecursiveChunker{size: size, overlap: overlap, separators: separators}, nil
}

// Chunk splits the document content.
func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	texts := c.SplitText(document.Content)
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(i),
			Source:     document.Path,
			Page:       document.Page,
			Text:       text,
			Index:      i,
		})
	}
	return chunks, nil
}

// SplitText returns the chunk texts for content.
func (c *RecursiveChunker) SplitText(content string) []string {
	return c.split(content, c.separators)
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var out []string
	var pending []string
	for _, piece := range splitOn(text, separator) {
		if runeLen(piece) < c.size {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, c.merge(pending, separator)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, c.split(piece, rest)...)
	}
	if len(pending) > 0 {
		out = append(out, c.merge(pending, separator)...)
	}
	return out
}

// merge greedily packs pieces into chunks no longer than size, keeping at
// most overlap runes of the previous chunk at the head of the next one.
func (c *RecursiveChunker) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)
	var chunks []string
	var current []string
	total := 0
	for _, piece := range pieces {
		n := runeLen(piece)
		extra := 0
		if len(current) > 0 {
			extra = sepLen
		}
		if total+n+extra > c.size && len(current) > 0 {
			if doc := joinTrimmed(current, separator); doc != "" {
				chunks = append(chunks, doc)
			}
			for len(current) > 0 && (total > c.overlap || (total+n+sepIf(len(current) > 0, sepLen) > c.size && total > 0)) {
				total -= runeLen(current[0]) + sepIf(len(current) > 1, sepLen)
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n + sepIf(len(current) > 1, sepLen)
	}
	if doc := joinTrimmed(current, separator); doc != "" {
		chunks = append(chunks, doc)
	}
	return chunks
}

func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	for _, p := range strings.Split(text, separator) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func joinTrimmed(pieces []string, separator string) string {
	return strings.TrimSpace(strings.Join(pieces, separator))
}

func sepIf(cond bool, n int) int {
	if cond {
		return n
	}
	return 0
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
