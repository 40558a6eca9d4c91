package domain

import "context"

// Document represents a single loaded unit of text: a PDF page, a spreadsheet
// sheet or a whole text file.
type Document struct {
	ID       string
	Path     string
	Page     int
	Content  string
	Metadata map[string]string
}

// Chunk is a semantically meaningful part of a document used for indexing.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Source     string
	Page       int
	Text       string
	Index      int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn sent to a ChatModel.
type Message struct {
	Role    Role
	Content string
}

// Loader reads documents from a location.
type Loader interface {
	Load(ctx context.Context, location string) ([]Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatModel produces a completion for a conversation.
type ChatModel interface {
	Name() string
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Retriever returns the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]SearchResult, error)
}
