package domain

import "time"

// Document represents a single text source loaded into the system, either a
// local training file or an article returned by the search provider.
type Document struct {
	ID      string
	Path    string
	Topic   string
	Content string
}

// Chunk is a semantically meaningful part of a document used for indexing.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Article is one search-provider answer for a configured research topic.
type Article struct {
	Topic        string    `json:"topic"`
	TimeFilter   string    `json:"time_filter"`
	Content      string    `json:"content"`
	Model        string    `json:"model"`
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(text string) ([]float64, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorStore persists vectors and supports similarity search.
type VectorStore interface {
	Init(dimension int) error
	Upsert(chunks []Chunk, vectors [][]float64) error
	Search(vector []float64, topK int) ([]SearchResult, error)
	Clear() error
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// UsageReporter receives token usage figures after every outbound API call,
// success or failure. Callers report whatever the provider returned.
type UsageReporter interface {
	LogUsage(provider, model string, inputTokens, outputTokens int) error
}
