package domain

import "context"

// Document represents a single source file loaded into the system.
// Pages is set by loaders that know page boundaries (PDF); Content always
// holds the full text.
type Document struct {
	ID      string
	Path    string
	Name    string
	Content string
	Pages   []string
}

// Chunk is a bounded slice of a document used for indexing.
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

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// DocumentLoader reads a source document from disk.
type DocumentLoader interface {
	Load(ctx context.Context, path string) (Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorStore persists vectors and supports similarity search.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	Clear(ctx context.Context) error
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Completer talks to a text-generation endpoint.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
	Stream(ctx context.Context, req CompletionRequest) (CompletionStream, error)
}

// CompletionStream yields fragments in generation order. Recv returns io.EOF
// once the reply is complete. A stream cannot be restarted.
type CompletionStream interface {
	Recv() (Completion, error)
	Close()
}

// ImageGenerator produces an image for a text prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, size string) (Image, error)
}
