package plugin

import (
	"context"

	"github.com/ragforge/ragforge/model"
)

// The following interfaces are the typed, idiomatic-Go face of the
// plugin ABI described in the contract table. A concrete plugin need not
// implement these interfaces directly — Register accepts any value and
// validates method presence structurally via reflection, so plugins
// loaded from outside this module's type system (a git checkout, an npm
// shim, a dynamically compiled plugin) can still satisfy a contract as
// long as they expose callables with the required names. Implementing
// these interfaces is simply the easiest way to do that from Go code.
// The Executor, however, calls plugins through these interfaces and
// reports ContractViolation for a registered plugin that does not
// implement the one for its kind.

// Loader turns a source path into documents.
type Loader interface {
	Load(ctx context.Context, path string) ([]model.Document, error)
}

// ChunkingLoader is a Loader that also knows how to split a document
// into chunks itself, rather than leaving the executor to treat each
// whole document as a single chunk.
type ChunkingLoader interface {
	Loader
	Chunk(ctx context.Context, doc model.Document) ([]model.Chunk, error)
}

// Embedder maps chunks (and single query strings) to vectors.
type Embedder interface {
	Embed(ctx context.Context, chunks []model.Chunk) ([]model.Vector, error)
	EmbedQuery(ctx context.Context, text string) (model.Vector, error)
}

// DimensionedEmbedder additionally reports its output vector length.
type DimensionedEmbedder interface {
	Embedder
	Dimensions() int
}

// Retriever persists vectors and returns nearest neighbors for a query.
type Retriever interface {
	Store(ctx context.Context, vectors []model.Vector, chunks []model.Chunk) error
	Retrieve(ctx context.Context, query model.Vector) ([]model.ScoredChunk, error)
}

// DeletingRetriever additionally supports removal by id.
type DeletingRetriever interface {
	Retriever
	Delete(ctx context.Context, ids []string) error
}

// LLM generates a response from a prompt and supporting context chunks.
type LLM interface {
	Generate(ctx context.Context, prompt string, context []model.ScoredChunk) (string, error)
}

// StreamingLLM additionally supports incremental generation.
type StreamingLLM interface {
	LLM
	GenerateStream(ctx context.Context, prompt string, context []model.ScoredChunk, onToken func(string)) error
}

// Reranker reorders candidate chunks given the original query.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []model.ScoredChunk) ([]model.ScoredChunk, error)
}

// ScoringReranker additionally exposes a standalone scoring function.
type ScoringReranker interface {
	Reranker
	Score(ctx context.Context, query string, chunk model.Chunk) (float64, error)
}
