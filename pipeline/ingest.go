package pipeline

import (
	"context"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/plugin"
	"github.com/ragforge/ragforge/ragerr"
	"github.com/ragforge/ragforge/retry"
)

// Ingest runs load -> chunk -> embed -> store against sourcePath.
func (e *Executor) Ingest(ctx context.Context, sourcePath string) (model.IngestResult, error) {
	e.metrics.RecordStart()
	start := e.clock()

	var result model.IngestResult
	var err error
	if e.streaming != nil {
		result, err = e.streamIngest(ctx, sourcePath, e.streaming.withDefaults())
	} else {
		result, err = e.ingest(ctx, sourcePath)
	}
	if err != nil {
		kind, _ := ragerr.KindOf(err)
		e.metrics.RecordFailure(string(kind), e.failingPluginHint(kind))
		e.logger.LogPluginError("pipeline", "ingest", err, e.clock().Sub(start))
		return model.IngestResult{}, err
	}

	e.metrics.RecordSuccess()
	result.Duration = e.clock().Sub(start)
	return result, nil
}

// failingPluginHint maps an error kind to the plugin name most likely
// responsible, used for the PipelineMetrics error-by-plugin breakdown.
func (e *Executor) failingPluginHint(kind ragerr.Kind) string {
	switch kind {
	case ragerr.LoadFailed:
		return e.loaderName
	case ragerr.ChunkingFailed:
		return e.loaderName
	case ragerr.EmbeddingMismatch, ragerr.ParallelEmbeddingFailed, ragerr.PartialEmbeddingFailure, ragerr.QueryEmbeddingFailed:
		return e.embedderName
	case ragerr.GenerationFailed:
		return e.llmName
	default:
		return ""
	}
}

func (e *Executor) ingest(ctx context.Context, sourcePath string) (model.IngestResult, error) {
	if sourcePath == "" {
		return model.IngestResult{}, ragerr.New(ragerr.InvalidInput, "sourcePath must be a non-empty string")
	}
	if err := checkCancelled(ctx); err != nil {
		return model.IngestResult{}, err
	}

	loader, err := e.loader()
	if err != nil {
		return model.IngestResult{}, err
	}

	var documents []model.Document
	err = e.stage(ctx, "loader.load", "ingest.load", nil, func(ctx context.Context) error {
		return retry.Do(ctx, e.retryPolicy, func(ctx context.Context) error {
			docs, loadErr := loader.Load(ctx, sourcePath)
			if loadErr != nil {
				return ragerr.Wrap(ragerr.Transient, "loader failed", loadErr)
			}
			documents = docs
			return nil
		})
	})
	if err != nil {
		return model.IngestResult{}, err
	}
	if len(documents) == 0 {
		return model.IngestResult{}, ragerr.New(ragerr.LoadFailed, "loader produced no documents")
	}

	if err := checkCancelled(ctx); err != nil {
		return model.IngestResult{}, err
	}

	var allChunks []model.Chunk
	err = e.stage(ctx, "loader.chunk", "ingest.chunk", nil, func(ctx context.Context) error {
		for _, doc := range documents {
			chunks, chunkErr := e.chunkDocument(ctx, loader, doc)
			if chunkErr != nil {
				return chunkErr
			}
			allChunks = append(allChunks, chunks...)
		}
		return nil
	})
	if err != nil {
		return model.IngestResult{}, err
	}
	if len(allChunks) == 0 {
		return model.IngestResult{}, ragerr.New(ragerr.ChunkingFailed, "chunking produced zero chunks")
	}

	if err := checkCancelled(ctx); err != nil {
		return model.IngestResult{}, err
	}

	embedder, err := e.embedder()
	if err != nil {
		return model.IngestResult{}, err
	}

	var vectors []model.Vector
	var warnings []string
	err = e.stage(ctx, "embedder.embed", "ingest.embed", e.metrics.Embedding.Durations, func(ctx context.Context) error {
		vecs, warn, embedErr := e.embedChunks(ctx, embedder, allChunks)
		if embedErr != nil {
			return embedErr
		}
		vectors = vecs
		warnings = warn
		return nil
	})
	if err != nil {
		return model.IngestResult{}, err
	}
	if len(vectors) != len(allChunks) {
		return model.IngestResult{}, ragerr.Newf(ragerr.EmbeddingMismatch,
			"embedder returned %d vectors for %d chunks", len(vectors), len(allChunks))
	}

	if err := checkCancelled(ctx); err != nil {
		return model.IngestResult{}, err
	}

	retriever, err := e.retriever()
	if err != nil {
		return model.IngestResult{}, err
	}

	err = e.stage(ctx, "retriever.store", "ingest.store", nil, func(ctx context.Context) error {
		return retry.Do(ctx, e.retryPolicy, func(ctx context.Context) error {
			if storeErr := retriever.Store(ctx, vectors, allChunks); storeErr != nil {
				return ragerr.Wrap(ragerr.Transient, "retriever store failed", storeErr)
			}
			return nil
		})
	})
	if err != nil {
		return model.IngestResult{}, err
	}

	return model.IngestResult{
		DocumentCount: len(documents),
		ChunkCount:    len(allChunks),
		VectorCount:   len(vectors),
		Warnings:      warnings,
	}, nil
}

// chunkDocument prefers the loader's own Chunk method when available,
// falling back to treating the whole document as a single chunk.
func (e *Executor) chunkDocument(ctx context.Context, loader plugin.Loader, doc model.Document) ([]model.Chunk, error) {
	if chunking, ok := loader.(plugin.ChunkingLoader); ok {
		chunks, err := chunking.Chunk(ctx, doc)
		if err != nil {
			return nil, ragerr.Wrap(ragerr.ChunkingFailed, "loader chunking failed", err)
		}
		return chunks, nil
	}
	return []model.Chunk{{Text: doc.Content, Metadata: doc.Metadata}}, nil
}

func (e *Executor) embedChunks(ctx context.Context, embedder plugin.Embedder, chunks []model.Chunk) ([]model.Vector, []string, error) {
	if e.parallelBatch != nil {
		return e.embedParallel(ctx, embedder, chunks)
	}
	if e.intelligentBatch != nil {
		return e.embedIntelligent(ctx, embedder, chunks)
	}

	var vectors []model.Vector
	err := retry.Do(ctx, e.retryPolicy, func(ctx context.Context) error {
		vecs, embedErr := embedder.Embed(ctx, chunks)
		if embedErr != nil {
			return ragerr.Wrap(ragerr.Transient, "embedder failed", embedErr)
		}
		vectors = vecs
		return nil
	})
	return vectors, nil, err
}
