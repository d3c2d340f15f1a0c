package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/plugin"
	"github.com/ragforge/ragforge/ragerr"
)

// ParallelBatchConfig partitions chunks into fixed-size batches embedded
// concurrently, bounded by MaxConcurrency, with per-batch retries on a
// linearly-scaled delay (RetryDelay * (attempt+1), not exponential).
type ParallelBatchConfig struct {
	BatchSize      int
	MaxConcurrency int
	RetryAttempts  int
	RetryDelay     time.Duration

	// Sleep is injectable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)
}

// DefaultParallelBatchConfig returns the documented defaults.
func DefaultParallelBatchConfig() ParallelBatchConfig {
	return ParallelBatchConfig{
		BatchSize:      10,
		MaxConcurrency: 3,
		RetryAttempts:  2,
		RetryDelay:     time.Second,
	}
}

func (c ParallelBatchConfig) withDefaults() ParallelBatchConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 1
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	return c
}

type batchResult struct {
	vectors []model.Vector
	err     error
}

// embedParallel partitions chunks into contiguous batches of cfg.BatchSize
// and embeds them concurrently, bounded by cfg.MaxConcurrency. A batch
// whose retries are all exhausted is "failed". The partial-failure policy
// is chunk-weighted, not batch-weighted: if more than half of all chunks
// belong to failed batches, the whole operation fails with
// ParallelEmbeddingFailed regardless of where the failures fall. Otherwise,
// if every failed batch forms a contiguous trailing run, the valid prefix
// is returned with a warning (order must stay aligned, so a dropped batch
// can never be followed by a kept one); any other failure pattern at or
// below the 50% threshold fails with PartialEmbeddingFailure.
func (e *Executor) embedParallel(ctx context.Context, embedder plugin.Embedder, chunks []model.Chunk) ([]model.Vector, []string, error) {
	cfg := e.parallelBatch.withDefaults()
	batches := partitionChunks(chunks, cfg.BatchSize)

	results := make([]batchResult, len(batches))
	sem := make(chan struct{}, cfg.MaxConcurrency)
	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []model.Chunk) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.embedBatchWithRetry(ctx, embedder, batch, cfg)
		}(i, batch)
	}
	wg.Wait()

	var failed []int
	var failedChunks int
	for i, r := range results {
		if r.err != nil {
			failed = append(failed, i)
			failedChunks += len(batches[i])
		}
	}
	if len(failed) == 0 {
		var vectors []model.Vector
		for _, r := range results {
			vectors = append(vectors, r.vectors...)
		}
		return vectors, nil, nil
	}

	if failedChunks*2 > len(chunks) {
		return nil, nil, ragerr.Wrap(ragerr.ParallelEmbeddingFailed,
			"embedding failed for more than half of all chunks", results[failed[0]].err)
	}

	if trailingRun(failed, len(batches)) {
		firstFailed := failed[0]
		var vectors []model.Vector
		for i := 0; i < firstFailed; i++ {
			vectors = append(vectors, results[i].vectors...)
		}
		warning := fmt.Sprintf("dropped %d trailing batch(es) after embedding failures: %v", len(failed), results[failed[len(failed)-1]].err)
		return vectors, []string{warning}, nil
	}

	return nil, nil, ragerr.Wrap(ragerr.PartialEmbeddingFailure, "embedding failed for one or more non-trailing batches", results[failed[0]].err)
}

// trailingRun reports whether failed (sorted, 0-indexed) is exactly the
// contiguous run of indices ending at total-1.
func trailingRun(failed []int, total int) bool {
	first := failed[0]
	if first+len(failed) != total {
		return false
	}
	for i, idx := range failed {
		if idx != first+i {
			return false
		}
	}
	return true
}

func (e *Executor) embedBatchWithRetry(ctx context.Context, embedder plugin.Embedder, batch []model.Chunk, cfg ParallelBatchConfig) batchResult {
	var lastErr error
	for attempt := 0; attempt <= cfg.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return batchResult{err: ragerr.Wrap(ragerr.Cancelled, "operation cancelled", err)}
		}
		vecs, err := embedder.Embed(ctx, batch)
		if err == nil && len(vecs) == len(batch) {
			return batchResult{vectors: vecs}
		}
		if err == nil {
			err = ragerr.Newf(ragerr.EmbeddingMismatch, "batch embed returned %d vectors for %d chunks", len(vecs), len(batch))
		}
		lastErr = err
		if attempt < cfg.RetryAttempts {
			cfg.Sleep(cfg.RetryDelay * time.Duration(attempt+1))
		}
	}
	return batchResult{err: lastErr}
}

func partitionChunks(chunks []model.Chunk, size int) [][]model.Chunk {
	var batches [][]model.Chunk
	for i := 0; i < len(chunks); i += size {
		end := i + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[i:end])
	}
	return batches
}
