package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/plugin"
	"github.com/ragforge/ragforge/ragerr"
)

// IntelligentBatchConfig packs chunks into token-aware batches instead of
// fixed-size ones, adaptively rescaling the packing target toward
// TargetBatchDuration using a trailing window of recent batch durations.
type IntelligentBatchConfig struct {
	MaxTokensPerBatch   int
	MaxItemsPerBatch    int
	TargetUtilization   float64
	TargetBatchDuration time.Duration

	// ProgressInterval, if > 0, calls OnProgress roughly every that many
	// processed items.
	ProgressInterval int
	OnProgress       func(processed, total int)

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// DefaultIntelligentBatchConfig returns the documented defaults.
func DefaultIntelligentBatchConfig() IntelligentBatchConfig {
	return IntelligentBatchConfig{
		MaxTokensPerBatch:   8191,
		MaxItemsPerBatch:    2048,
		TargetUtilization:   0.85,
		TargetBatchDuration: 3 * time.Second,
	}
}

func (c IntelligentBatchConfig) withDefaults() IntelligentBatchConfig {
	if c.MaxTokensPerBatch <= 0 {
		c.MaxTokensPerBatch = 8191
	}
	if c.MaxItemsPerBatch <= 0 {
		c.MaxItemsPerBatch = 2048
	}
	if c.TargetUtilization <= 0 {
		c.TargetUtilization = 0.85
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// estimateTokens is the crude 4-chars-per-token heuristic plus a
// fixed overhead of 2 tokens for framing.
func estimateTokens(text string) int {
	return int(math.Ceil(float64(len(text))/4)) + 2
}

// intelligentBatcher tracks a trailing window of the last 10 batch
// durations and adjusts a scale factor applied to the token packing
// threshold so batches trend toward cfg.TargetBatchDuration.
type intelligentBatcher struct {
	cfg       IntelligentBatchConfig
	scale     float64
	durations []time.Duration
}

func newIntelligentBatcher(cfg IntelligentBatchConfig) *intelligentBatcher {
	return &intelligentBatcher{cfg: cfg, scale: 1.0}
}

func (b *intelligentBatcher) recordDuration(d time.Duration) {
	b.durations = append(b.durations, d)
	if len(b.durations) > 10 {
		b.durations = b.durations[len(b.durations)-10:]
	}
	if b.cfg.TargetBatchDuration <= 0 {
		return
	}
	var sum time.Duration
	for _, v := range b.durations {
		sum += v
	}
	avg := sum / time.Duration(len(b.durations))
	if avg <= 0 {
		return
	}
	ratio := float64(b.cfg.TargetBatchDuration) / float64(avg)
	if ratio > 1.5 {
		ratio = 1.5
	}
	if ratio < 0.5 {
		ratio = 0.5
	}
	b.scale *= ratio
	if b.scale > 1 {
		b.scale = 1
	}
	if b.scale < 0.1 {
		b.scale = 0.1
	}
}

func (b *intelligentBatcher) tokenLimit() int {
	limit := float64(b.cfg.MaxTokensPerBatch) * b.cfg.TargetUtilization * b.scale
	if limit < 1 {
		limit = 1
	}
	return int(limit)
}

// packGreedy fills a batch starting at start up to tokenLimit tokens or
// itemLimit items, always admitting at least one chunk so a single
// oversized chunk still makes progress.
func packGreedy(chunks []model.Chunk, start, tokenLimit, itemLimit int) ([]model.Chunk, int) {
	tokens := 0
	end := start
	for end < len(chunks) {
		t := estimateTokens(chunks[end].Text)
		if end > start && (tokens+t > tokenLimit || end-start >= itemLimit) {
			break
		}
		tokens += t
		end++
		if end-start >= itemLimit {
			break
		}
	}
	if end == start {
		end = start + 1
	}
	return chunks[start:end], end
}

// embedIntelligent packs chunks into token-aware batches and embeds them
// sequentially, rescaling the packing target after every batch.
func (e *Executor) embedIntelligent(ctx context.Context, embedder plugin.Embedder, chunks []model.Chunk) ([]model.Vector, []string, error) {
	cfg := e.intelligentBatch.withDefaults()
	batcher := newIntelligentBatcher(cfg)

	vectors := make([]model.Vector, 0, len(chunks))
	total := len(chunks)
	processed := 0
	nextProgressAt := cfg.ProgressInterval

	for i := 0; i < len(chunks); {
		if err := ctx.Err(); err != nil {
			return nil, nil, ragerr.Wrap(ragerr.Cancelled, "operation cancelled", err)
		}

		batch, next := packGreedy(chunks, i, batcher.tokenLimit(), cfg.MaxItemsPerBatch)

		start := cfg.Now()
		vecs, err := embedder.Embed(ctx, batch)
		duration := cfg.Now().Sub(start)
		if err != nil {
			return nil, nil, ragerr.Wrap(ragerr.ParallelEmbeddingFailed, "intelligent batch embedding failed", err)
		}
		if len(vecs) != len(batch) {
			return nil, nil, ragerr.Newf(ragerr.EmbeddingMismatch, "batch embed returned %d vectors for %d chunks", len(vecs), len(batch))
		}
		vectors = append(vectors, vecs...)
		batcher.recordDuration(duration)

		processed += len(batch)
		i = next

		if cfg.OnProgress != nil && cfg.ProgressInterval > 0 && processed >= nextProgressAt {
			cfg.OnProgress(processed, total)
			nextProgressAt += cfg.ProgressInterval
		}
	}

	if cfg.OnProgress != nil && cfg.ProgressInterval > 0 && processed > 0 {
		cfg.OnProgress(processed, total)
	}

	return vectors, nil, nil
}
