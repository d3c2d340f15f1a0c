package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ragforge/ragforge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmbedder struct {
	batchSizes []int
}

func (r *recordingEmbedder) EmbedQuery(ctx context.Context, text string) (model.Vector, error) {
	return model.Vector{1}, nil
}

func (r *recordingEmbedder) Embed(ctx context.Context, chunks []model.Chunk) ([]model.Vector, error) {
	r.batchSizes = append(r.batchSizes, len(chunks))
	vecs := make([]model.Vector, len(chunks))
	for i := range chunks {
		vecs[i] = model.Vector{float32(i)}
	}
	return vecs, nil
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 2, estimateTokens(""))
	assert.Equal(t, 27, estimateTokens(strings.Repeat("a", 100)))
}

func TestPackGreedy_RespectsTokenAndItemLimits(t *testing.T) {
	chunks := []model.Chunk{
		{Text: strings.Repeat("a", 40)}, // ~12 tokens
		{Text: strings.Repeat("a", 40)},
		{Text: strings.Repeat("a", 40)},
	}
	batch, next := packGreedy(chunks, 0, 20, 10)
	assert.Equal(t, 1, next)
	assert.Len(t, batch, 1)
}

func TestPackGreedy_SingleOversizedChunkStillMakesProgress(t *testing.T) {
	chunks := []model.Chunk{{Text: strings.Repeat("a", 10000)}}
	batch, next := packGreedy(chunks, 0, 10, 100)
	assert.Len(t, batch, 1)
	assert.Equal(t, 1, next)
}

func TestEmbedIntelligent_PacksAllChunks(t *testing.T) {
	chunks := make([]model.Chunk, 50)
	for i := range chunks {
		chunks[i] = model.Chunk{Text: strings.Repeat("word ", 20)}
	}
	embedder := &recordingEmbedder{}
	now := time.Unix(0, 0)
	exec := New(nil, WithIntelligentBatching(IntelligentBatchConfig{
		MaxTokensPerBatch: 200, MaxItemsPerBatch: 10, TargetUtilization: 0.85,
		Now: func() time.Time { now = now.Add(time.Millisecond); return now },
	}))
	vectors, _, err := exec.embedIntelligent(context.Background(), embedder, chunks)
	require.NoError(t, err)
	assert.Len(t, vectors, len(chunks))
	total := 0
	for _, n := range embedder.batchSizes {
		total += n
	}
	assert.Equal(t, len(chunks), total)
}

func TestIntelligentBatcher_ScalesDownWhenSlow(t *testing.T) {
	cfg := IntelligentBatchConfig{MaxTokensPerBatch: 1000, TargetUtilization: 1.0, TargetBatchDuration: time.Second}
	b := newIntelligentBatcher(cfg)
	before := b.tokenLimit()
	for i := 0; i < 10; i++ {
		b.recordDuration(5 * time.Second)
	}
	after := b.tokenLimit()
	assert.Less(t, after, before)
}

func TestEmbedIntelligent_ReportsProgress(t *testing.T) {
	chunks := make([]model.Chunk, 25)
	for i := range chunks {
		chunks[i] = model.Chunk{Text: "short"}
	}
	embedder := &recordingEmbedder{}
	var progressCalls int
	exec := New(nil, WithIntelligentBatching(IntelligentBatchConfig{
		MaxTokensPerBatch: 1000, MaxItemsPerBatch: 5, TargetUtilization: 0.85,
		ProgressInterval: 10,
		OnProgress:       func(done, total int) { progressCalls++ },
	}))
	_, _, err := exec.embedIntelligent(context.Background(), embedder, chunks)
	require.NoError(t, err)
	assert.Greater(t, progressCalls, 0)
}
