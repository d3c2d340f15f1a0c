package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/plugin"
	"github.com/ragforge/ragforge/ragerr"
	"github.com/ragforge/ragforge/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	docs []model.Document
	err  error
}

func (f *fakeLoader) Load(ctx context.Context, path string) ([]model.Document, error) {
	return f.docs, f.err
}

type fakeEmbedder struct {
	dim       int
	err       error
	queryErr  error
	lastCall  []model.Chunk
}

func (f *fakeEmbedder) Embed(ctx context.Context, chunks []model.Chunk) ([]model.Vector, error) {
	f.lastCall = chunks
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([]model.Vector, len(chunks))
	for i := range chunks {
		vecs[i] = model.Vector{1, 2, 3}
	}
	return vecs, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) (model.Vector, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return model.Vector{1, 2, 3}, nil
}

type fakeRetriever struct {
	stored  []model.Vector
	results []model.ScoredChunk
	err     error
}

func (f *fakeRetriever) Store(ctx context.Context, vectors []model.Vector, chunks []model.Chunk) error {
	f.stored = vectors
	return f.err
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query model.Vector) ([]model.ScoredChunk, error) {
	return f.results, nil
}

type fakeLLM struct {
	answer string
	err    error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, context []model.ScoredChunk) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func newTestRegistry(t *testing.T, loader plugin.Loader, embedder plugin.Embedder, retriever plugin.Retriever, llm plugin.LLM) *plugin.Registry {
	t.Helper()
	reg := plugin.NewRegistry()
	require.NoError(t, reg.Register(model.KindLoader, "loader", loader))
	require.NoError(t, reg.Register(model.KindEmbedder, "embedder", embedder))
	require.NoError(t, reg.Register(model.KindRetriever, "retriever", retriever))
	require.NoError(t, reg.Register(model.KindLLM, "llm", llm))
	return reg
}

func TestExecutor_Ingest_HappyPath(t *testing.T) {
	loader := &fakeLoader{docs: []model.Document{{ID: "d1", Content: "hello world"}}}
	embedder := &fakeEmbedder{}
	retriever := &fakeRetriever{}
	llm := &fakeLLM{}
	reg := newTestRegistry(t, loader, embedder, retriever, llm)

	exec := New(reg, WithStages("loader", "embedder", "retriever", "", "llm"))
	result, err := exec.Ingest(context.Background(), "some/path")
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentCount)
	assert.Equal(t, 1, result.ChunkCount)
	assert.Equal(t, 1, result.VectorCount)
}

func TestExecutor_Ingest_EmptySourcePath(t *testing.T) {
	reg := plugin.NewRegistry()
	exec := New(reg, WithStages("loader", "embedder", "retriever", "", "llm"))
	_, err := exec.Ingest(context.Background(), "")
	kind, ok := ragerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ragerr.InvalidInput, kind)
}

func TestExecutor_Ingest_LoaderProducesNoDocuments(t *testing.T) {
	loader := &fakeLoader{docs: nil}
	embedder := &fakeEmbedder{}
	retriever := &fakeRetriever{}
	llm := &fakeLLM{}
	reg := newTestRegistry(t, loader, embedder, retriever, llm)

	exec := New(reg, WithStages("loader", "embedder", "retriever", "", "llm"))
	_, err := exec.Ingest(context.Background(), "path")
	kind, ok := ragerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ragerr.LoadFailed, kind)
}

func TestExecutor_Ingest_EmbeddingMismatchFails(t *testing.T) {
	loader := &fakeLoader{docs: []model.Document{{ID: "d1", Content: "hello"}}}
	embedder := &mismatchEmbedder{}
	retriever := &fakeRetriever{}
	llm := &fakeLLM{}
	reg := newTestRegistry(t, loader, embedder, retriever, llm)

	exec := New(reg, WithStages("loader", "embedder", "retriever", "", "llm"))
	_, err := exec.Ingest(context.Background(), "path")
	kind, ok := ragerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ragerr.EmbeddingMismatch, kind)
}

type mismatchEmbedder struct{}

func (m *mismatchEmbedder) Embed(ctx context.Context, chunks []model.Chunk) ([]model.Vector, error) {
	return nil, nil
}
func (m *mismatchEmbedder) EmbedQuery(ctx context.Context, text string) (model.Vector, error) {
	return model.Vector{1}, nil
}

func TestExecutor_Ingest_CancelledContext(t *testing.T) {
	loader := &fakeLoader{docs: []model.Document{{ID: "d1", Content: "hello"}}}
	embedder := &fakeEmbedder{}
	retriever := &fakeRetriever{}
	llm := &fakeLLM{}
	reg := newTestRegistry(t, loader, embedder, retriever, llm)

	exec := New(reg, WithStages("loader", "embedder", "retriever", "", "llm"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := exec.Ingest(ctx, "path")
	kind, ok := ragerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ragerr.Cancelled, kind)
}

func TestExecutor_Query_HappyPath(t *testing.T) {
	loader := &fakeLoader{}
	embedder := &fakeEmbedder{}
	retriever := &fakeRetriever{results: []model.ScoredChunk{{Chunk: model.Chunk{Text: "ctx"}, Score: 0.9}}}
	llm := &fakeLLM{answer: "the answer"}
	reg := newTestRegistry(t, loader, embedder, retriever, llm)

	exec := New(reg, WithStages("loader", "embedder", "retriever", "", "llm"))
	result, err := exec.Query(context.Background(), "what is it?")
	require.NoError(t, err)
	assert.Equal(t, "the answer", result.Answer)
	assert.Len(t, result.Chunks, 1)
}

func TestExecutor_Query_EmptyPromptRejected(t *testing.T) {
	reg := plugin.NewRegistry()
	exec := New(reg, WithStages("loader", "embedder", "retriever", "", "llm"))
	_, err := exec.Query(context.Background(), "")
	kind, ok := ragerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ragerr.InvalidInput, kind)
}

func TestExecutor_Query_EmptyRetrievalIsWarningNotFailure(t *testing.T) {
	loader := &fakeLoader{}
	embedder := &fakeEmbedder{}
	retriever := &fakeRetriever{results: nil}
	llm := &fakeLLM{answer: "still an answer"}
	reg := newTestRegistry(t, loader, embedder, retriever, llm)

	exec := New(reg, WithStages("loader", "embedder", "retriever", "", "llm"))
	result, err := exec.Query(context.Background(), "anything")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings)
}

func TestExecutor_Query_EmptyGenerationFails(t *testing.T) {
	loader := &fakeLoader{}
	embedder := &fakeEmbedder{}
	retriever := &fakeRetriever{}
	llm := &fakeLLM{answer: ""}
	reg := newTestRegistry(t, loader, embedder, retriever, llm)

	exec := New(reg, WithStages("loader", "embedder", "retriever", "", "llm"))
	_, err := exec.Query(context.Background(), "anything")
	kind, ok := ragerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ragerr.GenerationFailed, kind)
}

func TestExecutor_Query_QueryEmbeddingErrorIsTransient(t *testing.T) {
	loader := &fakeLoader{}
	embedder := &fakeEmbedder{queryErr: errors.New("boom")}
	retriever := &fakeRetriever{}
	llm := &fakeLLM{}
	reg := newTestRegistry(t, loader, embedder, retriever, llm)

	exec := New(reg, WithStages("loader", "embedder", "retriever", "", "llm"), WithRetryPolicy(noDelayPolicy()))
	_, err := exec.Query(context.Background(), "anything")
	kind, ok := ragerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ragerr.Transient, kind)
}

func noDelayPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Retries = 0
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}
