package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracer_StartEndSpan(t *testing.T) {
	tr := NewTracer(10, nil, "ragforge")
	span := tr.StartSpan("embedder.embed", StartOptions{})
	require.Len(t, span.TraceID, 32)
	require.Len(t, span.SpanID, 16)

	tr.EndSpan(span)
	assert.True(t, span.Duration >= 1)
	assert.False(t, span.EndTime.Before(span.StartTime))
	assert.Equal(t, StatusOK, span.Status)
}

func TestTracer_DoubleEndIdempotent(t *testing.T) {
	tr := NewTracer(10, nil, "ragforge")
	span := tr.StartSpan("loader.load", StartOptions{})
	tr.EndSpan(span)
	firstEnd := span.EndTime
	tr.EndSpan(span)
	assert.Equal(t, firstEnd, span.EndTime)
}

func TestTracer_StartActiveSpan_ErrorSetsStatus(t *testing.T) {
	tr := NewTracer(10, nil, "ragforge")
	boom := errors.New("boom")

	err := tr.StartActiveSpan(context.Background(), "llm.generate", StartOptions{}, func(ctx context.Context, span *Span) error {
		return boom
	})

	require.ErrorIs(t, err, boom)
	spans := tr.GetCompletedSpans(CompletedFilter{})
	require.Len(t, spans, 1)
	assert.Equal(t, StatusError, spans[0].Status)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}

func TestSpan_RecordExceptionAtMostOnce(t *testing.T) {
	tr := NewTracer(10, nil, "ragforge")
	span := tr.StartSpan("llm.generate", StartOptions{})
	span.RecordException(errors.New("first"))
	span.RecordException(errors.New("second"))
	assert.Len(t, span.Events, 1)
}

func TestTracer_CompletedSpansBoundedFIFO(t *testing.T) {
	tr := NewTracer(2, nil, "ragforge")
	for i := 0; i < 5; i++ {
		span := tr.StartSpan("stage.run", StartOptions{})
		tr.EndSpan(span)
	}
	spans := tr.GetCompletedSpans(CompletedFilter{})
	assert.Len(t, spans, 2)
}

func TestTracer_SpansByTypeCollapsesPluginCategory(t *testing.T) {
	tr := NewTracer(10, nil, "ragforge")
	for _, name := range []string{"embedder.embed", "llm.generate", "pipeline.ingest"} {
		span := tr.StartSpan(name, StartOptions{})
		tr.EndSpan(span)
	}
	stats := tr.GetStatistics()
	assert.Equal(t, 2, stats.SpansByType["plugin"])
	assert.Equal(t, 1, stats.SpansByType["pipeline"])
}
