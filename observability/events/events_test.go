package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_AppendsOrderedEvents(t *testing.T) {
	l := NewLogger()
	l.LogStageStart("ingest")
	l.LogStageEnd("ingest", 10*time.Millisecond)

	history := l.GetEventHistory(Filter{})
	require.Len(t, history, 2)
	assert.Equal(t, "stage.start", history[0].EventType)
	assert.Equal(t, "stage.end", history[1].EventType)
	assert.True(t, history[0].Timestamp.Before(history[1].Timestamp) || history[0].Timestamp.Equal(history[1].Timestamp))
}

func TestLogger_FilterByEventType(t *testing.T) {
	l := NewLogger()
	l.LogStageStart("ingest")
	l.LogPluginStart("embedder", "openai", []any{"a", "b"})

	filtered := l.GetEventHistory(Filter{EventType: "plugin.start"})
	require.Len(t, filtered, 1)
	assert.Equal(t, "openai", filtered[0].Metadata["name"])
}

func TestLogger_LimitTakesLastN(t *testing.T) {
	l := NewLogger()
	for i := 0; i < 5; i++ {
		l.LogStageStart("stage")
	}
	limited := l.GetEventHistory(Filter{Limit: 2})
	assert.Len(t, limited, 2)
}

func TestLogger_ExportImportRoundTrip(t *testing.T) {
	l := NewLogger()
	l.LogStageStart("ingest")
	l.LogPluginEnd("loader", "pdf", []any{"doc1"}, 5*time.Millisecond)

	data, err := l.ExportEvents(Filter{})
	require.NoError(t, err)

	decoded, err := ImportEvents(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, l.GetEventHistory(Filter{})[0].EventType, decoded[0].EventType)
}

func TestDescribeSize(t *testing.T) {
	assert.Equal(t, SizeDescriptor{Type: "object"}, DescribeSize(nil))
	assert.Equal(t, SizeDescriptor{Type: "string", Length: 3}, DescribeSize("abc"))
	assert.Equal(t, SizeDescriptor{Type: "array", Length: 2}, DescribeSize([]any{1, 2}))
}

type recordingSink struct{ received []Event }

func (s *recordingSink) Publish(e Event) { s.received = append(s.received, e) }

func TestLogger_SinkReceivesCopy(t *testing.T) {
	sink := &recordingSink{}
	l := NewLogger(sink)
	l.LogStageStart("ingest")
	require.Len(t, sink.received, 1)
	assert.Equal(t, "stage.start", sink.received[0].EventType)
}
