package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_ResetThenIncMatchesFreshSequence(t *testing.T) {
	a := NewCounter("a", "", nil)
	a.Inc(3)
	a.Inc(4)
	a.Reset()
	a.Inc(5)

	b := NewCounter("b", "", nil)
	b.Inc(5)

	assert.Equal(t, b.Value(), a.Value())
}

func TestCounter_NegativeIncIgnored(t *testing.T) {
	c := NewCounter("c", "", nil)
	c.Inc(5)
	c.Inc(-100)
	assert.Equal(t, float64(5), c.Value())
}

func TestHistogram_ObserveIncrementsCumulativeBuckets(t *testing.T) {
	h := NewHistogram("h", "", nil, []float64{10, 20, 30})
	h.Observe(15)

	exported := h.Export()
	buckets := exported["buckets"].(map[string]uint64)
	assert.Equal(t, uint64(0), buckets["10"])
	assert.Equal(t, uint64(1), buckets["20"])
	assert.Equal(t, uint64(1), buckets["30"])
}

func TestHistogram_Percentiles(t *testing.T) {
	h := NewHistogram("h", "", nil, DefaultBuckets)
	for _, v := range []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		h.Observe(v)
	}
	p := h.Percentiles([]float64{50, 95})
	assert.Equal(t, float64(50), p[50])
	assert.Equal(t, float64(100), p[95])
}

func TestHistogram_PopulationStdDev(t *testing.T) {
	h := NewHistogram("h", "", nil, DefaultBuckets)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		h.Observe(v)
	}
	stats := h.GetStatistics()
	assert.InDelta(t, 5.0, stats.Mean, 0.01)
	assert.InDelta(t, 2.0, stats.StdDev, 0.01)
}

func TestRegistry_NameUniqueness(t *testing.T) {
	r := NewRegistry()
	_, err := r.Counter("x", "", nil)
	require.NoError(t, err)
	_, err = r.Gauge("x", "", nil)
	require.Error(t, err)
}

func TestPipelineMetrics_RecordFailureTracksErrorsByType(t *testing.T) {
	m := NewPipelineMetrics(NewRegistry())
	m.RecordStart()
	m.RecordFailure("LoadFailed", "pdf-loader")

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.ErrorsByType["LoadFailed"])
	assert.Equal(t, 1, snap.ErrorsByPlugin["pdf-loader"])
}

func TestPipelineMetrics_ConcurrencyAggregates(t *testing.T) {
	m := NewPipelineMetrics(NewRegistry())
	m.RecordConcurrency(1)
	m.RecordConcurrency(3)
	m.RecordConcurrency(2)

	snap := m.Snapshot()
	assert.Equal(t, 3, snap.MaxConcurrency)
	assert.InDelta(t, 2.0, snap.MeanConcurrency, 0.001)
}
