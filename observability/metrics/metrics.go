// Package metrics implements Counter, Gauge, and Histogram metric types
// plus the registry and PipelineMetrics aggregate that sit behind the
// pipeline executor's instrumentation.
package metrics

import (
	"math"
	"sort"
	"strconv"
	"sync"
)

// DefaultBuckets is the histogram bucket boundary set used when none is
// supplied.
var DefaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Counter is a monotonically increasing, non-negative value.
type Counter struct {
	mu          sync.Mutex
	Name        string
	Description string
	Labels      map[string]string
	value       float64
}

func NewCounter(name, description string, labels map[string]string) *Counter {
	return &Counter{Name: name, Description: description, Labels: labels}
}

// Inc increases the counter by n, which must be >= 0.
func (c *Counter) Inc(n float64) {
	if n < 0 {
		return
	}
	c.mu.Lock()
	c.value += n
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *Counter) Reset() {
	c.mu.Lock()
	c.value = 0
	c.mu.Unlock()
}

// Gauge is a freely settable value.
type Gauge struct {
	mu          sync.Mutex
	Name        string
	Description string
	Labels      map[string]string
	value       float64
}

func NewGauge(name, description string, labels map[string]string) *Gauge {
	return &Gauge{Name: name, Description: description, Labels: labels}
}

func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

func (g *Gauge) Inc(n float64) {
	g.mu.Lock()
	g.value += n
	g.mu.Unlock()
}

func (g *Gauge) Dec(n float64) {
	g.mu.Lock()
	g.value -= n
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func (g *Gauge) Reset() {
	g.mu.Lock()
	g.value = 0
	g.mu.Unlock()
}

// Histogram tracks observation counts against cumulative buckets plus
// raw samples for percentile and stddev computation. Bucket update and
// raw-sample append happen together under one lock, so a concurrent
// export never observes one without the other.
type Histogram struct {
	mu          sync.Mutex
	Name        string
	Description string
	Labels      map[string]string
	buckets     []float64
	counts      []uint64 // cumulative count per bucket, parallel to buckets
	infCount    uint64
	samples     []float64
	sum         float64
	count       uint64
	min         float64
	max         float64
}

func NewHistogram(name, description string, labels map[string]string, buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = append([]float64(nil), DefaultBuckets...)
	}
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	return &Histogram{
		Name:        name,
		Description: description,
		Labels:      labels,
		buckets:     sorted,
		counts:      make([]uint64, len(sorted)),
	}
}

// Observe records v: every bucket boundary >= v has its cumulative count
// incremented, sum/count/min/max are updated, and the raw sample is
// retained.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
		}
	}
	if v > h.buckets[len(h.buckets)-1] {
		h.infCount++
	}

	h.sum += v
	h.count++
	if h.count == 1 {
		h.min, h.max = v, v
	} else {
		if v < h.min {
			h.min = v
		}
		if v > h.max {
			h.max = v
		}
	}
	h.samples = append(h.samples, v)
}

// Percentiles returns nearest-rank percentiles over the sorted raw
// observations for each requested p in (0,100].
func (h *Histogram) Percentiles(ps []float64) map[float64]float64 {
	h.mu.Lock()
	sorted := append([]float64(nil), h.samples...)
	h.mu.Unlock()
	sort.Float64s(sorted)

	out := make(map[float64]float64, len(ps))
	if len(sorted) == 0 {
		for _, p := range ps {
			out[p] = 0
		}
		return out
	}
	for _, p := range ps {
		rank := int(math.Ceil(p / 100 * float64(len(sorted))))
		if rank < 1 {
			rank = 1
		}
		if rank > len(sorted) {
			rank = len(sorted)
		}
		out[p] = sorted[rank-1]
	}
	return out
}

// Statistics is the summary returned by GetStatistics.
type Statistics struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Count  uint64
	Sum    float64
}

// GetStatistics returns mean/stddev/min/max/count/sum, using population
// standard deviation.
func (h *Histogram) GetStatistics() Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return Statistics{}
	}
	mean := h.sum / float64(h.count)
	var variance float64
	for _, v := range h.samples {
		d := v - mean
		variance += d * d
	}
	variance /= float64(h.count)

	return Statistics{
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Min:    h.min,
		Max:    h.max,
		Count:  h.count,
		Sum:    h.sum,
	}
}

// Export renders the histogram's cumulative bucket map plus statistics.
func (h *Histogram) Export() map[string]any {
	h.mu.Lock()
	buckets := make(map[string]uint64, len(h.buckets)+1)
	for i, b := range h.buckets {
		buckets[formatBucketKey(b)] = h.counts[i]
	}
	buckets["+Inf"] = h.infCount + lastBucketCount(h.counts)
	h.mu.Unlock()

	stats := h.GetStatistics()
	return map[string]any{
		"buckets": buckets,
		"mean":    stats.Mean,
		"stdDev":  stats.StdDev,
		"min":     stats.Min,
		"max":     stats.Max,
		"count":   stats.Count,
		"sum":     stats.Sum,
	}
}

func lastBucketCount(counts []uint64) uint64 {
	if len(counts) == 0 {
		return 0
	}
	return counts[len(counts)-1]
}

// formatBucketKey renders a bucket boundary as a map key, using an
// integral form ("1", "2500") when the boundary has no fractional part,
// matching how bucket boundaries are conventionally configured.
func formatBucketKey(b float64) string {
	if b == math.Trunc(b) {
		return strconv.FormatInt(int64(b), 10)
	}
	return strconv.FormatFloat(b, 'g', -1, 64)
}
