package metrics

import "sync"

// KindMetrics bundles the per-kind operation/duration/token counters
// used for embedding, retrieval, and generation stages.
type KindMetrics struct {
	Operations    *Counter
	Durations     *Histogram
	Tokens        *Counter
	Batches       *Counter
	Results       *Counter
	StreamingOps  *Counter
}

// MemorySample is one point-in-time memory observation.
type MemorySample struct {
	HeapUsed       uint64
	HeapTotal      uint64
	HeapPercentage float64
}

// PipelineMetrics is the aggregate bundle of operation counters,
// per-kind stage metrics, memory samples, error breakdowns, concurrency
// observations, and backpressure counters a pipeline run accumulates.
type PipelineMetrics struct {
	reg *Registry

	OperationsTotal      *Counter
	OperationsSuccessful *Counter
	OperationsFailed     *Counter
	OperationsActive     *Gauge

	Embedding KindMetrics
	Retrieval KindMetrics
	LLM       KindMetrics

	mu             sync.Mutex
	memorySamples  []MemorySample
	errorsByType   map[string]int
	errorsByPlugin map[string]int
	concurrency    []int
	bpApplied      int
	bpReleased     int
	bufferSamples  []int
}

func newKindMetrics(reg *Registry, prefix string) KindMetrics {
	ops, _ := reg.Counter(prefix+"_operations_total", prefix+" operations", nil)
	durations, _ := reg.Histogram(prefix+"_duration_ms", prefix+" stage duration", nil, nil)
	tokens, _ := reg.Counter(prefix+"_tokens_total", prefix+" tokens processed", nil)
	batches, _ := reg.Counter(prefix+"_batches_total", prefix+" batches processed", nil)
	results, _ := reg.Counter(prefix+"_results_total", prefix+" results produced", nil)
	streaming, _ := reg.Counter(prefix+"_streaming_ops_total", prefix+" streaming operations", nil)
	return KindMetrics{
		Operations:   ops,
		Durations:    durations,
		Tokens:       tokens,
		Batches:      batches,
		Results:      results,
		StreamingOps: streaming,
	}
}

// NewPipelineMetrics constructs the aggregate on top of reg, registering
// every constituent metric by name.
func NewPipelineMetrics(reg *Registry) *PipelineMetrics {
	total, _ := reg.Counter("pipeline_operations_total", "total pipeline operations", nil)
	successful, _ := reg.Counter("pipeline_operations_successful", "successful pipeline operations", nil)
	failed, _ := reg.Counter("pipeline_operations_failed", "failed pipeline operations", nil)
	active, _ := reg.Gauge("pipeline_operations_active", "currently active pipeline operations", nil)

	return &PipelineMetrics{
		reg:                  reg,
		OperationsTotal:      total,
		OperationsSuccessful: successful,
		OperationsFailed:     failed,
		OperationsActive:     active,
		Embedding:            newKindMetrics(reg, "embedding"),
		Retrieval:            newKindMetrics(reg, "retrieval"),
		LLM:                  newKindMetrics(reg, "llm"),
		errorsByType:         make(map[string]int),
		errorsByPlugin:       make(map[string]int),
	}
}

// RecordStart marks the beginning of a pipeline operation.
func (m *PipelineMetrics) RecordStart() {
	m.OperationsTotal.Inc(1)
	m.OperationsActive.Inc(1)
}

// RecordSuccess marks a pipeline operation as finished successfully.
func (m *PipelineMetrics) RecordSuccess() {
	m.OperationsSuccessful.Inc(1)
	m.OperationsActive.Dec(1)
}

// RecordFailure marks a pipeline operation as finished with an error of
// errorType, attributable to plugin (may be empty).
func (m *PipelineMetrics) RecordFailure(errorType, plugin string) {
	m.OperationsFailed.Inc(1)
	m.OperationsActive.Dec(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorsByType[errorType]++
	if plugin != "" {
		m.errorsByPlugin[plugin]++
	}
}

// RecordMemorySample appends a memory usage observation.
func (m *PipelineMetrics) RecordMemorySample(heapUsed, heapTotal uint64) {
	pct := 0.0
	if heapTotal > 0 {
		pct = float64(heapUsed) / float64(heapTotal) * 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memorySamples = append(m.memorySamples, MemorySample{HeapUsed: heapUsed, HeapTotal: heapTotal, HeapPercentage: pct})
}

// RecordConcurrency appends an observed in-flight worker count.
func (m *PipelineMetrics) RecordConcurrency(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concurrency = append(m.concurrency, n)
}

// RecordBackpressureApplied records a producer pause and the buffer
// size observed at the time.
func (m *PipelineMetrics) RecordBackpressureApplied(bufferSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bpApplied++
	m.bufferSamples = append(m.bufferSamples, bufferSize)
}

// RecordBackpressureReleased records a producer resuming after drain.
func (m *PipelineMetrics) RecordBackpressureReleased() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bpReleased++
}

// Snapshot summarizes the aggregate's non-registry-backed state:
// memory, errors, concurrency, and backpressure.
type Snapshot struct {
	MemorySamples    []MemorySample
	ErrorsByType     map[string]int
	ErrorsByPlugin   map[string]int
	MaxConcurrency   int
	MeanConcurrency  float64
	BackpressureApplied  int
	BackpressureReleased int
	BufferSizeSamples    []int
}

func (m *PipelineMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	errByType := make(map[string]int, len(m.errorsByType))
	for k, v := range m.errorsByType {
		errByType[k] = v
	}
	errByPlugin := make(map[string]int, len(m.errorsByPlugin))
	for k, v := range m.errorsByPlugin {
		errByPlugin[k] = v
	}

	maxC, sum := 0, 0
	for _, c := range m.concurrency {
		if c > maxC {
			maxC = c
		}
		sum += c
	}
	mean := 0.0
	if len(m.concurrency) > 0 {
		mean = float64(sum) / float64(len(m.concurrency))
	}

	return Snapshot{
		MemorySamples:        append([]MemorySample(nil), m.memorySamples...),
		ErrorsByType:         errByType,
		ErrorsByPlugin:       errByPlugin,
		MaxConcurrency:       maxC,
		MeanConcurrency:      mean,
		BackpressureApplied:  m.bpApplied,
		BackpressureReleased: m.bpReleased,
		BufferSizeSamples:    append([]int(nil), m.bufferSamples...),
	}
}
