// Package pipeline implements the executor that composes loader,
// embedder, retriever, reranker, and LLM plugins into the ingest and
// query operations, wrapping every stage with retries, tracing spans,
// structured events, and metrics.
package pipeline

import (
	"context"
	"time"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/observability/events"
	"github.com/ragforge/ragforge/observability/metrics"
	"github.com/ragforge/ragforge/observability/tracing"
	"github.com/ragforge/ragforge/plugin"
	"github.com/ragforge/ragforge/ragerr"
	"github.com/ragforge/ragforge/retry"
)

// Clock abstracts time.Now so tests can control stage durations.
type Clock func() time.Time

// Executor runs ingest and query operations against a fixed registry of
// named plugins, following the functional-options constructor pattern:
// New(registry, opts...) rather than a large config struct.
type Executor struct {
	registry *plugin.Registry
	metrics  *metrics.PipelineMetrics
	tracer   *tracing.Tracer
	logger   *events.Logger
	clock    Clock

	loaderName    string
	embedderName  string
	retrieverName string
	rerankerName  string
	llmName       string

	retryPolicy retry.Policy

	parallelBatch    *ParallelBatchConfig
	intelligentBatch *IntelligentBatchConfig
	streaming        *StreamConfig
}

// Option configures an Executor at construction time.
type Option func(*Executor)

func WithMetrics(m *metrics.PipelineMetrics) Option { return func(e *Executor) { e.metrics = m } }
func WithTracer(t *tracing.Tracer) Option           { return func(e *Executor) { e.tracer = t } }
func WithLogger(l *events.Logger) Option            { return func(e *Executor) { e.logger = l } }
func WithClock(c Clock) Option                      { return func(e *Executor) { e.clock = c } }
func WithRetryPolicy(p retry.Policy) Option         { return func(e *Executor) { e.retryPolicy = p } }

// WithStages selects which named plugin to use for each kind. An empty
// rerankerName disables reranking.
func WithStages(loader, embedder, retriever, reranker, llm string) Option {
	return func(e *Executor) {
		e.loaderName = loader
		e.embedderName = embedder
		e.retrieverName = retriever
		e.rerankerName = reranker
		e.llmName = llm
	}
}

func WithParallelBatching(cfg ParallelBatchConfig) Option {
	return func(e *Executor) { e.parallelBatch = &cfg }
}

func WithIntelligentBatching(cfg IntelligentBatchConfig) Option {
	return func(e *Executor) { e.intelligentBatch = &cfg }
}

// New constructs an Executor against registry, applying opts in order.
func New(registry *plugin.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry:    registry,
		metrics:     metrics.NewPipelineMetrics(metrics.NewRegistry()),
		tracer:      tracing.NewTracer(1000, nil, "ragforge/pipeline"),
		logger:      events.NewLogger(),
		clock:       time.Now,
		retryPolicy: retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) loader() (plugin.Loader, error) {
	p, err := e.registry.Get(model.KindLoader, e.loaderName)
	if err != nil {
		return nil, err
	}
	l, ok := p.(plugin.Loader)
	if !ok {
		return nil, ragerr.Newf(ragerr.ContractViolation, "plugin %q does not implement Loader", e.loaderName)
	}
	return l, nil
}

func (e *Executor) embedder() (plugin.Embedder, error) {
	p, err := e.registry.Get(model.KindEmbedder, e.embedderName)
	if err != nil {
		return nil, err
	}
	em, ok := p.(plugin.Embedder)
	if !ok {
		return nil, ragerr.Newf(ragerr.ContractViolation, "plugin %q does not implement Embedder", e.embedderName)
	}
	return em, nil
}

func (e *Executor) retriever() (plugin.Retriever, error) {
	p, err := e.registry.Get(model.KindRetriever, e.retrieverName)
	if err != nil {
		return nil, err
	}
	r, ok := p.(plugin.Retriever)
	if !ok {
		return nil, ragerr.Newf(ragerr.ContractViolation, "plugin %q does not implement Retriever", e.retrieverName)
	}
	return r, nil
}

func (e *Executor) reranker() (plugin.Reranker, bool, error) {
	if e.rerankerName == "" {
		return nil, false, nil
	}
	p, err := e.registry.Get(model.KindReranker, e.rerankerName)
	if err != nil {
		return nil, false, err
	}
	r, ok := p.(plugin.Reranker)
	if !ok {
		return nil, false, ragerr.Newf(ragerr.ContractViolation, "plugin %q does not implement Reranker", e.rerankerName)
	}
	return r, true, nil
}

func (e *Executor) llm() (plugin.LLM, error) {
	p, err := e.registry.Get(model.KindLLM, e.llmName)
	if err != nil {
		return nil, err
	}
	l, ok := p.(plugin.LLM)
	if !ok {
		return nil, ragerr.Newf(ragerr.ContractViolation, "plugin %q does not implement LLM", e.llmName)
	}
	return l, nil
}

// stage wraps fn with a tracer span named spanName, a stage-start/end
// event pair, and a histogram observation of its duration in
// milliseconds, mirroring the manifold-style ingestion_stage_ms
// per-stage instrumentation.
func (e *Executor) stage(ctx context.Context, spanName, stageName string, hist *metrics.Histogram, fn func(ctx context.Context) error) error {
	e.logger.LogStageStart(stageName)
	start := e.clock()

	err := e.tracer.StartActiveSpan(ctx, spanName, tracing.StartOptions{}, func(ctx context.Context, span *tracing.Span) error {
		return fn(ctx)
	})

	duration := e.clock().Sub(start)
	e.logger.LogStageEnd(stageName, duration)
	if hist != nil {
		hist.Observe(float64(duration.Milliseconds()))
	}
	return err
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ragerr.Wrap(ragerr.Cancelled, "operation cancelled", err)
	}
	return nil
}
