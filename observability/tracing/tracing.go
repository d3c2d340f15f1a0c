// Package tracing implements the span tree: parent/child linked spans
// with status, attributes, events, and bounded completed-span retention.
//
// Thread safety: the tracer's active and completed span tables are
// protected by a single mutex; reads for export take the same lock for a
// consistent snapshot copy. The tracer runs no background goroutine —
// eviction of completed spans is performed at insertion time via a
// bounded FIFO, so no separate cleanup timer is needed here (contrast
// with ratelimit.Limiter, which does own one).
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Status is a span's terminal or pending state.
type Status string

const (
	StatusUnset Status = "UNSET"
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// SpanEvent is a timestamped annotation attached to a span, such as a
// recorded exception.
type SpanEvent struct {
	Name       string
	Timestamp  time.Time
	Attributes map[string]any
}

// Link references another span, e.g. a causal predecessor outside the
// direct parent/child tree.
type Link struct {
	TraceID string
	SpanID  string
}

// Span is a timed unit of work with status, attributes, and parent/child
// links. EndTime is set exactly once; Duration is max(1, endTime-startTime).
type Span struct {
	Name         string
	TraceID      string
	SpanID       string
	ParentSpanID string
	Kind         string

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Status    Status

	Attributes             map[string]any
	Events                 []SpanEvent
	Links                   []Link
	Resource                map[string]any
	InstrumentationLibrary  string

	mu             sync.Mutex
	ended          bool
	exceptionSeen  bool
}

// SetAttribute records an attribute on the span.
func (s *Span) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Attributes == nil {
		s.Attributes = make(map[string]any)
	}
	s.Attributes[key] = value
}

// AddEvent appends an arbitrary timestamped event to the span.
func (s *Span) AddEvent(name string, attributes map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, SpanEvent{Name: name, Timestamp: time.Now().UTC(), Attributes: attributes})
}

// RecordException appends an exception event with standard attributes.
// At most one exception event is recorded per span; subsequent calls
// are no-ops.
func (s *Span) RecordException(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exceptionSeen || err == nil {
		return
	}
	s.exceptionSeen = true
	attrs := map[string]any{
		"exception.type":    fmt.Sprintf("%T", err),
		"exception.message": err.Error(),
	}
	s.Events = append(s.Events, SpanEvent{Name: "exception", Timestamp: time.Now().UTC(), Attributes: attrs})
}

// SetStatus transitions the span's status.
func (s *Span) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

// end marks the span complete. Idempotent: a second call is a no-op.
func (s *Span) end() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	s.ended = true
	s.EndTime = time.Now().UTC()
	d := s.EndTime.Sub(s.StartTime)
	if d < time.Nanosecond {
		d = time.Nanosecond
	}
	s.Duration = d
	if s.Status == StatusUnset {
		s.Status = StatusOK
	}
	return true
}

// StartOptions configures a new span.
type StartOptions struct {
	TraceID      string
	ParentSpanID string
	Kind         string
	Attributes   map[string]any
}

// Tracer owns the active and completed span tables for one process.
type Tracer struct {
	mu                sync.Mutex
	active            map[string]*Span
	completed         []*Span
	maxCompletedSpans int
	resource          map[string]any
	instrumentation   string
}

// NewTracer constructs a Tracer. maxCompletedSpans <= 0 defaults to 1000.
func NewTracer(maxCompletedSpans int, resource map[string]any, instrumentationLibrary string) *Tracer {
	if maxCompletedSpans <= 0 {
		maxCompletedSpans = 1000
	}
	return &Tracer{
		active:            make(map[string]*Span),
		maxCompletedSpans: maxCompletedSpans,
		resource:          resource,
		instrumentation:   instrumentationLibrary,
	}
}

func newID(nBytes int) string {
	buf := make([]byte, nBytes)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// StartSpan creates a span and inserts it into the active table.
func (t *Tracer) StartSpan(name string, opts StartOptions) *Span {
	traceID := opts.TraceID
	if traceID == "" {
		traceID = newID(16) // 128 bits -> 32 hex chars
	}
	span := &Span{
		Name:                   name,
		TraceID:                traceID,
		SpanID:                 newID(8), // 64 bits -> 16 hex chars
		ParentSpanID:           opts.ParentSpanID,
		Kind:                   opts.Kind,
		StartTime:              time.Now().UTC(),
		Status:                 StatusUnset,
		Attributes:             opts.Attributes,
		Resource:               t.resource,
		InstrumentationLibrary: t.instrumentation,
	}

	t.mu.Lock()
	t.active[span.SpanID] = span
	t.mu.Unlock()
	return span
}

// StartActiveSpan creates a span, runs fn with it, and finalizes status
// based on whether fn returned an error: OK on success, ERROR (with the
// exception recorded) on failure. The span is always ended before
// StartActiveSpan returns, and the original error (if any) is returned
// to the caller unchanged.
func (t *Tracer) StartActiveSpan(ctx context.Context, name string, opts StartOptions, fn func(ctx context.Context, span *Span) error) error {
	span := t.StartSpan(name, opts)
	err := fn(ctx, span)
	if err != nil {
		span.RecordException(err)
		span.SetStatus(StatusError)
	} else {
		span.SetStatus(StatusOK)
	}
	t.EndSpan(span)
	return err
}

// EndSpan moves span from active to completed, setting its end time and
// duration. Idempotent.
func (t *Tracer) EndSpan(span *Span) {
	if !span.end() {
		return
	}

	t.mu.Lock()
	delete(t.active, span.SpanID)
	t.completed = append(t.completed, span)
	if len(t.completed) > t.maxCompletedSpans {
		t.completed = t.completed[len(t.completed)-t.maxCompletedSpans:]
	}
	t.mu.Unlock()
}

// CompletedFilter selects spans from GetCompletedSpans.
type CompletedFilter struct {
	TraceID     string
	Name        string // substring match
	NamePattern *regexp.Regexp
	Status      Status
	Since       *time.Time
	Limit       int
}

// GetCompletedSpans returns completed spans matching filter, in FIFO
// (oldest-first) order.
func (t *Tracer) GetCompletedSpans(filter CompletedFilter) []*Span {
	t.mu.Lock()
	snapshot := make([]*Span, len(t.completed))
	copy(snapshot, t.completed)
	t.mu.Unlock()

	matched := make([]*Span, 0, len(snapshot))
	for _, s := range snapshot {
		if filter.TraceID != "" && s.TraceID != filter.TraceID {
			continue
		}
		if filter.Name != "" && !strings.Contains(s.Name, filter.Name) {
			continue
		}
		if filter.NamePattern != nil && !filter.NamePattern.MatchString(s.Name) {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.Since != nil && s.StartTime.Before(*filter.Since) {
			continue
		}
		matched = append(matched, s)
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[len(matched)-filter.Limit:]
	}
	return matched
}

// Statistics summarizes the tracer's current state.
type Statistics struct {
	TotalSpans       int
	ActiveSpans      int
	CompletedSpans   int
	UniqueTraces     int
	StatusCounts     map[Status]int
	SpansByType      map[string]int
	AverageDuration  time.Duration
}

// pluginLeadingSegments collapses these leading dotted-name segments
// into the logical "plugin" category for spansByType grouping.
var pluginLeadingSegments = map[string]bool{
	"embedder":  true,
	"llm":       true,
	"retriever": true,
	"loader":    true,
	"reranker":  true,
}

func leadingSegment(name string) string {
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		return name[:idx]
	}
	return name
}

// GetStatistics computes aggregate statistics over active and completed
// spans.
func (t *Tracer) GetStatistics() Statistics {
	t.mu.Lock()
	activeCount := len(t.active)
	completed := make([]*Span, len(t.completed))
	copy(completed, t.completed)
	active := make([]*Span, 0, len(t.active))
	for _, s := range t.active {
		active = append(active, s)
	}
	t.mu.Unlock()

	stats := Statistics{
		ActiveSpans:    activeCount,
		CompletedSpans: len(completed),
		StatusCounts:   make(map[Status]int),
		SpansByType:    make(map[string]int),
	}
	traces := make(map[string]bool)
	var totalDuration time.Duration

	all := append(append([]*Span{}, active...), completed...)
	stats.TotalSpans = len(all)
	for _, s := range all {
		traces[s.TraceID] = true
		stats.StatusCounts[s.Status]++
		seg := leadingSegment(s.Name)
		if pluginLeadingSegments[seg] {
			seg = "plugin"
		}
		stats.SpansByType[seg]++
	}
	for _, s := range completed {
		totalDuration += s.Duration
	}
	stats.UniqueTraces = len(traces)
	if len(completed) > 0 {
		stats.AverageDuration = totalDuration / time.Duration(len(completed))
	}
	return stats
}
