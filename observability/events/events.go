// Package events implements the structured, session-correlated event
// logger: every pipeline stage and plugin invocation appends an Event
// here, and the log supports filtered queries and JSON export.
package events

import (
	"encoding/json"
	"os"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity is the event's log level.
type Severity string

const (
	Debug Severity = "debug"
	Info  Severity = "info"
	Warn  Severity = "warn"
	Error Severity = "error"
)

// SizeDescriptor summarizes an input or result value without recording
// its full content, per the event logger's size semantics: ordered
// sequences report length, text reports length, mappings report keys,
// nil reports an empty object.
type SizeDescriptor struct {
	Type   string   `json:"type"`
	Length int      `json:"length,omitempty"`
	Keys   []string `json:"keys,omitempty"`
}

// DescribeSize builds the SizeDescriptor for an arbitrary value.
func DescribeSize(v any) SizeDescriptor {
	switch val := v.(type) {
	case nil:
		return SizeDescriptor{Type: "object"}
	case string:
		return SizeDescriptor{Type: "string", Length: len(val)}
	case []any:
		return SizeDescriptor{Type: "array", Length: len(val)}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return SizeDescriptor{Type: "object", Keys: keys}
	default:
		rv := reflect.ValueOf(val)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			return SizeDescriptor{Type: "array", Length: rv.Len()}
		case reflect.Map:
			if rv.Type().Key().Kind() == reflect.String {
				keys := make([]string, 0, rv.Len())
				for _, k := range rv.MapKeys() {
					keys = append(keys, k.String())
				}
				sort.Strings(keys)
				return SizeDescriptor{Type: "object", Keys: keys}
			}
		}
		return SizeDescriptor{Type: "object"}
	}
}

// Event is a single structured, append-only log entry.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Severity  Severity       `json:"severity"`
	SessionID string         `json:"sessionId"`
	EventType string         `json:"eventType"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
}

// Sink receives a copy of every appended event. Sinks must not block the
// logger; implementations should buffer or drop rather than stall.
type Sink interface {
	Publish(Event)
}

// Logger is the structured event log for one process session.
type Logger struct {
	mu        sync.RWMutex
	sessionID string
	events    []Event
	sinks     []Sink
}

// NewLogger starts a new session and returns its logger. sinks, if any,
// receive a copy of every event appended through this logger (e.g. an
// optional NATS fan-out), matching the observer-list pattern the design
// notes prescribe in place of an unbounded emitter.
func NewLogger(sinks ...Sink) *Logger {
	return &Logger{
		sessionID: uuid.NewString(),
		sinks:     sinks,
	}
}

// SessionID returns the id assigned at NewLogger time.
func (l *Logger) SessionID() string { return l.sessionID }

func (l *Logger) append(severity Severity, eventType, message string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["pid"] = os.Getpid()
	metadata["platform"] = runtime.GOOS
	metadata["runtimeVersion"] = runtime.Version()

	ev := Event{
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		SessionID: l.sessionID,
		EventType: eventType,
		Message:   message,
		Metadata:  metadata,
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	sinks := l.sinks
	l.mu.Unlock()

	for _, s := range sinks {
		s.Publish(ev)
	}
}

// LogPluginStart records the start of a plugin invocation.
func (l *Logger) LogPluginStart(pluginType, name string, input any) {
	l.append(Info, "plugin.start", "plugin invocation started", map[string]any{
		"pluginType": pluginType,
		"name":       name,
		"input":      DescribeSize(input),
	})
}

// LogPluginEnd records the successful completion of a plugin invocation.
func (l *Logger) LogPluginEnd(pluginType, name string, result any, duration time.Duration) {
	l.append(Info, "plugin.end", "plugin invocation completed", map[string]any{
		"pluginType": pluginType,
		"name":       name,
		"result":     DescribeSize(result),
		"durationMs": duration.Milliseconds(),
	})
}

// LogPluginError records a plugin invocation failure.
func (l *Logger) LogPluginError(pluginType, name string, err error, duration time.Duration) {
	l.append(Error, "plugin.error", err.Error(), map[string]any{
		"pluginType": pluginType,
		"name":       name,
		"durationMs": duration.Milliseconds(),
	})
}

// LogStageStart records the start of a pipeline stage.
func (l *Logger) LogStageStart(stage string) {
	l.append(Info, "stage.start", "stage started", map[string]any{"stage": stage})
}

// LogStageEnd records the end of a pipeline stage.
func (l *Logger) LogStageEnd(stage string, duration time.Duration) {
	l.append(Info, "stage.end", "stage completed", map[string]any{
		"stage":      stage,
		"durationMs": duration.Milliseconds(),
	})
}

// LogWarning records a free-form warning-severity event, used by
// collaborators outside the pipeline stage lifecycle (e.g. the SLO
// monitor) that need structured logging without a dedicated method here.
func (l *Logger) LogWarning(eventType, message string, metadata map[string]any) {
	l.append(Warn, eventType, message, metadata)
}

// LogMemoryWarning records a memory-pressure warning.
func (l *Logger) LogMemoryWarning(heapUsed, heapTotal uint64) {
	l.append(Warn, "memory.warning", "memory usage elevated", map[string]any{
		"heapUsed":  heapUsed,
		"heapTotal": heapTotal,
	})
}

// Filter selects events for a query against the history.
type Filter struct {
	EventType  string
	Severity   Severity
	PluginType string
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

func (f Filter) matches(e Event) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.PluginType != "" {
		pt, _ := e.Metadata["pluginType"].(string)
		if pt != f.PluginType {
			return false
		}
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	return true
}

// GetEventHistory returns chronologically ordered events matching
// filter; Limit, if set, takes the last N matches.
func (l *Logger) GetEventHistory(filter Filter) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matched := make([]Event, 0, len(l.events))
	for _, e := range l.events {
		if filter.matches(e) {
			matched = append(matched, e)
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[len(matched)-filter.Limit:]
	}
	return matched
}

// exportEnvelope is the JSON shape produced by ExportEvents.
type exportEnvelope struct {
	SessionID  string  `json:"sessionId"`
	EventCount int     `json:"eventCount"`
	Events     []Event `json:"events"`
}

// ExportEvents serializes the filtered history as JSON.
func (l *Logger) ExportEvents(filter Filter) ([]byte, error) {
	events := l.GetEventHistory(filter)
	return json.Marshal(exportEnvelope{
		SessionID:  l.sessionID,
		EventCount: len(events),
		Events:     events,
	})
}

// ImportEvents decodes the output of ExportEvents back into an event
// list, used to verify the export/re-ingest round-trip law.
func ImportEvents(data []byte) ([]Event, error) {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env.Events, nil
}

// AddSink registers an additional fan-out destination.
func (l *Logger) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}
