// Package slo implements the SLO monitor: named service-level objectives
// tracked against a rolling measurement window, with error-budget
// accounting and threshold alerting.
package slo

import (
	"sync"
	"time"

	"github.com/ragforge/ragforge/observability/events"
)

// Definition is a named SLO's static configuration.
type Definition struct {
	Name              string
	Target            float64 // success ratio in (0,1]
	MeasurementWindow time.Duration
	ErrorBudget       float64
	AlertThreshold    float64
}

type measurement struct {
	at      time.Time
	success bool
}

// Monitor tracks measurements for every registered SLO and computes SLI
// and error-budget figures over each one's window.
type Monitor struct {
	mu           sync.Mutex
	defs         map[string]Definition
	measurements map[string][]measurement
	logger       *events.Logger
}

// NewMonitor constructs a Monitor. logger, if non-nil, receives a
// warning-severity event whenever a recorded measurement drives an SLO's
// SLI below its alert threshold.
func NewMonitor(logger *events.Logger) *Monitor {
	return &Monitor{
		defs:         make(map[string]Definition),
		measurements: make(map[string][]measurement),
		logger:       logger,
	}
}

// Register adds or replaces an SLO definition.
func (m *Monitor) Register(def Definition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.Name] = def
}

// RecordMeasurement appends a timestamped success/failure result for
// sloName and, if the resulting SLI drops below the alert threshold,
// emits a warning event.
func (m *Monitor) RecordMeasurement(sloName string, success bool, metadata map[string]any) {
	m.mu.Lock()
	m.measurements[sloName] = append(m.measurements[sloName], measurement{at: time.Now().UTC(), success: success})
	def, ok := m.defs[sloName]
	m.mu.Unlock()

	if !ok || m.logger == nil {
		return
	}
	sli := m.CalculateSLI(sloName)
	if sli < def.AlertThreshold {
		md := map[string]any{"slo": sloName, "sli": sli}
		for k, v := range metadata {
			md[k] = v
		}
		m.logger.LogWarning("slo.alert", "SLO "+sloName+" below alert threshold", md)
	}
}

// inWindow returns the measurements for sloName within its configured
// window, evicting nothing (the slice is filtered on read, not pruned in
// place, so concurrent readers never see a partially-trimmed slice).
func (m *Monitor) inWindow(sloName string) []measurement {
	def, ok := m.defs[sloName]
	all := m.measurements[sloName]
	if !ok {
		return all
	}
	cutoff := time.Now().Add(-def.MeasurementWindow)
	var out []measurement
	for _, meas := range all {
		if meas.at.After(cutoff) {
			out = append(out, meas)
		}
	}
	return out
}

// CalculateSLI returns the success ratio over sloName's measurement
// window, or 1.0 if there are no in-window measurements.
func (m *Monitor) CalculateSLI(sloName string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := m.inWindow(sloName)
	if len(window) == 0 {
		return 1.0
	}
	successes := 0
	for _, meas := range window {
		if meas.success {
			successes++
		}
	}
	return float64(successes) / float64(len(window))
}

// ErrorBudget is the return shape of GetErrorBudget.
type ErrorBudget struct {
	Target                float64
	Current               float64
	ErrorBudgetUsed       float64
	ErrorBudgetRemaining  float64
	ErrorBudgetPercentage float64
}

// GetErrorBudget computes the current error-budget standing for sloName.
func (m *Monitor) GetErrorBudget(sloName string) ErrorBudget {
	m.mu.Lock()
	def, ok := m.defs[sloName]
	m.mu.Unlock()
	if !ok {
		return ErrorBudget{}
	}

	current := m.CalculateSLI(sloName)
	used := def.Target - current
	if used < 0 {
		used = 0
	}
	remaining := def.ErrorBudget - used
	pct := 0.0
	if def.ErrorBudget > 0 {
		pct = remaining / def.ErrorBudget * 100
	}
	return ErrorBudget{
		Target:                def.Target,
		Current:               current,
		ErrorBudgetUsed:       used,
		ErrorBudgetRemaining:  remaining,
		ErrorBudgetPercentage: pct,
	}
}
