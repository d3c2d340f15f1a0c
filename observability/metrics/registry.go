package metrics

import (
	"fmt"
	"sync"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric by name. Names must be unique within a
// registry.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram

	// promRegistry, if set, mirrors every counter and gauge registered
	// here into a Prometheus collector for scraping via
	// observability/httpapi. Histograms are not mirrored.
	promRegistry *promclient.Registry
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

// WithPrometheusMirror attaches a Prometheus registry that every counter
// and gauge subsequently registered here is also exported through.
// Histograms are not mirrored.
func (r *Registry) WithPrometheusMirror(promReg *promclient.Registry) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promRegistry = promReg
	return r
}

func (r *Registry) nameTaken(name string) bool {
	_, c := r.counters[name]
	_, g := r.gauges[name]
	_, h := r.histograms[name]
	return c || g || h
}

// Counter registers (or returns the existing) counter by name.
func (r *Registry) Counter(name, description string, labels map[string]string) (*Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing, nil
	}
	if r.nameTaken(name) {
		return nil, fmt.Errorf("metrics: name %q already registered with a different type", name)
	}
	c := NewCounter(name, description, labels)
	r.counters[name] = c
	r.mirrorCounter(c)
	return c, nil
}

// Gauge registers (or returns the existing) gauge by name.
func (r *Registry) Gauge(name, description string, labels map[string]string) (*Gauge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.gauges[name]; ok {
		return existing, nil
	}
	if r.nameTaken(name) {
		return nil, fmt.Errorf("metrics: name %q already registered with a different type", name)
	}
	g := NewGauge(name, description, labels)
	r.gauges[name] = g
	r.mirrorGauge(g)
	return g, nil
}

// Histogram registers (or returns the existing) histogram by name.
func (r *Registry) Histogram(name, description string, labels map[string]string, buckets []float64) (*Histogram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing, nil
	}
	if r.nameTaken(name) {
		return nil, fmt.Errorf("metrics: name %q already registered with a different type", name)
	}
	h := NewHistogram(name, description, labels, buckets)
	r.histograms[name] = h
	return h, nil
}

// mirrorCounter registers a Prometheus GaugeFunc backed by c's value,
// since ragforge counters only grow and a GaugeFunc can read them
// live without requiring double-writes on every Inc call.
func (r *Registry) mirrorCounter(c *Counter) {
	if r.promRegistry == nil {
		return
	}
	pc := promclient.NewGaugeFunc(promclient.GaugeOpts{
		Name: sanitizePromName(c.Name),
		Help: c.Description,
	}, c.Value)
	_ = r.promRegistry.Register(pc)
}

func (r *Registry) mirrorGauge(g *Gauge) {
	if r.promRegistry == nil {
		return
	}
	pg := promclient.NewGaugeFunc(promclient.GaugeOpts{
		Name: sanitizePromName(g.Name),
		Help: g.Description,
	}, g.Value)
	_ = r.promRegistry.Register(pg)
}

func sanitizePromName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// Export renders every metric in the registry to a generic snapshot
// suitable for JSON serialization or the diagnostics HTTP surface.
func (r *Registry) Export() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counters := make(map[string]float64, len(r.counters))
	for name, c := range r.counters {
		counters[name] = c.Value()
	}
	gauges := make(map[string]float64, len(r.gauges))
	for name, g := range r.gauges {
		gauges[name] = g.Value()
	}
	histograms := make(map[string]any, len(r.histograms))
	for name, h := range r.histograms {
		histograms[name] = h.Export()
	}
	return map[string]any{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}
