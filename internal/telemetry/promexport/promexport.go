// Package promexport adapts duelcore's narrow telemetry.Metrics interface
// onto github.com/prometheus/client_golang so the match process can expose
// a /metrics scrape endpoint alongside its homegrown counters.
package promexport

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter implements telemetry.Metrics by lazily minting a Prometheus
// counter or gauge per metric key the first time it is observed.
type Exporter struct {
	registry *prometheus.Registry
	mu       sync.Mutex
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

// New constructs an Exporter registered against a fresh Prometheus registry.
func New(namespace string) *Exporter {
	return &Exporter{
		registry: prometheus.NewRegistry(),
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
	}
}

// Registry exposes the underlying Prometheus registry for an HTTP handler.
func (e *Exporter) Registry() *prometheus.Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// Add increments the named counter by delta.
func (e *Exporter) Add(key string, delta uint64) {
	if e == nil || delta == 0 {
		return
	}
	e.mu.Lock()
	counter, ok := e.counters[key]
	if !ok {
		counter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: sanitize(key),
			Help: "duelcore counter " + key,
		})
		e.registry.MustRegister(counter)
		e.counters[key] = counter
	}
	e.mu.Unlock()
	counter.Add(float64(delta))
}

// Store sets the named gauge to value.
func (e *Exporter) Store(key string, value uint64) {
	if e == nil {
		return
	}
	e.mu.Lock()
	gauge, ok := e.gauges[key]
	if !ok {
		gauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: sanitize(key),
			Help: "duelcore gauge " + key,
		})
		e.registry.MustRegister(gauge)
		e.gauges[key] = gauge
	}
	e.mu.Unlock()
	gauge.Set(float64(value))
}

// sanitize rewrites a telemetry key into a Prometheus-legal metric name.
func sanitize(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "duelcore_metric"
	}
	return string(out)
}
