// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector backed by a private Prometheus registry.
// Counters and gauges are created on first use; ad-hoc values set through
// Set are kept alongside and merged into the snapshot.

package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MetricsRegistry holds Prometheus collectors and free-form values.
type MetricsRegistry struct {
	reg *prometheus.Registry

	mu       sync.RWMutex
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	values   map[string]any
	updated  time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		reg:      prometheus.NewRegistry(),
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
		values:   make(map[string]any),
	}
}

// Registry exposes the underlying registry, e.g. for promhttp.HandlerFor.
func (mr *MetricsRegistry) Registry() *prometheus.Registry { return mr.reg }

// Counter returns the counter called name, registering it on first use.
// Names must be valid Prometheus metric names.
func (mr *MetricsRegistry) Counter(name, help string) prometheus.Counter {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if c, ok := mr.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	mr.reg.MustRegister(c)
	mr.counters[name] = c
	return c
}

// Gauge returns the gauge called name, registering it on first use.
func (mr *MetricsRegistry) Gauge(name, help string) prometheus.Gauge {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if g, ok := mr.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	mr.reg.MustRegister(g)
	mr.gauges[name] = g
	return g
}

// Set sets or updates a free-form metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.values[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Updated returns when Set last ran.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}

// GetSnapshot returns free-form values plus the current value of every
// registered counter and gauge, keyed by metric name.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	out := make(map[string]any, len(mr.values)+len(mr.counters)+len(mr.gauges))
	for k, v := range mr.values {
		out[k] = v
	}
	mr.mu.RUnlock()

	families, err := mr.reg.Gather()
	if err != nil {
		out["metrics.gather_error"] = err.Error()
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if v, ok := sampleValue(mf.GetType(), m); ok {
				out[mf.GetName()] = v
			}
		}
	}
	return out
}

func sampleValue(t dto.MetricType, m *dto.Metric) (float64, bool) {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue(), true
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue(), true
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue(), true
	}
	return 0, false
}

// String is a compact dump for logs.
func (mr *MetricsRegistry) String() string {
	return fmt.Sprint(mr.GetSnapshot())
}
