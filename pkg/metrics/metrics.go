// Package metrics provides metrics implementations for mcprun
package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/modelctl/mcprun/pkg/interfaces"
)

// NoOpMetrics is a no-operation metrics implementation
type NoOpMetrics struct{}

// Counter increments a counter metric
func (m *NoOpMetrics) Counter(name string, value float64, labels map[string]string) {}

// Gauge sets a gauge metric
func (m *NoOpMetrics) Gauge(name string, value float64, labels map[string]string) {}

// Histogram records a histogram metric
func (m *NoOpMetrics) Histogram(name string, value float64, labels map[string]string) {}

// Timer records timing metrics
func (m *NoOpMetrics) Timer(name string, duration float64, labels map[string]string) {}

// MemoryMetrics accumulates metrics in memory. It backs the runtime's
// dispatch counters and is queryable from tests.
type MemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]float64
	gauges   map[string]float64
	timings  map[string][]float64
}

// NewMemoryMetrics creates an in-memory metrics collector
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
		timings:  make(map[string][]float64),
	}
}

// Counter increments a counter metric
func (m *MemoryMetrics) Counter(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key(name, labels)] += value
}

// Gauge sets a gauge metric
func (m *MemoryMetrics) Gauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[key(name, labels)] = value
}

// Histogram records a histogram metric
func (m *MemoryMetrics) Histogram(name string, value float64, labels map[string]string) {
	m.Timer(name, value, labels)
}

// Timer records timing metrics
func (m *MemoryMetrics) Timer(name string, duration float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(name, labels)
	m.timings[k] = append(m.timings[k], duration)
}

// CounterValue returns the accumulated counter value for name+labels
func (m *MemoryMetrics) CounterValue(name string, labels map[string]string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[key(name, labels)]
}

// TimerCount returns how many timings were recorded for name+labels
func (m *MemoryMetrics) TimerCount(name string, labels map[string]string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.timings[key(name, labels)])
}

func key(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

var _ interfaces.Metrics = (*NoOpMetrics)(nil)
var _ interfaces.Metrics = (*MemoryMetrics)(nil)

// NewNoOpMetrics creates a new no-op metrics implementation
func NewNoOpMetrics() interfaces.Metrics {
	return &NoOpMetrics{}
}

// NewTestMetrics creates a metrics implementation for testing
func NewTestMetrics() *MemoryMetrics {
	return NewMemoryMetrics()
}
