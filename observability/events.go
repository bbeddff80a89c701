package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"kvault/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured protocol events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kvault",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of emitted protocol events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

func (m *eventMetrics) Observe(eventType string) {
	if m == nil || eventType == "" {
		return
	}
	m.emitted.WithLabelValues(eventType).Inc()
}

// MeteredEmitter wraps another emitter and counts every event it forwards.
type MeteredEmitter struct {
	next events.Emitter
}

// NewMeteredEmitter returns an emitter that records emission counts before
// delegating to next.
func NewMeteredEmitter(next events.Emitter) *MeteredEmitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &MeteredEmitter{next: next}
}

// Emit implements events.Emitter.
func (e *MeteredEmitter) Emit(evt events.Event) {
	if evt != nil {
		Events().Observe(evt.EventType())
	}
	e.next.Emit(evt)
}
