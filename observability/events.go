package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"dlend/core/types"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

func eventCounters() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dlend",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of engine events segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// EventCounter is an event sink that counts emissions by type. Wire it into
// the engine's emitter fan-out alongside functional subscribers.
type EventCounter struct{}

// Emit implements the events.Emitter interface.
func (EventCounter) Emit(evt *types.Event) {
	if evt == nil {
		return
	}
	eventCounters().emitted.WithLabelValues(evt.Type).Inc()
}
