package events

import "dlend/core/types"

// Emitter broadcasts completed-operation events to downstream subscribers
// (RPC, indexers).
type Emitter interface {
	Emit(*types.Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*types.Event) {}

// MultiEmitter fans one event out to several downstream emitters in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt *types.Event) {
	for _, next := range m {
		if next != nil {
			next.Emit(evt)
		}
	}
}
