package events

// Event represents a structured state change emitted by the protocol engines.
type Event interface {
	EventType() string
	Attributes() map[string]string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers,
// monitoring tooling).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default emitter for engines that have not been wired to a sink.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// CollectingEmitter buffers every emitted event in order. Intended for tests
// and for the RPC event feed.
type CollectingEmitter struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (c *CollectingEmitter) Emit(evt Event) {
	if c == nil || evt == nil {
		return
	}
	c.Events = append(c.Events, evt)
}
