// Package emit provides event emission and observability for chat handling.
package emit

// Emitter receives observability events from the chat pipeline.
//
// Implementations should be:
//   - Non-blocking: Avoid slowing down request handling
//   - Thread-safe: Called concurrently from many requests
//   - Resilient: Never panic; handle backend failures internally
type Emitter interface {
	Emit(event Event)
}

// MultiEmitter fans each event out to several emitters in order.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates a MultiEmitter. Nil emitters are skipped.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, e := range emitters {
		if e != nil {
			m.emitters = append(m.emitters, e)
		}
	}
	return m
}

// Emit forwards the event to every configured emitter.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}
