package client

// events.go implements the C6 event surface (spec §4.6), generalized from
// InoiOy-go-graphql-client/subscription.go's single-callback
// OnConnected/OnDisconnected/OnError into a multi-listener on(event, fn)
// registry, since the spec calls for both a static-config form (the
// On(...) functional option) and a runtime on(event, fn) -> off form.

import "sync"

// Event identifies one of the four client lifecycle events of spec §4.6.
type Event string

const (
	// EventConnecting fires when the client begins dialing a socket.
	EventConnecting Event = "connecting"
	// EventConnected fires once ConnectionAck is received. Listeners
	// receive a *ConnectedEvent.
	EventConnected Event = "connected"
	// EventClosed fires when the socket closes, for any reason.
	// Listeners receive a *ClosedEvent.
	EventClosed Event = "closed"
	// EventMessage fires for every inbound frame, before dispatch.
	// Listeners receive the raw *message.Envelope.
	EventMessage Event = "message"
)

// ConnectedEvent is delivered to EventConnected listeners.
type ConnectedEvent struct {
	Socket     Socket
	AckPayload []byte // raw ConnectionAck payload, nil if absent
}

// ClosedEvent is delivered to EventClosed listeners, and is also the value
// surfaced to a subscriber's error sink when termination is closure-driven
// (spec §6).
type ClosedEvent struct {
	Code     int
	Reason   string
	WasClean bool
}

func (e *ClosedEvent) Error() string { return e.Reason }

// emitter is an embeddable multi-listener pub/sub registry, the runtime
// half of the event surface (the static half is the On(...) option, which
// simply pre-populates this same map).
type emitter struct {
	mu        sync.Mutex
	listeners map[Event][]func(interface{})
}

func newEmitter(initial map[Event][]func(interface{})) *emitter {
	e := &emitter{listeners: make(map[Event][]func(interface{}))}
	for ev, fns := range initial {
		e.listeners[ev] = append([]func(interface{}){}, fns...)
	}
	return e
}

// On registers fn for event at runtime and returns a function that
// removes it (spec §4.6's "on(event, fn) -> off").
func (e *emitter) On(event Event, fn func(interface{})) (off func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], fn)
	id := len(e.listeners[event]) - 1
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		fns := e.listeners[event]
		if id < len(fns) {
			fns[id] = nil // preserve indices of other off funcs
		}
	}
}

// emit fires every still-registered listener for event synchronously, in
// registration order, per spec §4.6's ordering guarantee.
func (e *emitter) emit(event Event, payload interface{}) {
	e.mu.Lock()
	fns := append([]func(interface{}){}, e.listeners[event]...)
	e.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(payload)
		}
	}
}
