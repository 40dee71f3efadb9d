// Package client implements the client-side graphql-transport-ws protocol
// engine (spec §4.4): connection lifecycle, lazy/eager connect, keep-alive,
// reconnection with retry policy, and subscriber sink multiplexing.
// Grounded throughout on InoiOy-go-graphql-client/subscription.go's
// SubscriptionClient, generalized from its json-based OperationMessage and
// single run loop into this package's message codec and an explicit
// Idle/Connecting/Acknowledged/Reconnecting/Disposed state machine.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/riftgql/gqlws/message"
)

type phase int

const (
	phaseIdle phase = iota
	phaseConnecting
	phaseAcknowledged
	phaseReconnecting
	phaseDisposed
)

// Sink is the receiver-side triple a subscriber provides to receive
// results (spec's GLOSSARY "Sink"). Exactly one of Error or Complete is
// called, at most once, and never after a dispose.
type Sink struct {
	Next     func(message.ExecutionResult)
	Error    func(error)
	Complete func()
}

type subscriber struct {
	id         string
	payload    message.SubscribePayload
	sink       Sink
	registered bool // Subscribe already sent on the current socket
	terminal   bool // a terminal sink call has already been made
}

// Client is a graphql-transport-ws client: it owns at most one socket at a
// time, multiplexing every active subscriber's frames over it and
// reconnecting per the configured retry policy.
type Client struct {
	opts    *options
	emitter *emitter

	genCtx    context.Context
	genCancel context.CancelFunc

	mu             sync.Mutex
	phase          phase
	socket         Socket
	subs           map[string]*subscriber
	order          []string
	retryCount     int
	keepAliveTimer *time.Timer

	writeMu sync.Mutex
}

// New constructs a Client per the given options. If Lazy(false) was
// passed, it begins connecting immediately; otherwise it connects lazily
// on the first Subscribe call (spec §4.4).
func New(opts ...func(*options)) *Client {
	o := newOptions(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:      o,
		emitter:   newEmitter(o.listeners),
		genCtx:    ctx,
		genCancel: cancel,
		subs:      make(map[string]*subscriber),
	}
	if !o.lazy {
		c.ensureConnected()
	}
	return c
}

func defaultGenerateID() string { return uuid.New().String() }

// On registers fn as a runtime listener for event and returns a function
// that removes it (spec §4.6).
func (c *Client) On(event Event, fn func(interface{})) (off func()) {
	return c.emitter.On(event, fn)
}

// Subscribe registers payload with sink and returns a dispose function
// (spec §4.4's "subscribe(payload, sink) -> dispose" contract). If the
// client is Idle and lazy, this triggers a connect; if already
// Acknowledged, the Subscribe frame is sent immediately.
func (c *Client) Subscribe(payload message.SubscribePayload, sink Sink) (dispose func()) {
	id := c.opts.generateID()
	sub := &subscriber{id: id, payload: payload, sink: sink}

	c.mu.Lock()
	c.subs[id] = sub
	c.order = append(c.order, id)
	if c.keepAliveTimer != nil {
		c.keepAliveTimer.Stop()
		c.keepAliveTimer = nil
	}
	ph := c.phase
	sock := c.socket
	c.mu.Unlock()

	switch ph {
	case phaseIdle:
		c.ensureConnected()
	case phaseAcknowledged:
		c.sendSubscribe(sock, sub)
	}
	return func() { c.dispose(id) }
}

// Close permanently disposes the client: the socket (if any) is closed,
// every remaining subscriber's sink receives one terminal error call, and
// no further reconnection is attempted.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.phase == phaseDisposed {
		c.mu.Unlock()
		return nil
	}
	sock := c.socket
	c.phase = phaseDisposed
	c.socket = nil
	c.mu.Unlock()

	c.genCancel()
	if sock != nil {
		_ = sock.Close(message.CloseNormal, "client closed")
	}
	evt := &ClosedEvent{Code: message.CloseNormal, Reason: "client closed", WasClean: true}
	c.failAll(evt)
	c.emitter.emit(EventClosed, evt)
	return nil
}

func (c *Client) dispose(id string) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, id)
	c.removeFromOrderLocked(id)
	sub.terminal = true
	wasRegistered := sub.registered
	sock := c.socket
	ph := c.phase
	c.mu.Unlock()

	if wasRegistered && sock != nil && ph == phaseAcknowledged {
		// Best-effort per spec §5: dropped if the socket is not open.
		raw, err := message.Encode(message.Complete, id, nil)
		if err == nil {
			c.writeFrame(sock, raw)
		}
	}
	c.maybeArmKeepAlive()
}

func (c *Client) removeFromOrderLocked(id string) {
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Client) ensureConnected() {
	c.mu.Lock()
	if c.phase != phaseIdle {
		c.mu.Unlock()
		return
	}
	c.phase = phaseConnecting
	c.mu.Unlock()
	go c.run()
}

// run drives reconnection: it repeats session() until a terminal close, a
// retry budget is exhausted, the client is explicitly closed, or there are
// no subscribers left to reconnect for.
func (c *Client) run() {
	for {
		closeEvt, abort := c.session()
		if abort {
			return
		}
		if closeEvt == nil {
			// session only returns a nil event together with abort;
			// nothing is left to handle.
			return
		}

		if message.Terminal(closeEvt.Code) {
			c.failAll(closeEvt)
			c.setPhase(phaseDisposed)
			c.emitter.emit(EventClosed, closeEvt)
			return
		}

		c.mu.Lock()
		if len(c.subs) == 0 {
			c.phase = phaseIdle
			c.socket = nil
			c.mu.Unlock()
			c.emitter.emit(EventClosed, closeEvt)
			return
		}
		c.retryCount++
		attempt := c.retryCount
		c.mu.Unlock()

		if attempt > c.opts.retryAttempts {
			c.failAll(closeEvt)
			c.setPhase(phaseDisposed)
			c.emitter.emit(EventClosed, closeEvt)
			return
		}

		c.setPhase(phaseReconnecting)
		c.emitter.emit(EventClosed, closeEvt)
		wait := c.opts.retryWait(attempt)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-c.genCtx.Done():
			timer.Stop()
			return
		}
	}
}

// session performs one dial-handshake-read cycle. It returns the close
// event that ended it (including the client's own keep-alive close), and
// whether the client was explicitly disposed mid-session, in which case
// the event is nil.
func (c *Client) session() (*ClosedEvent, bool) {
	ctx := c.genCtx
	c.setPhase(phaseConnecting)
	c.emitter.emit(EventConnecting, nil)

	url, err := c.opts.urlFn(ctx)
	if err != nil {
		return &ClosedEvent{Code: message.CloseBadRequest, Reason: err.Error(), WasClean: true}, false
	}
	sock, err := c.opts.dialer(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, true
		}
		return &ClosedEvent{Code: message.CloseAbnormal, Reason: err.Error(), WasClean: false}, false
	}

	var params map[string]interface{}
	if c.opts.paramsFn != nil {
		params, err = c.opts.paramsFn(ctx)
		if err != nil {
			_ = sock.Close(message.CloseBadRequest, err.Error())
			return &ClosedEvent{Code: message.CloseBadRequest, Reason: err.Error(), WasClean: true}, false
		}
	}

	initFrame, err := message.Encode(message.ConnectionInit, "", params)
	if err != nil {
		_ = sock.Close(message.CloseBadRequest, err.Error())
		return &ClosedEvent{Code: message.CloseBadRequest, Reason: err.Error(), WasClean: true}, false
	}
	if err := c.writeFrame(sock, initFrame); err != nil {
		if ctx.Err() != nil {
			return nil, true
		}
		return c.closeEventFromErr(err), false
	}

	raw, err := sock.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, true
		}
		return c.closeEventFromErr(err), false
	}
	env, err := message.Decode(raw)
	if err != nil || env.Type != message.ConnectionAck {
		reason := "expected connection_ack as first server frame"
		code := message.CloseBadRequest
		if perr, ok := err.(*message.ProtocolError); ok {
			code, reason = perr.Code, perr.Reason
		}
		_ = sock.Close(code, reason)
		return &ClosedEvent{Code: code, Reason: reason, WasClean: true}, false
	}
	c.emitter.emit(EventMessage, env)

	c.mu.Lock()
	c.socket = sock
	c.phase = phaseAcknowledged
	c.retryCount = 0
	toSend := make([]*subscriber, 0, len(c.subs))
	for _, id := range c.order {
		if sub, ok := c.subs[id]; ok {
			sub.registered = false
			toSend = append(toSend, sub)
		}
	}
	c.mu.Unlock()

	c.emitter.emit(EventConnected, &ConnectedEvent{Socket: sock, AckPayload: env.Payload})
	for _, sub := range toSend {
		c.sendSubscribe(sock, sub)
	}

	for {
		raw, err := sock.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, true
			}
			return c.closeEventFromErr(err), false
		}
		env, err := message.Decode(raw)
		if err != nil {
			code, reason := message.CloseBadRequest, err.Error()
			if perr, ok := err.(*message.ProtocolError); ok {
				code, reason = perr.Code, perr.Reason
			}
			_ = sock.Close(code, reason)
			return &ClosedEvent{Code: code, Reason: reason, WasClean: true}, false
		}
		c.emitter.emit(EventMessage, env)

		switch env.Type {
		case message.Next:
			c.dispatchNext(env)
		case message.Error:
			c.dispatchError(env)
		case message.Complete:
			c.dispatchComplete(env)
		default:
			// A duplicate ConnectionAck, or a server sending a
			// client-only frame type: not actionable, ignore.
		}
	}
}

func (c *Client) dispatchNext(env *message.Envelope) {
	c.mu.Lock()
	sub, ok := c.subs[env.ID]
	if ok && sub.terminal {
		ok = false
	}
	c.mu.Unlock()
	if !ok || sub.sink.Next == nil {
		return
	}
	var result message.ExecutionResult
	if err := json.Unmarshal(env.Payload, &result); err != nil {
		return
	}
	sub.sink.Next(result)
}

func (c *Client) dispatchError(env *message.Envelope) {
	sub, fresh := c.removeAndMarkTerminal(env.ID)
	if !fresh {
		c.maybeArmKeepAlive()
		return
	}
	if sub.sink.Error != nil {
		var errs gqlerror.List
		_ = json.Unmarshal(env.Payload, &errs)
		sub.sink.Error(&OperationError{Errors: errs})
	}
	c.maybeArmKeepAlive()
}

func (c *Client) dispatchComplete(env *message.Envelope) {
	sub, fresh := c.removeAndMarkTerminal(env.ID)
	if !fresh {
		c.maybeArmKeepAlive()
		return
	}
	if sub.sink.Complete != nil {
		sub.sink.Complete()
	}
	c.maybeArmKeepAlive()
}

// removeAndMarkTerminal removes id from the registry and, while still
// holding c.mu, marks it terminal. fresh reports whether this call is the
// one making the transition (false if id was unknown or already terminal),
// so sub.terminal is never read or written outside c.mu.
func (c *Client) removeAndMarkTerminal(id string) (sub *subscriber, fresh bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[id]
	if !ok {
		return nil, false
	}
	delete(c.subs, id)
	c.removeFromOrderLocked(id)
	if sub.terminal {
		return sub, false
	}
	sub.terminal = true
	return sub, true
}

func (c *Client) sendSubscribe(sock Socket, sub *subscriber) {
	raw, err := message.Encode(message.Subscribe, sub.id, sub.payload)
	if err != nil {
		return
	}
	if c.writeFrame(sock, raw) == nil {
		c.mu.Lock()
		sub.registered = true
		c.mu.Unlock()
	}
}

func (c *Client) writeFrame(sock Socket, raw []byte) error {
	wctx, cancel := writeDeadline(c.genCtx, c.opts.writeTimeout)
	defer cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sock.Write(wctx, raw)
}

// maybeArmKeepAlive starts (or restarts) the keep-alive timer once the
// last subscriber has gone, for a lazy client (spec §4.4, testable
// property 8). A non-positive KeepAlive closes immediately.
func (c *Client) maybeArmKeepAlive() {
	c.mu.Lock()
	if len(c.subs) != 0 || !c.opts.lazy || c.phase != phaseAcknowledged {
		c.mu.Unlock()
		return
	}
	if c.opts.keepAlive <= 0 {
		sock := c.socket
		c.phase = phaseIdle
		c.socket = nil
		c.mu.Unlock()
		if sock != nil {
			_ = sock.Close(message.CloseNormal, "")
		}
		return
	}
	if c.keepAliveTimer != nil {
		c.keepAliveTimer.Stop()
	}
	c.keepAliveTimer = time.AfterFunc(c.opts.keepAlive, c.keepAliveExpired)
	c.mu.Unlock()
}

func (c *Client) keepAliveExpired() {
	c.mu.Lock()
	if len(c.subs) != 0 || c.phase != phaseAcknowledged {
		c.mu.Unlock()
		return
	}
	sock := c.socket
	c.phase = phaseIdle
	c.socket = nil
	c.mu.Unlock()
	if sock != nil {
		_ = sock.Close(message.CloseNormal, "keepalive expired")
	}
}

func (c *Client) failAll(evt *ClosedEvent) {
	c.mu.Lock()
	fresh := make([]*subscriber, 0, len(c.subs))
	for _, id := range c.order {
		if sub, ok := c.subs[id]; ok && !sub.terminal {
			sub.terminal = true
			fresh = append(fresh, sub)
		}
	}
	c.subs = make(map[string]*subscriber)
	c.order = nil
	c.mu.Unlock()

	for _, sub := range fresh {
		if sub.sink.Error != nil {
			sub.sink.Error(evt)
		}
	}
}

func (c *Client) setPhase(p phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// closeCoder is implemented by errors that know their own close code; a
// fake Socket used in tests can satisfy this directly without depending
// on nhooyr.io/websocket's own close-frame parsing.
type closeCoder interface {
	CloseCode() int
}

func (c *Client) closeEventFromErr(err error) *ClosedEvent {
	if cc, ok := err.(closeCoder); ok {
		return &ClosedEvent{Code: cc.CloseCode(), Reason: err.Error(), WasClean: true}
	}
	code := CloseStatus(err)
	if code == -1 {
		return &ClosedEvent{Code: message.CloseAbnormal, Reason: err.Error(), WasClean: false}
	}
	return &ClosedEvent{Code: code, Reason: err.Error(), WasClean: true}
}

// OperationError wraps the GraphQL-level errors of an Error frame,
// delivered to a subscriber's sink when its operation fails to start
// (spec §7).
type OperationError struct {
	Errors gqlerror.List
}

func (e *OperationError) Error() string {
	if len(e.Errors) > 0 {
		return e.Errors[0].Message
	}
	return "graphql operation error"
}
