// Package server implements the server-side graphql-transport-ws protocol
// engine (spec §4.3): per-socket handshake, subscription dispatch to a
// pluggable engine.Engine, and result streaming, grounded throughout on
// internal/handler/wshandler.go's wsConnection, generalized from a
// hardcoded reflection-based resolver engine to engine.Engine and narrowed
// from the teacher's old/new protocol dual-mode down to graphql-transport-ws
// only (see DESIGN.md).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/riftgql/gqlws/engine"
	"github.com/riftgql/gqlws/message"
	"github.com/riftgql/gqlws/registry"
)

type phase int

const (
	phaseAwaitingInit phase = iota
	phaseAcknowledged
	phaseClosing
)

// connection handles one bound socket for its whole lifetime. Cyclic
// references (socket, engine, registry) are resolved by having everything
// owned by this single struct and closed over by back-reference only, per
// DESIGN_NOTES in spec §9.
type connection struct {
	socket Socket
	engine engine.Engine
	hooks  Hooks
	opts   *options

	writeMu sync.Mutex
	ops     *registry.Registry[context.CancelFunc]

	phase phase
	ctx   context.Context // per-connection context, possibly replaced by OnConnect
}

// BindSocket runs the graphql-transport-ws handshake and protocol loop on
// socket until it closes or an unrecoverable protocol violation occurs.
// Cancelling ctx cancels the operations started on the connection but does
// not close the socket or end the loop. It blocks for the life of the connection — callers
// typically invoke it from the goroutine already dedicated to the HTTP
// upgrade request (see Upgrade).
func BindSocket(ctx context.Context, socket Socket, eng engine.Engine, hooks Hooks, opts ...func(*options)) {
	c := &connection{
		socket: socket,
		engine: eng,
		hooks:  hooks,
		opts:   newOptions(opts...),
		ops:    registry.New[context.CancelFunc](),
		ctx:    ctx,
	}
	defer c.teardown()

	if !c.handshake() {
		return
	}
	c.run()
}

func (c *connection) teardown() {
	for _, cancel := range c.ops.Drain() {
		cancel()
	}
	if c.hooks.OnClose != nil {
		c.hooks.OnClose(c.ctx)
	}
	_ = c.socket.Close()
}

// handshake performs spec §4.3's handshake: arm connectionInitWaitTimeout,
// require ConnectionInit, run OnConnect, reply with ConnectionAck.
func (c *connection) handshake() bool {
	_ = c.socket.SetReadDeadline(time.Now().Add(c.opts.connectionInitWaitTimeout))
	env, err := c.readEnvelope()
	if err != nil {
		c.closeForReadError(err)
		return false
	}
	_ = c.socket.SetReadDeadline(time.Time{}) // clear deadline, got the response in time

	if env.Type != message.ConnectionInit {
		c.closeCode(message.CloseUnauthorized, "unauthorized")
		return false
	}

	var params map[string]interface{}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &params); err != nil {
			c.closeCode(message.CloseBadRequest, "invalid connection_init payload: "+err.Error())
			return false
		}
	}

	result := ConnectResult{Accept: true}
	if c.hooks.OnConnect != nil {
		var err error
		result, err = c.hooks.OnConnect(c.ctx, params)
		if err != nil {
			c.closeCode(message.CloseForbidden, err.Error())
			return false
		}
	}
	if !result.Accept {
		c.closeCode(message.CloseForbidden, "Forbidden")
		return false
	}
	if result.Context != nil {
		c.ctx = result.Context
	}

	if err := c.write(message.ConnectionAck, "", result.Payload); err != nil {
		return false
	}
	c.phase = phaseAcknowledged
	return true
}

// run processes inbound frames until the socket closes, optionally sending
// native WS liveness pings in the background (SPEC_FULL.md §3).
func (c *connection) run() {
	stopPing := c.startPinging()
	defer stopPing()

	for {
		env, err := c.readEnvelope()
		if err != nil {
			c.closeForReadError(err)
			return
		}
		if !c.dispatch(env) {
			return
		}
	}
}

func (c *connection) dispatch(env *message.Envelope) bool {
	switch env.Type {
	case message.ConnectionInit:
		c.closeCode(message.CloseTooManyInitialisationRequests, "Too many initialisation requests")
		return false
	case message.Subscribe:
		return c.handleSubscribe(env)
	case message.Complete:
		c.handleClientComplete(env.ID)
		return true
	default:
		// Next/Error/ConnectionAck are server→client only; any other
		// client frame here is a grammar violation.
		c.closeCode(message.CloseBadRequest, "unexpected message type from client: "+string(env.Type))
		return false
	}
}

func (c *connection) handleClientComplete(id string) {
	cancel, ok := c.ops.Get(id)
	if !ok {
		return // unknown id: client may race with server completion (spec §4.3)
	}
	c.ops.Remove(id)
	cancel()
}

func (c *connection) handleSubscribe(env *message.Envelope) bool {
	payload, err := message.DecodeSubscribePayload(env)
	if err != nil {
		c.closeCode(message.CloseBadRequest, err.Error())
		return false
	}

	opCtx, cancel := context.WithCancel(c.ctx)
	if err := c.ops.Add(env.ID, cancel); err != nil {
		cancel()
		c.closeCode(message.CloseSubscriberAlreadyExists, "Subscriber for "+env.ID+" already exists")
		return false
	}

	args := engine.Args{
		Query:         payload.Query,
		OperationName: payload.OperationName,
		Variables:     payload.Variables,
		Extensions:    payload.Extensions,
		Context:       opCtx,
	}
	overridden := false
	if c.hooks.OnSubscribe != nil {
		override, err := c.hooks.OnSubscribe(opCtx, env.ID, payload)
		if err != nil {
			c.failSubscribe(opCtx, env.ID, cancel, gqlerror.List{{Message: err.Error()}})
			return true
		}
		if override != nil {
			args = *override
			args.Context = opCtx
			overridden = true
		}
	}

	var doc interface{}
	if overridden {
		doc = args
	} else {
		var parseErrs message.ExecutionResult
		var ok bool
		doc, parseErrs, ok = c.engine.Parse(args)
		if !ok {
			c.failSubscribe(opCtx, env.ID, cancel, parseErrs.Errors)
			return true
		}
		if validateErrs, ok := c.engine.Validate(doc); !ok {
			c.failSubscribe(opCtx, env.ID, cancel, validateErrs.Errors)
			return true
		}
	}

	kind := c.engine.Kind(doc)
	if c.hooks.OnOperation != nil {
		c.hooks.OnOperation(opCtx, env.ID, args, kind)
	}

	go c.runOperation(opCtx, env.ID, doc, args, kind)
	return true
}

// failSubscribe sends the reference behavior of spec §4.3 step 3: an Error
// frame with the validation/parse errors, and removal of the id — no
// Complete frame, since the operation never started.
func (c *connection) failSubscribe(ctx context.Context, id string, cancel context.CancelFunc, errs gqlerror.List) {
	cancel()
	c.ops.Remove(id)
	if c.hooks.OnError != nil {
		errs = c.hooks.OnError(ctx, id, errs)
	}
	_ = c.write(message.Error, id, errs)
}

func (c *connection) runOperation(ctx context.Context, id string, doc interface{}, args engine.Args, kind engine.OperationKind) {
	defer func() {
		if _, ok := c.ops.Get(id); ok {
			c.ops.Remove(id)
		}
	}()

	if kind == engine.KindExecute {
		result, err := c.engine.Execute(ctx, doc, args)
		if err != nil {
			c.closeCode(message.CloseInternalServerError, "internal error: "+err.Error())
			return
		}
		c.sendNext(ctx, id, result)
		c.sendComplete(ctx, id)
		return
	}

	stream, err := c.engine.Subscribe(ctx, doc, args)
	if err != nil {
		c.closeCode(message.CloseInternalServerError, "internal error: "+err.Error())
		return
	}
	defer stream.Close()

	for {
		result, ok, err := stream.Next(ctx)
		if err != nil {
			c.closeCode(message.CloseInternalServerError, "internal error: "+err.Error())
			return
		}
		if ctx.Err() != nil {
			return // cancelled (client Complete or socket close) mid-stream
		}
		if !ok {
			c.sendComplete(ctx, id)
			return
		}
		c.sendNext(ctx, id, result)
	}
}

func (c *connection) sendNext(ctx context.Context, id string, result message.ExecutionResult) {
	if c.hooks.OnNext != nil {
		result = c.hooks.OnNext(ctx, id, result)
	}
	_ = c.write(message.Next, id, result)
}

func (c *connection) sendComplete(ctx context.Context, id string) {
	if c.hooks.OnComplete != nil {
		c.hooks.OnComplete(ctx, id)
	}
	_ = c.write(message.Complete, id, nil)
}

// write marshals and sends one frame, serialized against the ping
// goroutine's control writes, mirroring the teacher's wsConnection.write
// mutex discipline.
func (c *connection) write(typ message.Type, id string, payload interface{}) error {
	raw, err := message.Encode(typ, id, payload)
	if err != nil {
		c.opts.logger.Println("server: encode error:", err)
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.socket.WriteMessage(websocket.TextMessage, raw); err != nil {
		c.opts.logger.Println("server: write error:", err)
		return err
	}
	return nil
}

func (c *connection) closeCode(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

// readEnvelope reads and decodes one frame. It never writes to the socket
// itself — callers decide how (or whether) to close based on the error:
// a *message.ProtocolError carries the close code to use; a read-deadline
// timeout means ConnectionInit did not arrive in time; any other error
// means the socket is already gone (read error / real close), needing no
// close frame of our own.
func (c *connection) readEnvelope() (*message.Envelope, error) {
	messageType, r, err := c.socket.NextReader()
	if err != nil {
		return nil, err
	}
	if messageType != websocket.TextMessage {
		return nil, &message.ProtocolError{Code: message.CloseBadRequest, Reason: "expected text message"}
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &message.ProtocolError{Code: message.CloseBadRequest, Reason: "invalid frame: " + err.Error()}
	}
	return message.Decode(raw)
}

// closeForReadError closes the socket with the appropriate code for an
// error from readEnvelope, or does nothing if the socket is already gone.
func (c *connection) closeForReadError(err error) {
	var perr *message.ProtocolError
	if errors.As(err, &perr) {
		c.closeCode(perr.Code, perr.Reason)
		return
	}
	if isTimeout(err) {
		c.closeCode(message.CloseConnectionInitialisationTimeout, "Connection initialisation timeout")
	}
	// otherwise the socket already closed or errored on its own; nothing to send
}

func (c *connection) startPinging() (stop func()) {
	if c.opts.pingInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.opts.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.writeMu.Lock()
				err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
