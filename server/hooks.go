package server

import (
	"context"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/riftgql/gqlws/engine"
	"github.com/riftgql/gqlws/message"
)

// ConnectResult is what an OnConnect hook returns, mirroring spec §4.3 step
// 2: Accept=false closes with 4403 (Forbidden); Accept=true acks, with
// Payload (if non-nil) sent as the ConnectionAck payload; Context, if
// non-nil, replaces the context threaded through every subsequent hook and
// engine call for this socket (SPEC_FULL.md §3's "connection context
// value" supplement, grounded on example/hackernews/auth.go stashing the
// authenticated user on the request context).
type ConnectResult struct {
	Accept  bool
	Payload interface{}
	Context context.Context
}

// Hooks are the observability/extension points of spec §4.3. All fields
// are optional; a nil hook is simply skipped.
type Hooks struct {
	// OnConnect validates ConnectionInit's connectionParams. Returning an
	// error is equivalent to ConnectResult{Accept: false} but lets the
	// hook report a reason, which becomes the 4403 close reason.
	OnConnect func(ctx context.Context, connectionParams map[string]interface{}) (ConnectResult, error)

	// OnSubscribe may return engine.Args to use verbatim instead of the
	// default (payload-derived) args, per spec §4.3 step 3. Returning
	// (nil, nil) means "use the default".
	OnSubscribe func(ctx context.Context, id string, payload message.SubscribePayload) (*engine.Args, error)

	// OnOperation is called once an operation has started executing,
	// purely for observability.
	OnOperation func(ctx context.Context, id string, args engine.Args, kind engine.OperationKind)

	// OnNext may transform a result before it is sent as a Next frame.
	OnNext func(ctx context.Context, id string, result message.ExecutionResult) message.ExecutionResult

	// OnError may transform the errors before they are sent as an Error
	// frame for a subscription that failed to start (OnSubscribe, Parse or
	// Validate failure). It is not called when a running stream fails; that
	// closes the socket with 1011 instead.
	OnError func(ctx context.Context, id string, errs gqlerror.List) gqlerror.List

	// OnComplete is called once, right before a Complete frame is sent
	// for id on normal completion. An operation ended by a client Complete
	// or by socket close sends no Complete frame and does not call it.
	OnComplete func(ctx context.Context, id string)

	// OnClose is called once as the socket tears down, after every active
	// operation has been cancelled but before the socket itself is closed
	// (spec §4.3's "Socket closed" step).
	OnClose func(ctx context.Context)
}
