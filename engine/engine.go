// Package engine defines the execution-engine capability the server
// protocol engine dispatches to (spec §6): parse, validate, execute and
// subscribe are the only entry points the transport requires. The GraphQL
// schema, parser, validator and executor themselves stay an opaque external
// collaborator, per spec §1 — this package never implements one, only the
// seam a caller plugs one into.
package engine

import (
	"context"

	"github.com/riftgql/gqlws/message"
)

// Args is the resolved arguments for a single GraphQL operation, derived
// from a Subscribe payload (and optionally replaced wholesale by an
// onSubscribe hook, per spec §4.3 step 3).
type Args struct {
	Query         string
	OperationName string
	Variables     map[string]interface{}
	Extensions    map[string]interface{}

	// Context carries the per-connection context established by onConnect
	// (see server.Hooks.OnConnect and SPEC_FULL.md's "connection context
	// value" supplement), plus any per-operation values added upstream.
	Context context.Context
}

// Result is an execution-engine result: either a one-shot ExecutionResult
// (for Execute) or one value of a streamed sequence (for Subscribe).
type Result = message.ExecutionResult

// Stream is a cancellable, possibly-infinite sequence of Results, as
// returned by Subscribe for subscription operations. Next blocks until a
// result is available, ctx is cancelled, or the stream ends; it returns
// ok=false when the stream has ended or ctx has been cancelled (the server
// tells the two apart by checking ctx). Implementations must observe
// ctx cancellation and stop producing promptly (spec §5, "Cancellation").
type Stream interface {
	Next(ctx context.Context) (Result, bool, error)
	Close() error
}

// Engine is the pluggable execution-engine capability. Kind tells the
// server which of Execute/Subscribe to call for a given operation; a real
// adapter typically determines this by inspecting the parsed/validated
// operation (see engine/gqlparserengine for a reference implementation).
type Engine interface {
	// Parse and Validate return GraphQL-shaped errors (not Go errors) when
	// the query is malformed or fails schema validation — this is the
	// "subscription fails to start" path of spec §7, reported as an Error
	// frame rather than a socket close.
	Parse(args Args) (doc interface{}, errs message.ExecutionResult, ok bool)
	Validate(doc interface{}) (errs message.ExecutionResult, ok bool)

	// Kind reports whether doc is a subscription (Subscribe) or a
	// query/mutation (Execute).
	Kind(doc interface{}) OperationKind

	// Execute runs a query or mutation to completion and returns its
	// single result. A non-nil error here is an internal engine failure
	// (spec §7's "internal engine error"), not a GraphQL error — the
	// server closes the socket with 1011 in that case.
	Execute(ctx context.Context, doc interface{}, args Args) (Result, error)

	// Subscribe starts a subscription and returns a cancellable stream of
	// results. A non-nil error here is likewise an internal engine
	// failure, not a GraphQL validation error (those are reported by
	// Validate before Subscribe is ever called).
	Subscribe(ctx context.Context, doc interface{}, args Args) (Stream, error)
}

// OperationKind distinguishes a single-shot operation from a streamed one.
type OperationKind int

const (
	KindExecute OperationKind = iota
	KindSubscribe
)
