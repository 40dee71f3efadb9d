// Package gqlws implements the graphql-transport-ws subprotocol for
// running GraphQL queries, mutations and subscriptions over a single
// WebSocket connection.
//
// It does not parse, validate or execute GraphQL itself — the server is
// driven by an engine.Engine you supply, so gqlws can sit in front of any
// GraphQL implementation that can parse a query, validate it and execute
// or subscribe to it.
//
// A minimal server looks like this:
//
//	eng, err := gqlparserengine.New(schemaString, queryRoot, mutationRoot, subscriptionRoot)
//	if err != nil {
//		log.Fatal(err)
//	}
//	http.Handle("/graphql", gqlws.NewServer(eng))
//	http.ListenAndServe(":8080", nil)
//
// A minimal client looks like this:
//
//	c := gqlws.NewClient("ws://localhost:8080/graphql")
//	defer c.Close()
//	dispose := c.Subscribe(message.SubscribePayload{Query: "subscription { message }"}, client.Sink{
//		Next: func(r message.ExecutionResult) { fmt.Println(r.Data) },
//	})
//	defer dispose()
//
// See the server and client packages for the full configuration surface
// (timeouts, hooks, reconnect behaviour, event listeners).
package gqlws

import (
	"net/http"

	"github.com/riftgql/gqlws/client"
	"github.com/riftgql/gqlws/engine"
	"github.com/riftgql/gqlws/server"
)

// Subprotocol is the WebSocket subprotocol both client and server
// negotiate before any gqlws frame is valid.
const Subprotocol = server.Subprotocol

// NewServer builds an http.Handler that upgrades graphql-transport-ws
// connections and drives them against eng. It is a thin convenience
// wrapper over server.Upgrade for callers who only need the default
// no-op Hooks.
func NewServer(eng engine.Engine, opts ...server.Option) http.Handler {
	return server.Upgrade(eng, server.Hooks{}, opts...)
}

// NewServerWithHooks is NewServer plus lifecycle hooks (authentication,
// per-operation logging/metrics, etc — see server.Hooks).
func NewServerWithHooks(eng engine.Engine, hooks server.Hooks, opts ...server.Option) http.Handler {
	return server.Upgrade(eng, hooks, opts...)
}

// NewClient builds a Client dialing url lazily on the first Subscribe
// call (see client.Lazy to change that) and reconnecting with the
// default bounded, jittered backoff on abnormal closes.
func NewClient(url string, opts ...client.Option) *client.Client {
	return client.New(append([]client.Option{client.URL(url)}, opts...)...)
}
