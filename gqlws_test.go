package gqlws_test

// gqlws_test.go is an end-to-end smoke test of the public entry points,
// in the style of the teacher's own root-level eggql_test.go: low-level
// protocol coverage lives in server/connection_test.go and
// client/client_test.go, this just proves NewServer and NewClient talk
// to each other correctly.

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/riftgql/gqlws"
	"github.com/riftgql/gqlws/client"
	"github.com/riftgql/gqlws/engine/gqlparserengine"
	"github.com/riftgql/gqlws/message"
)

func TestEndToEndSubscription(t *testing.T) {
	eng, err := gqlparserengine.New(
		`type Query { ping: String! }
		 type Subscription { counter: Int! }
		 schema { query: Query, subscription: Subscription }`,
		map[string]gqlparserengine.Resolver{
			"ping": func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return "pong", nil
			},
		},
		nil,
		map[string]gqlparserengine.SubscriptionResolver{
			"counter": func(ctx context.Context, args map[string]interface{}) (<-chan interface{}, error) {
				ch := make(chan interface{}, 1)
				ch <- 1
				close(ch)
				return ch, nil
			},
		},
	)
	if err != nil {
		t.Fatalf("unexpected engine error: %v", err)
	}

	srv := httptest.NewServer(gqlws.NewServer(eng))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c := gqlws.NewClient(url, client.RetryAttempts(0))
	defer c.Close()

	var (
		mu       sync.Mutex
		results  []message.ExecutionResult
		complete = make(chan struct{})
	)
	dispose := c.Subscribe(message.SubscribePayload{Query: "subscription { counter }"}, client.Sink{
		Next: func(r message.ExecutionResult) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
		Complete: func() { close(complete) },
		Error: func(err error) {
			t.Errorf("unexpected subscription error: %v", err)
			close(complete)
		},
	})
	defer dispose()

	select {
	case <-complete:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for subscription to complete")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(results))
	}
}
