package client_test

// client_test.go exercises the client state machine against an in-process
// fake Socket (spec §4.4's webSocketImpl capability), since the pack's
// InoiOy-go-graphql-client has no test suite of its own to ground this on;
// the fake lets the testable properties of spec §8 be checked
// deterministically without a real network.

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dolmen-go/jsonmap"

	"github.com/riftgql/gqlws/client"
	"github.com/riftgql/gqlws/message"
)

// fakeSocket is a client.Socket backed by channels instead of a network
// connection.
type fakeSocket struct {
	toClient chan []byte
	writes   chan []byte

	mu       sync.Mutex
	closed   bool
	closeErr *fakeCloseErr
}

type fakeCloseErr struct {
	code   int
	reason string
}

func (e *fakeCloseErr) Error() string  { return e.reason }
func (e *fakeCloseErr) CloseCode() int { return e.code }

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		toClient: make(chan []byte, 16),
		writes:   make(chan []byte, 16),
	}
}

func (f *fakeSocket) Read(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-f.toClient:
		if !ok {
			f.mu.Lock()
			err := f.closeErr
			f.mu.Unlock()
			if err == nil {
				err = &fakeCloseErr{code: message.CloseAbnormal, reason: "closed"}
			}
			return nil, err
		}
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSocket) Write(ctx context.Context, data []byte) error {
	select {
	case f.writes <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSocket) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.closeErr = &fakeCloseErr{code: code, reason: reason}
	close(f.toClient)
	return nil
}

// serverCloses simulates the remote end closing with code/reason without
// the client having initiated it.
func (f *fakeSocket) serverCloses(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.closeErr = &fakeCloseErr{code: code, reason: reason}
	close(f.toClient)
}

func (f *fakeSocket) send(t *testing.T, typ message.Type, id string, payload interface{}) {
	t.Helper()
	raw, err := message.Encode(typ, id, payload)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	f.toClient <- raw
}

func (f *fakeSocket) expectWrite(t *testing.T, timeout time.Duration) *message.Envelope {
	t.Helper()
	select {
	case raw := <-f.writes:
		env, err := message.Decode(raw)
		if err != nil {
			t.Fatalf("decode written frame: %v", err)
		}
		return env
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a write")
		return nil
	}
}

// fakeServer hands out successive fakeSockets and performs the handshake
// (read connection_init, reply connection_ack) for each one it is told to
// accept.
type fakeServer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
}

func (fs *fakeServer) dialer(ctx context.Context, url string) (client.Socket, error) {
	sock := newFakeSocket()
	fs.mu.Lock()
	fs.sockets = append(fs.sockets, sock)
	fs.mu.Unlock()
	return sock, nil
}

func (fs *fakeServer) latest(t *testing.T) *fakeSocket {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.sockets) == 0 {
		t.Fatalf("no socket dialed yet")
	}
	return fs.sockets[len(fs.sockets)-1]
}

func (fs *fakeServer) count() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.sockets)
}

func ackHandshake(t *testing.T, sock *fakeSocket) {
	t.Helper()
	env := sock.expectWrite(t, time.Second)
	if env.Type != message.ConnectionInit {
		t.Fatalf("expected connection_init, got %s", env.Type)
	}
	sock.send(t, message.ConnectionAck, "", nil)
}

func sequentialIDs() client.GenerateIDFunc {
	var n int
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "id-" + strconv.Itoa(n)
	}
}

func TestQueryRoundTrip(t *testing.T) {
	fs := &fakeServer{}
	c := client.New(
		client.URL("ws://fake"),
		client.WithDialer(fs.dialer),
		client.GenerateID(sequentialIDs()),
	)
	defer c.Close()

	var mu sync.Mutex
	var events []string
	done := make(chan struct{})
	dispose := c.Subscribe(message.SubscribePayload{Query: "{ getValue }"}, client.Sink{
		Next: func(r message.ExecutionResult) {
			mu.Lock()
			events = append(events, "next")
			mu.Unlock()
		},
		Complete: func() {
			mu.Lock()
			events = append(events, "complete")
			mu.Unlock()
			close(done)
		},
	})
	defer dispose()

	sock := fs.latest(t)
	ackHandshake(t, sock)
	sub := sock.expectWrite(t, time.Second)
	if sub.Type != message.Subscribe {
		t.Fatalf("expected subscribe, got %s", sub.Type)
	}
	sock.send(t, message.Next, sub.ID, message.ExecutionResult{Data: mustOrdered(`{"getValue":"value"}`)})
	sock.send(t, message.Complete, sub.ID, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for completion")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != "next" || events[1] != "complete" {
		t.Fatalf("unexpected event order: %v", events)
	}
}

func TestIDIsolation(t *testing.T) {
	fs := &fakeServer{}
	c := client.New(
		client.URL("ws://fake"),
		client.WithDialer(fs.dialer),
		client.GenerateID(sequentialIDs()),
	)
	defer c.Close()

	var muA, muB sync.Mutex
	var aCount, bCount int
	disposeA := c.Subscribe(message.SubscribePayload{Query: "subscription { ping(key:\"1\") }"}, client.Sink{
		Next: func(message.ExecutionResult) { muA.Lock(); aCount++; muA.Unlock() },
	})
	defer disposeA()
	disposeB := c.Subscribe(message.SubscribePayload{Query: "subscription { ping(key:\"2\") }"}, client.Sink{
		Next: func(message.ExecutionResult) { muB.Lock(); bCount++; muB.Unlock() },
	})
	defer disposeB()

	sock := fs.latest(t)
	ackHandshake(t, sock)
	subA := sock.expectWrite(t, time.Second)
	subB := sock.expectWrite(t, time.Second)

	sock.send(t, message.Next, subA.ID, message.ExecutionResult{})
	time.Sleep(20 * time.Millisecond)

	muA.Lock()
	got := aCount
	muA.Unlock()
	muB.Lock()
	gotB := bCount
	muB.Unlock()
	if got != 1 {
		t.Fatalf("expected A to receive 1 next, got %d", got)
	}
	if gotB != 0 {
		t.Fatalf("expected B to receive 0 next, got %d", gotB)
	}
	_ = subB
}

func TestDisposeQuiescence(t *testing.T) {
	fs := &fakeServer{}
	c := client.New(
		client.URL("ws://fake"),
		client.WithDialer(fs.dialer),
		client.GenerateID(sequentialIDs()),
		client.KeepAlive(time.Second),
	)
	defer c.Close()

	var mu sync.Mutex
	var calls int
	dispose := c.Subscribe(message.SubscribePayload{Query: "subscription { ping }"}, client.Sink{
		Next: func(message.ExecutionResult) { mu.Lock(); calls++; mu.Unlock() },
	})

	sock := fs.latest(t)
	ackHandshake(t, sock)
	sub := sock.expectWrite(t, time.Second)
	sock.send(t, message.Next, sub.ID, message.ExecutionResult{})
	time.Sleep(20 * time.Millisecond)

	dispose()
	// Client should send Complete for the disposed id.
	completeFrame := sock.expectWrite(t, time.Second)
	if completeFrame.Type != message.Complete || completeFrame.ID != sub.ID {
		t.Fatalf("expected client Complete for %s, got %+v", sub.ID, completeFrame)
	}

	// Late-arriving Next for the same id must be dropped.
	sock.send(t, message.Next, sub.ID, message.ExecutionResult{})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly 1 next call before dispose, got %d", calls)
	}
}

func TestAckOrdering(t *testing.T) {
	fs := &fakeServer{}
	c := client.New(
		client.URL("ws://fake"),
		client.WithDialer(fs.dialer),
		client.GenerateID(sequentialIDs()),
	)
	defer c.Close()

	var mu sync.Mutex
	var events []string
	c.On(client.EventConnected, func(interface{}) {
		mu.Lock()
		events = append(events, "connected")
		mu.Unlock()
	})

	done := make(chan struct{})
	dispose := c.Subscribe(message.SubscribePayload{Query: "{ getValue }"}, client.Sink{
		Next: func(message.ExecutionResult) {
			mu.Lock()
			events = append(events, "next")
			mu.Unlock()
			close(done)
		},
	})
	defer dispose()

	sock := fs.latest(t)
	ackHandshake(t, sock)
	sub := sock.expectWrite(t, time.Second)
	sock.send(t, message.Next, sub.ID, message.ExecutionResult{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != "connected" || events[1] != "next" {
		t.Fatalf("expected connected before next, got %v", events)
	}
}

func TestTerminalCloseDoesNotRetry(t *testing.T) {
	fs := &fakeServer{}
	c := client.New(
		client.URL("ws://fake"),
		client.WithDialer(fs.dialer),
		client.GenerateID(sequentialIDs()),
		client.RetryAttempts(5),
	)
	defer c.Close()

	errCh := make(chan error, 1)
	dispose := c.Subscribe(message.SubscribePayload{Query: "subscription { ping }"}, client.Sink{
		Error: func(err error) { errCh <- err },
	})
	defer dispose()

	sock := fs.latest(t)
	ackHandshake(t, sock)
	sock.expectWrite(t, time.Second) // the subscribe frame

	sock.serverCloses(message.CloseUnauthorized, "unauthorized")

	select {
	case err := <-errCh:
		ce, ok := err.(*client.ClosedEvent)
		if !ok {
			t.Fatalf("expected *client.ClosedEvent, got %T", err)
		}
		if ce.Code != message.CloseUnauthorized {
			t.Fatalf("expected code %d, got %d", message.CloseUnauthorized, ce.Code)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for terminal error")
	}

	time.Sleep(50 * time.Millisecond)
	if fs.count() != 1 {
		t.Fatalf("expected exactly 1 dial attempt for a terminal close, got %d", fs.count())
	}
}

func TestRetryThenSucceed(t *testing.T) {
	fs := &fakeServer{}
	c := client.New(
		client.URL("ws://fake"),
		client.WithDialer(fs.dialer),
		client.GenerateID(sequentialIDs()),
		client.RetryAttempts(3),
		client.RetryWait(func(attempt int) time.Duration { return time.Millisecond }),
	)
	defer c.Close()

	done := make(chan struct{})
	dispose := c.Subscribe(message.SubscribePayload{Query: "subscription { ping }"}, client.Sink{
		Next: func(message.ExecutionResult) { close(done) },
	})
	defer dispose()

	sock1 := fs.latest(t)
	ackHandshake(t, sock1)
	sock1.expectWrite(t, time.Second)
	sock1.serverCloses(message.CloseAbnormal, "dropped")

	deadline := time.After(2 * time.Second)
	var sock2 *fakeSocket
	for {
		if fs.count() == 2 {
			sock2 = fs.latest(t)
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for reconnect attempt")
		case <-time.After(5 * time.Millisecond):
		}
	}
	ackHandshake(t, sock2)
	resub := sock2.expectWrite(t, time.Second)
	if resub.Type != message.Subscribe {
		t.Fatalf("expected the subscriber to be re-subscribed, got %s", resub.Type)
	}
	sock2.send(t, message.Next, resub.ID, message.ExecutionResult{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for next after reconnect")
	}
}

func TestKeepAliveClosesAfterLastDispose(t *testing.T) {
	fs := &fakeServer{}
	c := client.New(
		client.URL("ws://fake"),
		client.WithDialer(fs.dialer),
		client.GenerateID(sequentialIDs()),
		client.KeepAlive(20*time.Millisecond),
	)
	defer c.Close()

	dispose := c.Subscribe(message.SubscribePayload{Query: "subscription { ping }"}, client.Sink{})
	sock := fs.latest(t)
	ackHandshake(t, sock)
	sock.expectWrite(t, time.Second)

	dispose()
	sock.expectWrite(t, time.Second) // client Complete

	select {
	case <-sock.toClient:
		t.Fatalf("socket closed too early")
	case <-time.After(10 * time.Millisecond):
	}

	sock.mu.Lock()
	closedYet := sock.closed
	sock.mu.Unlock()
	if closedYet {
		t.Fatalf("socket closed before keepAlive elapsed")
	}

	time.Sleep(40 * time.Millisecond)
	sock.mu.Lock()
	closedNow := sock.closed
	sock.mu.Unlock()
	if !closedNow {
		t.Fatalf("expected socket to be closed after keepAlive elapsed")
	}
}

func mustOrdered(jsonText string) (ordered jsonmap.Ordered) {
	_ = json.Unmarshal([]byte(jsonText), &ordered)
	return
}
