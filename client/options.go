package client

// options.go exposes spec §4.4's configuration table as functional options,
// the same closure-over-struct mechanism as server/options.go and the
// teacher's internal/handler/options.go, in place of
// InoiOy-go-graphql-client/subscription.go's fluent With*-method chain
// (both are the pack's idiom for configuration; functional options were
// chosen to match the sibling server package).

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultRetryAttempts = 5 // spec §4.4
	defaultWriteTimeout  = 10 * time.Second
)

// URLFunc resolves the dial target, possibly asynchronously (spec §4.4's
// "producer returning string" form of the url option).
type URLFunc func(ctx context.Context) (string, error)

// ParamsFunc resolves the ConnectionInit payload, possibly asynchronously
// (spec §4.4's "producer returning object" form of connectionParams).
type ParamsFunc func(ctx context.Context) (map[string]interface{}, error)

// RetryWaitFunc returns the delay before reconnect attempt n (1-based).
type RetryWaitFunc func(attempt int) time.Duration

// GenerateIDFunc produces a fresh, connection-local operation id.
type GenerateIDFunc func() string

// Option configures a Client via New; see the functions below for the
// available settings.
type Option = func(*options)

type options struct {
	urlFn         URLFunc
	paramsFn      ParamsFunc
	lazy          bool
	keepAlive     time.Duration
	retryAttempts int
	retryWait     RetryWaitFunc
	generateID    GenerateIDFunc
	dialer        SocketDialer
	writeTimeout  time.Duration
	listeners     map[Event][]func(interface{})
}

func newOptions(opts ...func(*options)) *options {
	o := &options{
		lazy:          true,
		retryAttempts: defaultRetryAttempts,
		dialer:        DefaultDialer,
		writeTimeout:  defaultWriteTimeout,
		listeners:     make(map[Event][]func(interface{})),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.retryWait == nil {
		o.retryWait = newJitteredBackoff(rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	if o.generateID == nil {
		o.generateID = defaultGenerateID
	}
	return o
}

// URL sets a fixed target URL.
func URL(url string) func(*options) {
	return func(o *options) {
		o.urlFn = func(context.Context) (string, error) { return url, nil }
	}
}

// URLProducer sets a deferred (possibly failing) target URL resolver.
func URLProducer(fn URLFunc) func(*options) {
	return func(o *options) { o.urlFn = fn }
}

// ConnectionParams sets a fixed ConnectionInit payload.
func ConnectionParams(params map[string]interface{}) func(*options) {
	return func(o *options) {
		o.paramsFn = func(context.Context) (map[string]interface{}, error) { return params, nil }
	}
}

// ConnectionParamsProducer sets a deferred (possibly failing)
// ConnectionInit payload resolver. A rejection closes the socket with
// 4400 and the rejection message as the close reason (spec §4.4).
func ConnectionParamsProducer(fn ParamsFunc) func(*options) {
	return func(o *options) { o.paramsFn = fn }
}

// Lazy sets whether the client connects on first Subscribe (true, the
// default) or immediately at construction (false).
func Lazy(lazy bool) func(*options) {
	return func(o *options) { o.lazy = lazy }
}

// KeepAlive sets how long a lazy client keeps its socket open after the
// last subscriber disposes before closing it. Zero closes immediately.
func KeepAlive(d time.Duration) func(*options) {
	return func(o *options) { o.keepAlive = d }
}

// RetryAttempts sets the maximum number of reconnect attempts after an
// abnormal, non-terminal close. Zero disables retry.
func RetryAttempts(n int) func(*options) {
	return func(o *options) { o.retryAttempts = n }
}

// RetryWait overrides the backoff-delay function used between reconnect
// attempts (spec §9: must be mockable for tests).
func RetryWait(fn RetryWaitFunc) func(*options) {
	return func(o *options) { o.retryWait = fn }
}

// GenerateID overrides the operation id generator (default: google/uuid).
func GenerateID(fn GenerateIDFunc) func(*options) {
	return func(o *options) { o.generateID = fn }
}

// WithDialer overrides the socket constructor (spec §4.4's
// webSocketImpl), e.g. to use gorilla/websocket or a fake for tests.
func WithDialer(dialer SocketDialer) func(*options) {
	return func(o *options) { o.dialer = dialer }
}

// WriteTimeout bounds how long a single outbound frame write may take.
func WriteTimeout(d time.Duration) func(*options) {
	return func(o *options) { o.writeTimeout = d }
}

// On registers fn as a listener for event at construction time, the
// static-config form of spec §4.6; On (the method) is the runtime form.
func On(event Event, fn func(interface{})) func(*options) {
	return func(o *options) {
		o.listeners[event] = append(o.listeners[event], fn)
	}
}
