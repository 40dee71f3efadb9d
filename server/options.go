package server

// options.go handles setting of per-Server options via closures, the same
// mechanism as the teacher's internal/handler/options.go: newOptions
// takes a slice of closures each with signature func(*options) and runs
// them, then fills in defaults for anything left unset.

import (
	"log"
	"time"
)

const (
	defaultConnectionInitWaitTimeout = 10 * time.Second // spec §4.3
	defaultPingInterval              = 20 * time.Second // ambient liveness, spec_full §3
)

// Option configures a Server via Upgrade/BindSocket; see the functions
// below for the available settings.
type Option = func(*options)

type options struct {
	connectionInitWaitTimeout time.Duration
	pingInterval              time.Duration // 0 disables WS-level liveness pings
	pingIntervalSet           bool          // distinguishes PingInterval(0) from "not set"
	logger                    *log.Logger
}

func newOptions(opts ...func(*options)) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.connectionInitWaitTimeout == 0 {
		o.connectionInitWaitTimeout = defaultConnectionInitWaitTimeout
	}
	if !o.pingIntervalSet {
		o.pingInterval = defaultPingInterval
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	return o
}

// ConnectionInitWaitTimeout sets how long to wait, after the socket opens,
// for a ConnectionInit message before closing with code 4408 (spec §4.3).
func ConnectionInitWaitTimeout(d time.Duration) func(*options) {
	return func(o *options) { o.connectionInitWaitTimeout = d }
}

// PingInterval sets how often the server sends a native WebSocket control
// ping to the socket to detect a dead peer (SPEC_FULL.md §3's liveness
// supplement — not part of the six-message JSON grammar). A zero duration
// disables pings.
func PingInterval(d time.Duration) func(*options) {
	return func(o *options) {
		o.pingInterval = d
		o.pingIntervalSet = true
	}
}

// Logger overrides the logger used for unrecoverable write/close errors,
// matching the teacher's own use of the standard log package.
func Logger(l *log.Logger) func(*options) {
	return func(o *options) { o.logger = l }
}
