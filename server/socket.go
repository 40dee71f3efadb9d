package server

import (
	"io"
	"time"
)

// Socket is the capability set the server protocol engine needs from a
// WebSocket connection (spec §4.2). It is deliberately the subset of
// *gorilla/websocket.Conn's method set that internal/handler/wshandler.go
// already calls (NextReader, WriteMessage, SetReadDeadline, Close,
// Subprotocol), so a *websocket.Conn satisfies Socket with no adapter code
// required — see Upgrade in upgrade.go.
type Socket interface {
	NextReader() (messageType int, r io.Reader, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
	Subprotocol() string
}
