package server

// upgrade.go performs the HTTP-to-WebSocket upgrade and subprotocol
// negotiation, grounded on internal/handler/wshandler.go's package-level
// upgrader and serveWS, narrowed from the teacher's dual graphql-ws /
// graphql-transport-ws negotiation down to graphql-transport-ws only
// (see DESIGN.md).

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/riftgql/gqlws/engine"
	"github.com/riftgql/gqlws/message"
)

// Subprotocol is the only WebSocket subprotocol this package negotiates.
const Subprotocol = message.Subprotocol

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: []string{Subprotocol},
}

// Upgrade upgrades r to a WebSocket; if the client did not offer the
// graphql-transport-ws subprotocol, it sends a 1002 (protocol error) close
// frame on the upgraded socket and closes it. Otherwise it runs
// BindSocket on it for the life of the connection. It blocks until the
// connection closes, so callers typically register it directly as an
// http.HandlerFunc.
func Upgrade(eng engine.Engine, hooks Hooks, opts ...func(*options)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			return
		}
		if conn.Subprotocol() != Subprotocol {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseProtocolError, "unsupported subprotocol"))
			_ = conn.Close()
			return
		}
		BindSocket(r.Context(), conn, eng, hooks, opts...)
	}
}
