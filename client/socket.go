package client

// socket.go abstracts the WebSocket endpoint the client dials (spec §4.2,
// §6's "embedder capability"), grounded on
// InoiOy-go-graphql-client/subscription.go's WebsocketConn interface and
// its default nhooyr.io/websocket-backed implementation, generalized from
// JSON read/write to raw text frames so this package can apply its own
// message codec (message.Decode/Encode) instead of json.Marshal directly.

import (
	"context"
	"time"

	"nhooyr.io/websocket"

	"github.com/riftgql/gqlws/message"
)

// Subprotocol is the WebSocket subprotocol this client negotiates.
const Subprotocol = message.Subprotocol

// Socket is the capability set the client protocol engine needs from a
// WebSocket connection: send a text frame, receive one, and close with a
// protocol close code. A context deadline bounds each read/write.
type Socket interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code int, reason string) error
}

// SocketDialer constructs a Socket for url, negotiating the
// graphql-transport-ws subprotocol. The default implementation uses
// nhooyr.io/websocket; embedders may supply their own via WithDialer
// (spec §4.4's webSocketImpl option).
type SocketDialer func(ctx context.Context, url string) (Socket, error)

// DefaultDialer dials url with nhooyr.io/websocket, offering only the
// graphql-transport-ws subprotocol.
func DefaultDialer(ctx context.Context, url string) (Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return &nhooyrSocket{conn: conn}, nil
}

const readLimit = 10 * 1024 * 1024

type nhooyrSocket struct {
	conn *websocket.Conn
}

func (s *nhooyrSocket) Read(ctx context.Context) ([]byte, error) {
	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageText {
		return nil, errUnexpectedBinary
	}
	return data, nil
}

func (s *nhooyrSocket) Write(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *nhooyrSocket) Close(code int, reason string) error {
	return s.conn.Close(websocket.StatusCode(code), reason)
}

// CloseStatus extracts the close code from err if it originated from a
// WebSocket close frame, mirroring websocket.CloseStatus's -1-on-miss
// convention used by the teacher's Run loop.
func CloseStatus(err error) int {
	return int(websocket.CloseStatus(err))
}

var errUnexpectedBinary = &socketError{"unexpected binary message"}

type socketError struct{ msg string }

func (e *socketError) Error() string { return e.msg }

// writeDeadline bounds a single write per the WriteTimeout option.
func writeDeadline(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
