package message

// Close codes reserved and meaningful to the graphql-transport-ws
// subprotocol (spec §6). 1000/1002/1011 are standard WebSocket close codes
// (RFC 6455); 44xx are the subprotocol's own private-use range, matching
// the literal values the teacher already sends from wshandler.go.
const (
	CloseNormal              = 1000
	CloseAbnormal            = 1006
	CloseProtocolError       = 1002
	CloseInternalServerError = 1011

	CloseBadRequest                     = 4400
	CloseUnauthorized                   = 4401
	CloseForbidden                      = 4403
	CloseConnectionInitialisationTimeout = 4408
	CloseSubscriberAlreadyExists         = 4409
	CloseTooManyInitialisationRequests   = 4429
)

// Terminal reports whether a client must not attempt to reconnect after
// seeing this close code, per spec §4.4/§8 (testable property 7).
func Terminal(code int) bool {
	switch code {
	case CloseProtocolError, CloseInternalServerError,
		CloseBadRequest, CloseUnauthorized, CloseSubscriberAlreadyExists,
		CloseTooManyInitialisationRequests, CloseForbidden,
		CloseConnectionInitialisationTimeout:
		return true
	default:
		return false
	}
}
