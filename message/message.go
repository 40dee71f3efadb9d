// Package message implements the wire grammar of the graphql-transport-ws
// subprotocol: the six message types, their JSON encoding, and the
// structural validation a peer must apply to an inbound frame before it is
// safe to act on.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/dolmen-go/jsonmap"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Subprotocol is the WebSocket subprotocol identifier both peers must
// negotiate via the Sec-WebSocket-Protocol header before any frame in this
// grammar is valid (spec §6).
const Subprotocol = "graphql-transport-ws"

// Type identifies one of the six frames of the graphql-transport-ws grammar.
type Type string

const (
	ConnectionInit Type = "connection_init"
	ConnectionAck  Type = "connection_ack"
	Subscribe      Type = "subscribe"
	Next           Type = "next"
	Error          Type = "error"
	Complete       Type = "complete"
)

// Envelope is the outer shape every frame decodes to before its payload is
// interpreted according to Type. Unknown top-level fields are ignored for
// forward compatibility, per spec.
type Envelope struct {
	Type    Type            `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload is the payload carried by a Subscribe frame.
type SubscribePayload struct {
	OperationName string                 `json:"operationName,omitempty"`
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
}

// ExecutionResult is the payload carried by a Next frame: a GraphQL
// execution result. Data preserves resolver field order, matching the
// ordering the teacher's HTTP path already produces via jsonmap.Ordered.
type ExecutionResult struct {
	Data       jsonmap.Ordered        `json:"data,omitempty"`
	Errors     gqlerror.List          `json:"errors,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// ProtocolError is returned by Decode (and raised internally by the peer
// engines) when a frame violates the grammar. It carries the close code and
// human-readable reason the caller should use to close the socket.
type ProtocolError struct {
	Code   int
	Reason string
}

func (e *ProtocolError) Error() string { return e.Reason }

func violation(code int, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Decode parses a raw text frame and validates its structural grammar per
// spec §4.1. It never returns a partially-valid Envelope: either decoding
// succeeds and the Envelope is well-formed for its Type, or it fails with a
// *ProtocolError describing the violation.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, violation(CloseBadRequest, "invalid JSON frame: %v", err)
	}

	switch env.Type {
	case ConnectionInit, ConnectionAck:
		// payload is a free-form optional map; nothing further to validate
	case Subscribe:
		if env.ID == "" {
			return nil, violation(CloseBadRequest, "subscribe message requires a non-empty id")
		}
		if len(env.Payload) == 0 {
			return nil, violation(CloseBadRequest, "subscribe message requires a payload")
		}
		var p SubscribePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, violation(CloseBadRequest, "invalid subscribe payload: %v", err)
		}
		if p.Query == "" {
			return nil, violation(CloseBadRequest, "subscribe payload requires a non-empty query")
		}
	case Next:
		if env.ID == "" {
			return nil, violation(CloseBadRequest, "next message requires a non-empty id")
		}
	case Error:
		if env.ID == "" {
			return nil, violation(CloseBadRequest, "error message requires a non-empty id")
		}
		var errs []json.RawMessage
		if err := json.Unmarshal(env.Payload, &errs); err != nil || len(errs) == 0 {
			return nil, violation(CloseBadRequest, "error message requires a non-empty array payload")
		}
	case Complete:
		if env.ID == "" {
			return nil, violation(CloseBadRequest, "complete message requires a non-empty id")
		}
	default:
		return nil, violation(CloseBadRequest, "unknown message type %q", env.Type)
	}

	return &env, nil
}

// DecodeSubscribePayload unmarshals and returns the Subscribe payload of an
// Envelope already known (by Decode) to be a well-formed Subscribe frame.
func DecodeSubscribePayload(env *Envelope) (SubscribePayload, error) {
	var p SubscribePayload
	err := json.Unmarshal(env.Payload, &p)
	return p, err
}

// Encode marshals a frame for the given type, id and payload. payload may be
// nil (ConnectionAck with no payload, Complete, Error with a raw errors
// array already encoded by the caller).
func Encode(typ Type, id string, payload interface{}) ([]byte, error) {
	env := Envelope{ID: id, Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}
