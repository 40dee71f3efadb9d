package message_test

import (
	"testing"

	"github.com/riftgql/gqlws/message"
)

func TestDecodeValid(t *testing.T) {
	data := map[string]string{
		"connection_init no payload": `{"type":"connection_init"}`,
		"connection_init w/ payload": `{"type":"connection_init","payload":{"token":"abc"}}`,
		"connection_ack":              `{"type":"connection_ack"}`,
		"subscribe":                   `{"id":"1","type":"subscribe","payload":{"query":"{ hello }"}}`,
		"next":                        `{"id":"1","type":"next","payload":{"data":{"hello":"world"}}}`,
		"error":                       `{"id":"1","type":"error","payload":[{"message":"boom"}]}`,
		"complete":                    `{"id":"1","type":"complete"}`,
	}
	for name, raw := range data {
		t.Run(name, func(t *testing.T) {
			if _, err := message.Decode([]byte(raw)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	data := map[string]string{
		"not json":                  `not json`,
		"not object":                `[1,2,3]`,
		"unknown type":              `{"type":"bogus"}`,
		"subscribe no id":           `{"type":"subscribe","payload":{"query":"{ hello }"}}`,
		"subscribe no payload":      `{"id":"1","type":"subscribe"}`,
		"subscribe empty query":     `{"id":"1","type":"subscribe","payload":{"query":""}}`,
		"next no id":                `{"type":"next","payload":{"data":null}}`,
		"error no id":               `{"type":"error","payload":[{"message":"x"}]}`,
		"error empty payload array": `{"id":"1","type":"error","payload":[]}`,
		"error non-array payload":   `{"id":"1","type":"error","payload":{"message":"x"}}`,
		"complete no id":            `{"type":"complete"}`,
	}
	for name, raw := range data {
		t.Run(name, func(t *testing.T) {
			env, err := message.Decode([]byte(raw))
			if err == nil {
				t.Fatalf("expected error, got envelope %+v", env)
			}
			pe, ok := err.(*message.ProtocolError)
			if !ok {
				t.Fatalf("expected *ProtocolError, got %T", err)
			}
			if pe.Code != message.CloseBadRequest {
				t.Fatalf("expected close code %d, got %d", message.CloseBadRequest, pe.Code)
			}
		})
	}
}

func TestDecodeSubscribePayload(t *testing.T) {
	env, err := message.Decode([]byte(`{"id":"1","type":"subscribe","payload":{"query":"{ hello }","variables":{"x":1}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := message.DecodeSubscribePayload(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Query != "{ hello }" {
		t.Fatalf("unexpected query: %q", p.Query)
	}
	if p.Variables["x"].(float64) != 1 {
		t.Fatalf("unexpected variables: %+v", p.Variables)
	}
}

func TestTerminalCloseCodes(t *testing.T) {
	terminal := []int{
		message.CloseProtocolError, message.CloseInternalServerError,
		message.CloseBadRequest, message.CloseUnauthorized,
		message.CloseSubscriberAlreadyExists, message.CloseTooManyInitialisationRequests,
		message.CloseForbidden, message.CloseConnectionInitialisationTimeout,
	}
	for _, code := range terminal {
		if !message.Terminal(code) {
			t.Errorf("expected code %d to be terminal", code)
		}
	}
	nonTerminal := []int{message.CloseNormal, 1001, message.CloseAbnormal, 1005}
	for _, code := range nonTerminal {
		if message.Terminal(code) {
			t.Errorf("expected code %d to not be terminal", code)
		}
	}
}
