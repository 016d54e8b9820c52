package types

import (
	"encoding/json"
	"fmt"
)

// Message is one decoded wire payload from a page context.
//
// Persistent-channel payloads carry a "type" tag and may be answered zero or
// more times over the same port. One-shot payloads carry an "action" tag and
// resolve exactly one response. Raw keeps the full payload so handlers can
// decode their own parameter shapes.
type Message struct {
	Type   string          `json:"type,omitempty"`
	Action string          `json:"action,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// Tag returns whichever routing tag the payload carries. Action wins when
// both are present, matching how one-shot senders reuse channel payloads.
func (m *Message) Tag() string {
	if m.Action != "" {
		return m.Action
	}
	return m.Type
}

// Decode unmarshals the full payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Raw) == 0 {
		return NewError(CodeMalformedPayload, "empty payload", nil)
	}
	if err := json.Unmarshal(m.Raw, v); err != nil {
		return NewError(CodeMalformedPayload, "decode payload", err)
	}
	return nil
}

// DecodeMessage parses a wire payload and keeps the raw bytes alongside.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, NewError(CodeMalformedPayload, fmt.Sprintf("parse message (%d bytes)", len(data)), err)
	}
	m.Raw = append(json.RawMessage(nil), data...)
	return &m, nil
}

// Response is the uniform one-shot reply envelope.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK wraps v as a successful response. Marshal failures degrade to an
// error response rather than propagating.
func OK(v any) Response {
	if v == nil {
		return Response{Success: true}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Fail(fmt.Errorf("encode response: %w", err))
	}
	return Response{Success: true, Data: data}
}

// Fail wraps err as a failed response.
func Fail(err error) Response {
	if err == nil {
		return Response{Success: false, Error: "unknown error"}
	}
	return Response{Success: false, Error: err.Error()}
}
