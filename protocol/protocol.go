// Package protocol defines the client wire format: type-discriminated JSON
// envelopes and the request/response shapes for every operation. It carries
// no game logic; the session hub routes envelopes to handlers.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame. Data stays raw so handlers can defer decoding
// to the concrete shape; RequestID is echoed verbatim in responses so clients
// can correlate.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope wraps data in an envelope of the given type.
func NewEnvelope(msgType, requestID string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s data: %w", msgType, err)
	}
	return Envelope{Type: msgType, RequestID: requestID, Data: raw}, nil
}

// Decode unmarshals an envelope's payload into dst.
func Decode(env Envelope, dst any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("decode %s data: %w", env.Type, err)
	}
	return nil
}
