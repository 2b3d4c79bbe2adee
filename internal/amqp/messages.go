package amqp

import (
	"encoding/json"

	"clubledger/internal/core"
)

// AuditMessage is the wire form of one audit event. The full event
// travels in the message so the worker can persist it without a
// read-back.
type AuditMessage struct {
	Event core.AuditEvent `json:"event"`
}

func NewAuditMessage(event core.AuditEvent) *AuditMessage {
	return &AuditMessage{Event: event}
}

// ToJSON converts the message to JSON bytes.
func (m *AuditMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AuditMessageFromJSON parses a message from JSON bytes.
func AuditMessageFromJSON(data []byte) (*AuditMessage, error) {
	var msg AuditMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
