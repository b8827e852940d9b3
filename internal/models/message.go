package models

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeAdvisory MessageType = "advisory"
	MessageTypeError    MessageType = "error"
)

// Message is the envelope for all WebSocket communications
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// AdvisoryStatus is the lifecycle state of an advisory report.
type AdvisoryStatus string

const (
	AdvisoryIdle    AdvisoryStatus = "idle"
	AdvisoryPending AdvisoryStatus = "pending"
	AdvisorySettled AdvisoryStatus = "settled"
)

// AdvisoryReport is the payload for MessageTypeAdvisory
type AdvisoryReport struct {
	ID          string         `json:"id,omitempty"`
	Status      AdvisoryStatus `json:"status"`
	Text        string         `json:"text,omitempty"`
	Failed      bool           `json:"failed"`
	RequestedAt time.Time      `json:"requested_at,omitempty"`
	SettledAt   time.Time      `json:"settled_at,omitempty"`
}

// ErrorMessage is the payload for MessageTypeError
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
