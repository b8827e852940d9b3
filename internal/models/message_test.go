// internal/models/message_test.go
package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	snap := Snapshot{
		GreenhouseID: "gh-01",
		Reading:      SensorReading{Temperature: 24, Humidity: 67, VPD: 0.98, Timestamp: time.Now()},
		Mode:         ModeAutomatic,
		Stage:        StageEarlyVeg,
	}

	msg, err := NewMessage(MessageTypeSnapshot, snap)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if msg.Type != MessageTypeSnapshot {
		t.Errorf("Type = %v, want %v", msg.Type, MessageTypeSnapshot)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
	if len(msg.Payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestMessage_AdvisoryOverTheWire(t *testing.T) {
	report := AdvisoryReport{
		ID:     "abc",
		Status: AdvisorySettled,
		Text:   "All good",
	}

	msg, err := NewMessage(MessageTypeAdvisory, report)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Type != MessageTypeAdvisory {
		t.Errorf("Type = %v, want advisory", decoded.Type)
	}

	var got AdvisoryReport
	if err := decoded.UnmarshalPayload(&got); err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}
	if got.Status != AdvisorySettled || got.Text != "All good" {
		t.Errorf("payload = %+v", got)
	}
}
