package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventEmailVerified EventType = "email_verified"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// EmailVerifiedPayload carries the encrypted subject identifier. The raw id
// never appears in event payloads or channel names: only a client that
// already knows its own encrypted identity can address the event.
type EmailVerifiedPayload struct {
	EncryptedID string `json:"id"`
	Verified    bool   `json:"verified"`
}
