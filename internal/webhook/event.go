package webhook

import (
	"encoding/json"
	"strconv"
	"time"
)

// Kind distinguishes the two inbound event variants.
type Kind string

const (
	KindMessage Kind = "message"
	KindStatus  Kind = "status"
)

// Event is one normalized item from a provider webhook payload. Exactly one
// of Message and Status is set, matching Kind. Events are never mutated after
// Normalize returns them.
type Event struct {
	Kind              Kind            `json:"kind"`
	ProviderMessageID string          `json:"providerMessageId"`
	ConversationID    string          `json:"conversationId"`
	Timestamp         string          `json:"timestamp"`
	PhoneNumberID     string          `json:"phoneNumberId,omitempty"`
	Message           *Message        `json:"message,omitempty"`
	Status            *StatusChange   `json:"status,omitempty"`
	Raw               json.RawMessage `json:"raw"`
}

// Message carries the fields of a received message.
type Message struct {
	Text    string   `json:"text"`
	Type    string   `json:"type"`
	Contact *Contact `json:"contact,omitempty"`
}

// Contact is the sender profile the provider attaches to a change value.
type Contact struct {
	WaID string `json:"waId"`
	Name string `json:"name"`
}

// StatusChange carries the fields of a delivery status callback.
type StatusChange struct {
	Status      string `json:"status"`
	RecipientID string `json:"recipientId"`
	Error       string `json:"error,omitempty"`
}

// Time parses the provider's unix-seconds timestamp. Zero if absent or invalid.
func (e Event) Time() time.Time {
	secs, err := strconv.ParseInt(e.Timestamp, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
