package store

import (
	"time"

	"github.com/matheus3301/wabiz/internal/status"
)

// Direction of a persisted message relative to the business number.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Message is the durable record of a sent or received message. JSON names
// match what live clients already consume.
type Message struct {
	ID                string        `json:"id"`
	ConversationID    string        `json:"chatId"`
	SenderID          string        `json:"senderId"`
	ReceiverID        string        `json:"receiverId"`
	Direction         Direction     `json:"direction"`
	Text              string        `json:"text"`
	MessageType       string        `json:"type"`
	Status            status.Status `json:"status"`
	ProviderMessageID string        `json:"whatsappMessageId"`
	ErrorMessage      string        `json:"error,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`

	// PreviousStatus is only set on records returned by ApplyStatusUpdate.
	PreviousStatus status.Status `json:"-"`
}

// Outgoing describes a message the business sent (or tried to send).
type Outgoing struct {
	ConversationID    string
	SenderID          string
	Text              string
	MessageType       string
	Status            status.Status // status.Sent or status.Failed
	ProviderMessageID string
	ErrorMessage      string
}

// Conversation summarizes one chat thread, keyed by the customer's phone.
type Conversation struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	LastDirection      Direction `json:"lastDirection"`
	MessageCount       int       `json:"messageCount"`
}

// Contact is the profile the provider reports for a WhatsApp user.
type Contact struct {
	WaID string `json:"waId"`
	Name string `json:"name"`
}

// OutboxStatus tracks a queued broadcast recipient.
type OutboxStatus string

const (
	OutboxQueued  OutboxStatus = "queued"
	OutboxSending OutboxStatus = "sending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEntry is one recipient of a broadcast.
type OutboxEntry struct {
	ID                int64        `json:"id"`
	BroadcastID       string       `json:"broadcastId"`
	SenderID          string       `json:"senderId"`
	Recipient         string       `json:"phone"`
	TemplateName      string       `json:"templateName"`
	LanguageCode      string       `json:"languageCode"`
	Status            OutboxStatus `json:"status"`
	ErrorMessage      string       `json:"error,omitempty"`
	ProviderMessageID string       `json:"whatsappMessageId,omitempty"`
	MessageID         string       `json:"messageId,omitempty"`
}
