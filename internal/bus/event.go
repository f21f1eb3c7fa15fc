package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix, so
// "message." receives both message kinds.
const (
	KindMessageReceived = "message.received"
	KindMessageSent     = "message.sent"
	KindMessageStatus   = "message.status"
	KindWebhookDropped  = "webhook.dropped"
	KindLiveRegistered  = "live.registered"
	KindLiveClosed      = "live.closed"
	KindBroadcastQueued = "broadcast.queued"
	KindBroadcastSent   = "broadcast.sent"
	KindBroadcastFailed = "broadcast.failed"
)

// Event is a domain event published on the bus. Payload is JSON-encodable.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
