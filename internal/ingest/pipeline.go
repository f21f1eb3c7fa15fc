// Package ingest runs webhook payloads through the normalizer, the event log,
// the conversation store and the live notifier.
package ingest

import (
	"context"

	"github.com/matheus3301/wabiz/internal/bus"
	"github.com/matheus3301/wabiz/internal/eventlog"
	"github.com/matheus3301/wabiz/internal/live"
	"github.com/matheus3301/wabiz/internal/metrics"
	"github.com/matheus3301/wabiz/internal/notify"
	"github.com/matheus3301/wabiz/internal/status"
	"github.com/matheus3301/wabiz/internal/store"
	"github.com/matheus3301/wabiz/internal/webhook"
	"go.uber.org/zap"
)

// StatusUpdate is the message_status_update payload.
type StatusUpdate struct {
	MessageID         string        `json:"messageId"`
	WhatsAppMessageID string        `json:"whatsappMessageId"`
	Status            status.Status `json:"status"`
	Timestamp         string        `json:"timestamp"`
}

// Result counts what one payload produced. It is informational; Process never
// fails outward.
type Result struct {
	Malformed bool
	Messages  int
	Statuses  int
	Stored    int
	Applied   int
	Failed    int
}

// Pipeline handles webhook POST bodies.
type Pipeline struct {
	db       *store.DB
	events   *eventlog.Log
	notifier *notify.Notifier
	bus      *bus.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// receiverID is the business phone number id recorded on incoming
	// messages. Empty means use the id the webhook carries.
	receiverID string
}

// New creates a pipeline.
func New(db *store.DB, events *eventlog.Log, n *notify.Notifier, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger, receiverID string) *Pipeline {
	return &Pipeline{
		db:         db,
		events:     events,
		notifier:   n,
		bus:        b,
		metrics:    m,
		logger:     logger.Named("ingest"),
		receiverID: receiverID,
	}
}

// Process normalizes body and handles every event in order. A malformed body
// is logged and dropped whole. A failure on one event is logged and the next
// event is still processed.
func (p *Pipeline) Process(ctx context.Context, body []byte) Result {
	events, err := webhook.Normalize(body)
	if err != nil {
		p.logger.Warn("discarding webhook payload", zap.Error(err), zap.Int("bytes", len(body)))
		p.metrics.WebhookPayloads.WithLabelValues("malformed").Inc()
		p.bus.Publish(bus.NewEvent(bus.KindWebhookDropped, map[string]any{
			"error": err.Error(),
			"bytes": len(body),
		}))
		return Result{Malformed: true}
	}
	p.metrics.WebhookPayloads.WithLabelValues("accepted").Inc()

	var res Result
	for _, evt := range events {
		p.events.Append(evt)
		p.metrics.WebhookEvents.WithLabelValues(string(evt.Kind)).Inc()

		switch evt.Kind {
		case webhook.KindMessage:
			res.Messages++
			if err := p.handleMessage(ctx, evt); err != nil {
				res.Failed++
				p.logger.Error("failed to record incoming message",
					zap.Error(err),
					zap.String("wamid", evt.ProviderMessageID),
					zap.String("from", evt.ConversationID))
				continue
			}
			res.Stored++
		case webhook.KindStatus:
			res.Statuses++
			applied, err := p.handleStatus(ctx, evt)
			if err != nil {
				res.Failed++
				p.logger.Error("failed to apply status update",
					zap.Error(err),
					zap.String("wamid", evt.ProviderMessageID))
				continue
			}
			if applied {
				res.Applied++
			}
		}
	}
	return res
}

func (p *Pipeline) handleMessage(ctx context.Context, evt webhook.Event) error {
	receiver := p.receiverID
	if receiver == "" {
		receiver = evt.PhoneNumberID
	}
	msg, err := p.db.RecordIncoming(ctx, evt, receiver)
	p.metrics.StoreWrites.WithLabelValues("record_incoming", metrics.Outcome(err)).Inc()
	if err != nil {
		return err
	}

	if evt.Message != nil && evt.Message.Contact != nil {
		c := evt.Message.Contact
		if err := p.db.UpsertContact(ctx, store.Contact{WaID: c.WaID, Name: c.Name}); err != nil {
			p.logger.Warn("failed to upsert contact", zap.Error(err), zap.String("wa_id", c.WaID))
		}
	}

	p.bus.Publish(bus.NewEvent(bus.KindMessageReceived, msg))
	p.notifier.NotifyOrBroadcast(ctx, msg.ConversationID, live.EventNewMessage, msg)
	return nil
}

// handleStatus reports whether a stored message was updated.
func (p *Pipeline) handleStatus(ctx context.Context, evt webhook.Event) (bool, error) {
	if evt.ProviderMessageID == "" || evt.Status.Status == "" {
		p.logger.Debug("status update without id or status", zap.String("wamid", evt.ProviderMessageID))
		return false, nil
	}
	st := status.Status(evt.Status.Status)

	msg, err := p.db.ApplyStatusUpdate(ctx, evt.ProviderMessageID, st)
	p.metrics.StoreWrites.WithLabelValues("apply_status", metrics.Outcome(err)).Inc()
	if err != nil {
		return false, err
	}
	if msg == nil {
		p.logger.Debug("status update for unknown message",
			zap.String("wamid", evt.ProviderMessageID),
			zap.String("status", evt.Status.Status))
		return false, nil
	}

	if err := status.Check(msg.PreviousStatus, st); err != nil {
		p.logger.Warn("status applied out of order",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("wamid", evt.ProviderMessageID))
	}
	if evt.Status.Error != "" {
		p.logger.Info("provider reported delivery error",
			zap.String("message_id", msg.ID),
			zap.String("error", evt.Status.Error))
	}

	update := StatusUpdate{
		MessageID:         msg.ID,
		WhatsAppMessageID: evt.ProviderMessageID,
		Status:            st,
		Timestamp:         evt.Timestamp,
	}
	p.bus.Publish(bus.NewEvent(bus.KindMessageStatus, update))
	p.notifier.Notify(ctx, msg.SenderID, live.EventMessageStatusUpdate, update)
	return true, nil
}
