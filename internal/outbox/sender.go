// Package outbox sends template broadcasts one recipient at a time.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wabiz/internal/bus"
	"github.com/matheus3301/wabiz/internal/graph"
	"github.com/matheus3301/wabiz/internal/metrics"
	"github.com/matheus3301/wabiz/internal/status"
	"github.com/matheus3301/wabiz/internal/store"
	"go.uber.org/zap"
)

// ErrInvalidBroadcast is returned when a broadcast has no recipients or template.
var ErrInvalidBroadcast = errors.New("phones and template name are required")

// TemplateSender is the interface for sending template messages via the provider.
type TemplateSender interface {
	SendTemplate(ctx context.Context, to string, tpl graph.TemplateRef) (graph.SendResult, error)
}

// Broadcast is a request to send one template to many phones.
type Broadcast struct {
	SenderID     string
	TemplateName string
	LanguageCode string
	Phones       []string
}

// Sender drains the outbox, sending one template every interval.
type Sender struct {
	db       *store.DB
	sender   TemplateSender
	bus      *bus.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger
	interval time.Duration

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSender creates a new outbox sender. interval is the fixed delay between
// recipients.
func NewSender(db *store.DB, sender TemplateSender, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger, interval time.Duration) *Sender {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sender{
		db:       db,
		sender:   sender,
		bus:      b,
		metrics:  m,
		logger:   logger.Named("outbox"),
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// QueueBroadcast stores one outbox row per phone and wakes the loop.
func (s *Sender) QueueBroadcast(ctx context.Context, b Broadcast) (string, error) {
	if len(b.Phones) == 0 || b.TemplateName == "" {
		return "", ErrInvalidBroadcast
	}
	if b.LanguageCode == "" {
		b.LanguageCode = "en_US"
	}
	id, err := s.db.QueueOutbox(ctx, b.SenderID, b.TemplateName, b.LanguageCode, b.Phones)
	if err != nil {
		return "", fmt.Errorf("queue broadcast: %w", err)
	}
	s.logger.Info("broadcast queued",
		zap.String("broadcast_id", id),
		zap.String("template", b.TemplateName),
		zap.Int("recipients", len(b.Phones)))
	s.bus.Publish(bus.NewEvent(bus.KindBroadcastQueued, map[string]any{
		"broadcastId": id,
		"recipients":  len(b.Phones),
	}))

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return id, nil
}

// Start requeues rows interrupted by a previous shutdown and begins draining.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.RequeueSending(ctx); err != nil {
		s.logger.Error("failed to requeue interrupted sends", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("requeued interrupted sends", zap.Int64("count", n))
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop stops the sender loop and waits for the current send to finish.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		s.processPending(ctx)
		select {
		case <-s.wake:
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	for ctx.Err() == nil {
		pending, err := s.db.PendingOutbox(ctx, 50)
		if err != nil {
			s.logger.Error("failed to read outbox", zap.Error(err))
			return
		}
		if len(pending) == 0 {
			return
		}
		for _, entry := range pending {
			s.sendOne(ctx, entry)
			select {
			case <-time.After(s.interval):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Sender) sendOne(ctx context.Context, entry store.OutboxEntry) {
	log := s.logger.With(zap.Int64("outbox_id", entry.ID), zap.String("broadcast_id", entry.BroadcastID))
	if err := s.db.MarkOutboxSending(ctx, entry.ID); err != nil {
		log.Error("failed to mark sending", zap.Error(err))
		return
	}

	res, sendErr := s.sender.SendTemplate(ctx, entry.Recipient, graph.TemplateRef{
		Name:         entry.TemplateName,
		LanguageCode: entry.LanguageCode,
	})
	s.metrics.BroadcastSends.WithLabelValues(metrics.Outcome(sendErr)).Inc()

	out := store.Outgoing{
		ConversationID:    entry.Recipient,
		SenderID:          entry.SenderID,
		Text:              "template:" + entry.TemplateName,
		MessageType:       "template",
		Status:            status.Sent,
		ProviderMessageID: res.MessageID,
	}
	if sendErr != nil {
		out.Status = status.Failed
		out.ErrorMessage = sendErr.Error()
	}
	var messageID string
	if msg, err := s.db.RecordOutgoing(ctx, out); err != nil {
		log.Error("failed to record broadcast message", zap.Error(err))
	} else {
		messageID = msg.ID
	}

	if sendErr != nil {
		log.Warn("broadcast send failed", zap.String("to", entry.Recipient), zap.Error(sendErr))
		s.mark(log, "failed", func() error {
			return s.db.MarkOutboxFailed(ctx, entry.ID, sendErr.Error(), messageID)
		})
		s.bus.Publish(bus.NewEvent(bus.KindBroadcastFailed, map[string]any{
			"broadcastId": entry.BroadcastID,
			"phone":       entry.Recipient,
			"error":       sendErr.Error(),
		}))
		return
	}

	s.mark(log, "sent", func() error {
		return s.db.MarkOutboxSent(ctx, entry.ID, res.MessageID, messageID)
	})
	log.Info("broadcast message sent", zap.String("to", entry.Recipient), zap.String("wamid", res.MessageID))
	s.bus.Publish(bus.NewEvent(bus.KindBroadcastSent, map[string]any{
		"broadcastId": entry.BroadcastID,
		"phone":       entry.Recipient,
		"wamid":       res.MessageID,
	}))
}

// mark records the outcome of a send that already reached the provider,
// retrying once. An entry left in sending is requeued on the next Start and
// sent again.
func (s *Sender) mark(log *zap.Logger, state string, fn func() error) {
	err := fn()
	if err == nil {
		return
	}
	log.Warn("failed to mark outbox entry, retrying", zap.String("state", state), zap.Error(err))
	if err = fn(); err != nil {
		log.Error("outbox entry stuck in sending; it will be resent after restart",
			zap.String("state", state), zap.Error(err))
	}
}
