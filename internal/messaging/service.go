// Package messaging sends text messages on behalf of a user and records them.
package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/wabiz/internal/bus"
	"github.com/matheus3301/wabiz/internal/graph"
	"github.com/matheus3301/wabiz/internal/live"
	"github.com/matheus3301/wabiz/internal/metrics"
	"github.com/matheus3301/wabiz/internal/notify"
	"github.com/matheus3301/wabiz/internal/status"
	"github.com/matheus3301/wabiz/internal/store"
	"go.uber.org/zap"
)

// ErrInvalidRequest is returned when the recipient or text is empty.
var ErrInvalidRequest = errors.New("phone and message are required")

// TextSender is the provider side of a send.
type TextSender interface {
	SendText(ctx context.Context, to, body string) (graph.SendResult, error)
}

// Service records every attempted send, successful or not.
type Service struct {
	db       *store.DB
	sender   TextSender
	notifier *notify.Notifier
	bus      *bus.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates a Service.
func New(db *store.DB, sender TextSender, n *notify.Notifier, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		sender:   sender,
		notifier: n,
		bus:      b,
		metrics:  m,
		logger:   logger.Named("messaging"),
	}
}

// SendText sends text to the phone number to as senderID. When the provider
// rejects the send, the failed record is returned together with the error.
func (s *Service) SendText(ctx context.Context, senderID, to, text string) (*store.Message, error) {
	if to == "" || text == "" {
		return nil, ErrInvalidRequest
	}

	res, sendErr := s.sender.SendText(ctx, to, text)
	out := store.Outgoing{
		ConversationID:    to,
		SenderID:          senderID,
		Text:              text,
		MessageType:       "text",
		Status:            status.Sent,
		ProviderMessageID: res.MessageID,
	}
	if sendErr != nil {
		out.Status = status.Failed
		out.ErrorMessage = sendErr.Error()
	}

	msg, err := s.db.RecordOutgoing(ctx, out)
	s.metrics.StoreWrites.WithLabelValues("record_outgoing", metrics.Outcome(err)).Inc()
	if err != nil {
		if sendErr != nil {
			return nil, errors.Join(fmt.Errorf("send text: %w", sendErr), err)
		}
		return nil, fmt.Errorf("record sent message: %w", err)
	}

	if sendErr != nil {
		s.logger.Warn("send failed",
			zap.String("to", to),
			zap.String("sender_id", senderID),
			zap.String("message_id", msg.ID),
			zap.Error(sendErr))
		return msg, fmt.Errorf("send text: %w", sendErr)
	}

	s.logger.Info("message sent",
		zap.String("to", to),
		zap.String("message_id", msg.ID),
		zap.String("wamid", msg.ProviderMessageID))
	s.bus.Publish(bus.NewEvent(bus.KindMessageSent, msg))
	s.notifier.Notify(ctx, senderID, live.EventNewMessage, msg)
	return msg, nil
}
