// Package notify delivers events to a user's live connection, best effort.
package notify

import (
	"context"

	"github.com/matheus3301/wabiz/internal/metrics"
	"github.com/matheus3301/wabiz/internal/registry"
	"go.uber.org/zap"
)

// Pusher writes one event to one connection or to all of them.
type Pusher interface {
	Push(ctx context.Context, connID, event string, data any) error
	Broadcast(ctx context.Context, event string, data any) int
}

// Result reports what happened to a notification. An unconnected user is not
// an error.
type Result struct {
	Delivered   bool
	ConnID      string
	Broadcasted int
}

// Notifier resolves users through the registry and pushes through a Pusher.
type Notifier struct {
	reg     *registry.Registry
	push    Pusher
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New creates a Notifier.
func New(reg *registry.Registry, push Pusher, m *metrics.Metrics, log *zap.Logger) *Notifier {
	return &Notifier{reg: reg, push: push, metrics: m, log: log.Named("notify")}
}

// Notify pushes event to the connection registered for userID. It never
// queues or retries.
func (n *Notifier) Notify(ctx context.Context, userID, event string, data any) Result {
	connID, ok := n.reg.Lookup(userID)
	if !ok {
		n.log.Debug("user not connected", zap.String("user_id", userID), zap.String("event", event))
		n.metrics.LivePushes.WithLabelValues(event, "not_connected").Inc()
		return Result{}
	}
	return n.deliver(ctx, userID, connID, event, data)
}

func (n *Notifier) deliver(ctx context.Context, userID, connID, event string, data any) Result {
	if err := n.push.Push(ctx, connID, event, data); err != nil {
		n.log.Warn("push failed",
			zap.String("user_id", userID),
			zap.String("conn_id", connID),
			zap.String("event", event),
			zap.Error(err))
		n.metrics.LivePushes.WithLabelValues(event, "error").Inc()
		return Result{ConnID: connID}
	}
	n.metrics.LivePushes.WithLabelValues(event, "ok").Inc()
	return Result{Delivered: true, ConnID: connID}
}

// NotifyOrBroadcast behaves like Notify when userID has a connection and
// otherwise sends event to every open connection.
func (n *Notifier) NotifyOrBroadcast(ctx context.Context, userID, event string, data any) Result {
	if connID, ok := n.reg.Lookup(userID); ok {
		return n.deliver(ctx, userID, connID, event, data)
	}
	sent := n.push.Broadcast(ctx, event, data)
	n.log.Debug("broadcast", zap.String("user_id", userID), zap.String("event", event), zap.Int("connections", sent))
	n.metrics.LivePushes.WithLabelValues(event, "broadcast").Add(float64(sent))
	return Result{Broadcasted: sent}
}
