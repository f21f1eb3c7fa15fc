package api

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/matheus3301/wabiz/internal/bus"
	"github.com/matheus3301/wabiz/internal/eventlog"
	"github.com/matheus3301/wabiz/internal/graph"
	"github.com/matheus3301/wabiz/internal/live"
	"github.com/matheus3301/wabiz/internal/messaging"
	"github.com/matheus3301/wabiz/internal/registry"
	"github.com/matheus3301/wabiz/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// OperatorID is the sender recorded for sends issued over the admin socket
// without an explicit senderId.
const OperatorID = "operator"

// watchBuffer is the per-stream bus subscription size.
const watchBuffer = 64

// Info is the static part of GetStatus.
type Info struct {
	Instance      string
	ListenAddr    string
	PhoneNumberID string
	DisplayPhone  string
}

// Service implements AdminServer.
type Service struct {
	info      Info
	startedAt time.Time
	events    *eventlog.Log
	registry  *registry.Registry
	hub       *live.Hub
	db        *store.DB
	messaging *messaging.Service
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewService creates the admin service.
func NewService(info Info, events *eventlog.Log, reg *registry.Registry, hub *live.Hub, db *store.DB, msg *messaging.Service, b *bus.Bus, logger *zap.Logger) *Service {
	return &Service{
		info:      info,
		startedAt: time.Now(),
		events:    events,
		registry:  reg,
		hub:       hub,
		db:        db,
		messaging: msg,
		bus:       b,
		logger:    logger.Named("admin"),
	}
}

func (s *Service) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	count, err := s.db.MessageCount(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(Status{
		Instance:        s.info.Instance,
		PID:             os.Getpid(),
		UptimeMs:        time.Since(s.startedAt).Milliseconds(),
		ListenAddr:      s.info.ListenAddr,
		PhoneNumberID:   s.info.PhoneNumberID,
		DisplayPhone:    s.info.DisplayPhone,
		EventLogLen:     s.events.Len(),
		EventLogCap:     s.events.Cap(),
		RegisteredUsers: s.registry.Len(),
		OpenSockets:     s.hub.Len(),
		MessageCount:    count,
		BusDropped:      s.bus.Dropped(),
	})
}

func (s *Service) ListEvents(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListEventsRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	entries := s.events.Snapshot()
	if req.Limit > 0 && req.Limit < len(entries) {
		entries = entries[len(entries)-req.Limit:]
	}
	return encode(entries)
}

// Connection is one ListConnections item.
type Connection struct {
	UserID string `json:"userId"`
	ConnID string `json:"connId"`
}

func (s *Service) ListConnections(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap := s.registry.Snapshot()
	out := make([]Connection, 0, len(snap))
	for user, conn := range snap {
		out = append(out, Connection{UserID: user, ConnID: conn})
	}
	return encode(out)
}

func (s *Service) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListMessagesRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	msgs, err := s.db.ListMessages(ctx, req.ChatID, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(msgs)
}

func (s *Service) SendText(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SendTextRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SenderID == "" {
		req.SenderID = OperatorID
	}
	msg, err := s.messaging.SendText(ctx, req.SenderID, req.To, req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(msg)
}

func (s *Service) WatchEvents(in *structpb.Struct, stream grpc.ServerStream) error {
	var req WatchRequest
	if err := FromStruct(in, &req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	ch, cancel := s.bus.Subscribe(req.Namespace, watchBuffer)
	defer cancel()

	s.logger.Debug("watch started", zap.String("namespace", req.Namespace))
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-ch:
			out, err := ToStruct(BusEvent{Kind: evt.Kind, Timestamp: evt.Timestamp, Payload: evt.Payload})
			if err != nil {
				s.logger.Warn("skipping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		}
	}
}

func encode(v any) (*structpb.Struct, error) {
	s, err := ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func toStatus(err error) error {
	var apiErr *graph.APIError
	switch {
	case errors.Is(err, messaging.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrStorageUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.As(err, &apiErr):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
