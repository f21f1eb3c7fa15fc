// Package api implements the admin gRPC service served on the instance's
// unix socket. Messages are google.protobuf.Struct documents whose shape is
// given by the Go types in this package.
package api

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wabiz.admin.v1.Admin"

// Full method names, as used by clients.
const (
	MethodGetStatus       = "/" + ServiceName + "/GetStatus"
	MethodListEvents      = "/" + ServiceName + "/ListEvents"
	MethodListConnections = "/" + ServiceName + "/ListConnections"
	MethodListMessages    = "/" + ServiceName + "/ListMessages"
	MethodSendText        = "/" + ServiceName + "/SendText"
	MethodWatchEvents     = "/" + ServiceName + "/WatchEvents"
)

// Status is the GetStatus response.
type Status struct {
	Instance        string `json:"instance"`
	PID             int    `json:"pid"`
	UptimeMs        int64  `json:"uptimeMs"`
	ListenAddr      string `json:"listenAddr"`
	PhoneNumberID   string `json:"phoneNumberId"`
	DisplayPhone    string `json:"displayPhone"`
	EventLogLen     int    `json:"eventLogLen"`
	EventLogCap     int    `json:"eventLogCap"`
	RegisteredUsers int    `json:"registeredUsers"`
	OpenSockets     int    `json:"openSockets"`
	MessageCount    int    `json:"messageCount"`
	BusDropped      uint64 `json:"busDropped"`
}

// ListEventsRequest limits ListEvents to the newest Limit entries (0 = all).
type ListEventsRequest struct {
	Limit int `json:"limit"`
}

// ListMessagesRequest mirrors GET /messages.
type ListMessagesRequest struct {
	ChatID string `json:"chatId"`
	Limit  int    `json:"limit"`
}

// SendTextRequest sends as SenderID ("operator" when empty).
type SendTextRequest struct {
	SenderID string `json:"senderId"`
	To       string `json:"to"`
	Text     string `json:"text"`
}

// WatchRequest selects bus events by kind prefix ("" = all).
type WatchRequest struct {
	Namespace string `json:"namespace"`
}

// BusEvent is one WatchEvents stream item.
type BusEvent struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// AdminServer is implemented by Service.
type AdminServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListConnections(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendText(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, grpc.ServerStream) error
}

// Register attaches srv to s.
func Register(s *grpc.Server, srv AdminServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unary[Req any](call func(AdminServer, context.Context, *Req) (*structpb.Struct, error), method string) grpc.MethodDesc {
	name := method[len("/"+ServiceName+"/"):]
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AdminServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(AdminServer), ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(AdminServer.GetStatus, MethodGetStatus),
		unary(AdminServer.ListEvents, MethodListEvents),
		unary(AdminServer.ListConnections, MethodListConnections),
		unary(AdminServer.ListMessages, MethodListMessages),
		unary(AdminServer.SendText, MethodSendText),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "WatchEvents",
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(AdminServer).WatchEvents(in, stream)
			},
			ServerStreams: true,
		},
	},
	Metadata: "wabiz/admin/v1/admin.proto",
}

// WatchStreamDesc is the client-side descriptor for WatchEvents.
var WatchStreamDesc = &grpc.StreamDesc{StreamName: "WatchEvents", ServerStreams: true}
