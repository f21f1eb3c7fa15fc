// Package admin is the client side of the daemon's admin socket, shared by
// wabizctl and wabiztui.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/wabiz/internal/api"
	"github.com/matheus3301/wabiz/internal/eventlog"
	"github.com/matheus3301/wabiz/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to a daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's unix socket. The connection is lazy; the first
// call fails if no daemon is listening.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req any, reply *structpb.Struct) error {
	var in any = &emptypb.Empty{}
	if req != nil {
		s, err := api.ToStruct(req)
		if err != nil {
			return err
		}
		in = s
	}
	return c.conn.Invoke(ctx, method, in, reply)
}

// Status returns the daemon's runtime status.
func (c *Client) Status(ctx context.Context) (*api.Status, error) {
	reply := &structpb.Struct{}
	if err := c.call(ctx, api.MethodGetStatus, nil, reply); err != nil {
		return nil, err
	}
	var st api.Status
	if err := api.FromStruct(reply, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Events returns the newest limit buffered webhook events, oldest first.
func (c *Client) Events(ctx context.Context, limit int) ([]eventlog.Entry, error) {
	reply := &structpb.Struct{}
	if err := c.call(ctx, api.MethodListEvents, api.ListEventsRequest{Limit: limit}, reply); err != nil {
		return nil, err
	}
	var out []eventlog.Entry
	return out, api.FromItems(reply, &out)
}

// Connections lists registered users and their connection ids.
func (c *Client) Connections(ctx context.Context) ([]api.Connection, error) {
	reply := &structpb.Struct{}
	if err := c.call(ctx, api.MethodListConnections, nil, reply); err != nil {
		return nil, err
	}
	var out []api.Connection
	return out, api.FromItems(reply, &out)
}

// Messages lists the latest messages of chatID ("" = every conversation).
func (c *Client) Messages(ctx context.Context, chatID string, limit int) ([]store.Message, error) {
	reply := &structpb.Struct{}
	if err := c.call(ctx, api.MethodListMessages, api.ListMessagesRequest{ChatID: chatID, Limit: limit}, reply); err != nil {
		return nil, err
	}
	var out []store.Message
	return out, api.FromItems(reply, &out)
}

// SendText sends text to the phone number to as the operator.
func (c *Client) SendText(ctx context.Context, to, text string) (*store.Message, error) {
	reply := &structpb.Struct{}
	if err := c.call(ctx, api.MethodSendText, api.SendTextRequest{To: to, Text: text}, reply); err != nil {
		return nil, err
	}
	var msg store.Message
	if err := api.FromStruct(reply, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EventStream receives bus events from WatchEvents.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the daemon ends the stream.
func (s *EventStream) Recv() (*api.BusEvent, error) {
	reply := &structpb.Struct{}
	if err := s.stream.RecvMsg(reply); err != nil {
		return nil, err
	}
	var evt api.BusEvent
	if err := api.FromStruct(reply, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// Watch streams bus events whose kind starts with namespace. Cancel ctx to stop.
func (c *Client) Watch(ctx context.Context, namespace string) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, api.WatchStreamDesc, api.MethodWatchEvents)
	if err != nil {
		return nil, fmt.Errorf("open watch: %w", err)
	}
	req, err := api.ToStruct(api.WatchRequest{Namespace: namespace})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("close watch send: %w", err)
	}
	return &EventStream{stream: stream}, nil
}

// IsEOF reports whether err marks a cleanly finished stream.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
