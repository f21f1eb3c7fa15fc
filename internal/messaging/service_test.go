package messaging

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/matheus3301/wabiz/internal/bus"
	"github.com/matheus3301/wabiz/internal/graph"
	"github.com/matheus3301/wabiz/internal/metrics"
	"github.com/matheus3301/wabiz/internal/notify"
	"github.com/matheus3301/wabiz/internal/registry"
	"github.com/matheus3301/wabiz/internal/status"
	"github.com/matheus3301/wabiz/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSender struct{ mock.Mock }

func (m *mockSender) SendText(ctx context.Context, to, body string) (graph.SendResult, error) {
	args := m.Called(ctx, to, body)
	return args.Get(0).(graph.SendResult), args.Error(1)
}

type mockPusher struct{ mock.Mock }

func (m *mockPusher) Push(ctx context.Context, connID, event string, data any) error {
	return m.Called(ctx, connID, event, data).Error(0)
}

func (m *mockPusher) Broadcast(ctx context.Context, event string, data any) int {
	return m.Called(ctx, event, data).Int(0)
}

func newService(t *testing.T) (*Service, *store.DB, *mockSender, *mockPusher, *registry.Registry) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg := registry.New()
	sender := &mockSender{}
	pusher := &mockPusher{}
	m := metrics.New()
	n := notify.New(reg, pusher, m, zap.NewNop())
	return New(db, sender, n, bus.New(), m, zap.NewNop()), db, sender, pusher, reg
}

func TestSendTextSuccess(t *testing.T) {
	svc, db, sender, pusher, reg := newService(t)
	reg.Register("user-1", "conn-1")
	sender.On("SendText", mock.Anything, "15551234", "hello").Return(graph.SendResult{MessageID: "wamid.1"}, nil)
	pusher.On("Push", mock.Anything, "conn-1", "new_message", mock.Anything).Return(nil)

	msg, err := svc.SendText(context.Background(), "user-1", "15551234", "hello")
	require.NoError(t, err)
	assert.Equal(t, status.Sent, msg.Status)
	assert.Equal(t, "wamid.1", msg.ProviderMessageID)
	assert.Equal(t, store.DirectionOutgoing, msg.Direction)

	stored, err := db.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.SenderID)
	assert.Equal(t, "15551234", stored.ReceiverID)
	pusher.AssertExpectations(t)
}

func TestSendTextProviderRejects(t *testing.T) {
	svc, db, sender, pusher, _ := newService(t)
	apiErr := &graph.APIError{Status: 400, Message: "bad number"}
	sender.On("SendText", mock.Anything, "x", "hi").Return(graph.SendResult{}, apiErr)

	msg, err := svc.SendText(context.Background(), "user-1", "x", "hi")
	require.Error(t, err)
	var got *graph.APIError
	assert.True(t, errors.As(err, &got))
	require.NotNil(t, msg)
	assert.Equal(t, status.Failed, msg.Status)
	assert.Empty(t, msg.ProviderMessageID)

	stored, err := db.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Failed, stored.Status)
	pusher.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendTextRequiresPhoneAndMessage(t *testing.T) {
	svc, _, sender, _, _ := newService(t)
	_, err := svc.SendText(context.Background(), "u", "", "hi")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.SendText(context.Background(), "u", "123", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}
