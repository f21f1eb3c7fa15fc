package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/matheus3301/wabiz/internal/bus"
	"github.com/matheus3301/wabiz/internal/metrics"
	"github.com/matheus3301/wabiz/internal/registry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	hub *Hub
	reg *registry.Registry
	bus *bus.Bus
	m   *metrics.Metrics
	url string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{reg: registry.New(), bus: bus.New(), m: metrics.New()}
	f.hub = NewHub(f.reg, f.bus, f.m, zap.NewNop())
	srv := httptest.NewServer(f.hub)
	t.Cleanup(func() {
		f.hub.Close()
		srv.Close()
	})
	f.url = srv.URL
	return f
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var fr Frame
	require.NoError(t, wsjson.Read(ctx, c, &fr))
	return fr
}

func register(t *testing.T, c *websocket.Conn, userID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, map[string]any{
		"event": EventRegister,
		"data":  map[string]string{"userId": userID},
	}))
	fr := readFrame(t, c)
	require.Equal(t, EventRegistered, fr.Event)
	assert.JSONEq(t, `{"userId":"`+userID+`"}`, string(fr.Data))
}

func TestRegisterAndPush(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	register(t, c, "user-1")

	connID, ok := f.reg.Lookup("user-1")
	require.True(t, ok)

	err := f.hub.Push(context.Background(), connID, EventNewMessage, map[string]string{"text": "hi"})
	require.NoError(t, err)

	fr := readFrame(t, c)
	assert.Equal(t, EventNewMessage, fr.Event)
	var data map[string]string
	require.NoError(t, json.Unmarshal(fr.Data, &data))
	assert.Equal(t, "hi", data["text"])
}

func TestDisconnectUnregisters(t *testing.T) {
	f := newFixture(t)
	events, unsub := f.bus.Subscribe("live.", 8)
	defer unsub()

	c := f.dial(t)
	register(t, c, "user-1")
	require.Equal(t, 1, f.reg.Len())

	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool {
		return f.reg.Len() == 0 && f.hub.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(0), testutil.ToFloat64(f.m.LiveConnections))

	var kinds []string
	for len(kinds) < 2 {
		select {
		case evt := <-events:
			kinds = append(kinds, evt.Kind)
		case <-time.After(5 * time.Second):
			t.Fatalf("got %v, want registered and closed events", kinds)
		}
	}
	assert.Equal(t, []string{bus.KindLiveRegistered, bus.KindLiveClosed}, kinds)
}

func TestSecondRegistrationWins(t *testing.T) {
	f := newFixture(t)
	first := f.dial(t)
	register(t, first, "user-1")
	firstID, _ := f.reg.Lookup("user-1")

	second := f.dial(t)
	register(t, second, "user-1")
	secondID, _ := f.reg.Lookup("user-1")
	require.NotEqual(t, firstID, secondID)

	// Closing the superseded connection leaves the new binding alone.
	require.NoError(t, first.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	got, ok := f.reg.Lookup("user-1")
	assert.True(t, ok)
	assert.Equal(t, secondID, got)
}

func TestRegisterWithoutUserIDIsIgnored(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	ctx := context.Background()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("not json")))
	require.NoError(t, wsjson.Write(ctx, c, map[string]any{"event": EventRegister, "data": map[string]string{}}))

	// The connection survives both frames and can still register.
	register(t, c, "user-2")
	assert.Equal(t, 1, f.reg.Len())
}

func TestPushUnknownConnection(t *testing.T) {
	f := newFixture(t)
	err := f.hub.Push(context.Background(), "nope", EventNewMessage, nil)
	assert.True(t, errors.Is(err, ErrUnknownConnection))
}

func TestBroadcast(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t)
	b := f.dial(t)
	require.Eventually(t, func() bool { return f.hub.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	n := f.hub.Broadcast(context.Background(), EventNewMessage, map[string]string{"text": "all"})
	assert.Equal(t, 2, n)
	assert.Equal(t, EventNewMessage, readFrame(t, a).Event)
	assert.Equal(t, EventNewMessage, readFrame(t, b).Event)
}

func TestCloseRejectsNewConnections(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	f.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
