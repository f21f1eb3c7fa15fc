package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/wabiz/internal/admin"
	"github.com/matheus3301/wabiz/internal/config"
	"github.com/matheus3301/wabiz/internal/instance"
	"github.com/matheus3301/wabiz/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

const inboundPayload = `{"entry":[{"changes":[{"value":{
  "contacts":[{"profile":{"name":"Ana"},"wa_id":"15550001"}],
  "messages":[{"from":"15550001","id":"wamid.in1","timestamp":"1700000000","type":"text","text":{"body":"hi"}}]
}}]}]}`

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

// setup writes an instance config pointing at a fake Graph API and returns
// the module params.
func setup(t *testing.T) Params {
	t.Helper()
	// Short path to stay under the unix socket path limit.
	home, err := os.MkdirTemp("/tmp", "wabiz-d-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(home) })
	t.Setenv("WABIZ_HOME", home)

	graphSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"contacts":[{"wa_id":"15550001"}],"messages":[{"id":"wamid.out1"}]}`))
	}))
	t.Cleanup(graphSrv.Close)

	cfg := config.Default()
	cfg.VerifyToken = "verify"
	cfg.Auth.JWTSecret = "secret"
	cfg.Graph.BaseURL = graphSrv.URL
	cfg.Graph.AccessToken = "token"
	cfg.Graph.PhoneNumberID = "pn-1"
	require.NoError(t, config.Save(instance.ConfigPath("test"), cfg))

	return Params{Instance: "test", ListenAddr: freeAddr(t)}
}

func TestDaemonLifecycle(t *testing.T) {
	p := setup(t)

	app := fxtest.New(t, Module(p), fx.NopLogger)
	app.RequireStart()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := admin.New(instance.SocketPath("test"))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", st.Instance)
	assert.Equal(t, 100, st.EventLogCap)

	// Verification handshake and inbound webhook on the public listener.
	resp, err := http.Get("http://" + p.ListenAddr + "/webhook?hub.mode=subscribe&hub.verify_token=verify&hub.challenge=42")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post("http://"+p.ListenAddr+"/webhook", "application/json", strings.NewReader(inboundPayload))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	msgs, err := c.Messages(ctx, "15550001", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)

	sent, err := c.SendText(ctx, "15550001", "hello back")
	require.NoError(t, err)
	assert.Equal(t, "wamid.out1", sent.ProviderMessageID)

	events, err := c.Events(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	app.RequireStop()

	_, err = os.Stat(instance.SocketPath("test"))
	assert.True(t, os.IsNotExist(err), "socket should be removed on stop")

	lk, err := lock.Acquire(instance.Dir("test"))
	require.NoError(t, err, "lock should be released on stop")
	_ = lk.Release()
}

func TestDaemonRefusesHeldInstance(t *testing.T) {
	p := setup(t)

	lk, err := lock.Acquire(instance.Dir("test"))
	require.NoError(t, err)
	defer func() { _ = lk.Release() }()

	app := fx.New(Module(p), fx.NopLogger)
	err = app.Err()
	require.Error(t, err)

	var held *lock.HeldError
	assert.True(t, errors.As(err, &held), "err = %v", err)
}

func TestDaemonRejectsIncompleteConfig(t *testing.T) {
	home, err := os.MkdirTemp("/tmp", "wabiz-d-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(home) })
	t.Setenv("WABIZ_HOME", home)
	t.Setenv("WABIZ_VERIFY_TOKEN", "")

	require.NoError(t, config.Save(filepath.Join(instance.Dir("bare"), "config.toml"), config.Default()))

	app := fx.New(Module(Params{Instance: "bare"}), fx.NopLogger)
	assert.ErrorContains(t, app.Err(), "verify_token is required")
}
