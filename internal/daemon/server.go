package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/matheus3301/wabiz/internal/api"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// AdminServer serves the admin gRPC service on the instance's unix socket.
type AdminServer struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewAdminServer binds socketPath, replacing a stale socket left by a crashed daemon.
func NewAdminServer(socketPath string, svc api.AdminServer, logger *zap.Logger) (*AdminServer, error) {
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	api.Register(srv, svc)

	return &AdminServer{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger.Named("grpc"),
	}, nil
}

// Start serves until Stop. Blocks.
func (s *AdminServer) Start() error {
	s.logger.Info("admin server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop drains in-flight calls and removes the socket file. Open WatchEvents
// streams end when ctx expires.
func (s *AdminServer) Stop(ctx context.Context) {
	s.logger.Info("admin server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	_ = os.Remove(s.socketPath)
}
