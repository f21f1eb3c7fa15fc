// Package httpapi is the gateway's public HTTP surface: the provider webhook,
// the websocket endpoint, and the authenticated REST routes.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/matheus3301/wabiz/internal/eventlog"
	"github.com/matheus3301/wabiz/internal/ingest"
	"github.com/matheus3301/wabiz/internal/messaging"
	"github.com/matheus3301/wabiz/internal/metrics"
	"github.com/matheus3301/wabiz/internal/outbox"
	"github.com/matheus3301/wabiz/internal/store"
	"go.uber.org/zap"
)

// MaxWebhookBody caps a webhook POST body.
const MaxWebhookBody = 1 << 20

// Deps are the components the handlers call into.
type Deps struct {
	VerifyToken string
	JWTSecret   []byte
	Pipeline    *ingest.Pipeline
	Events      *eventlog.Log
	DB          *store.DB
	Messaging   *messaging.Service
	Broadcasts  *outbox.Sender
	Live        http.Handler
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

type handlers struct {
	Deps
	validate *validator.Validate
	logger   *zap.Logger
}

// NewRouter builds the chi router.
func NewRouter(d Deps) http.Handler {
	h := &handlers{
		Deps:     d,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   d.Logger.Named("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(instrument(d.Metrics))

	r.Get("/health", h.health)
	r.Handle("/metrics", d.Metrics.Handler())

	r.Get("/webhook", h.verifyWebhook)
	r.Post("/webhook", h.receiveWebhook)
	r.Handle("/ws", d.Live)

	r.Group(func(r chi.Router) {
		r.Use(requireUser(d.JWTSecret, h.logger))
		r.Post("/send-message", h.sendMessage)
		r.Get("/messages", h.listMessages)
		r.Get("/messages/legacy", h.legacyMessages)
		r.Get("/conversations", h.listConversations)
		r.Post("/broadcasts", h.createBroadcast)
		r.Get("/broadcasts", h.listBroadcasts)
		r.Get("/broadcasts/{id}", h.getBroadcast)
	})
	return r
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Server owns the listener for the public router.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("http"),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("http server listening", zap.String("addr", lis.Addr().String()))
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
