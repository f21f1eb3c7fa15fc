package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/matheus3301/wabiz/internal/webhook"
	"go.uber.org/zap"
)

func (h *handlers) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := webhook.VerifySubscription(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), h.VerifyToken)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !ok {
		h.logger.Warn("webhook verification rejected", zap.String("mode", q.Get("hub.mode")))
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "Error, wrong token")
		return
	}
	h.logger.Info("webhook verified")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// receiveWebhook always acknowledges; processing failures only reach the logs.
func (h *handlers) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
	if err != nil {
		h.logger.Warn("failed to read webhook body", zap.Error(err))
		h.Metrics.WebhookPayloads.WithLabelValues("unreadable").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	// A provider disconnect must not abort a payload halfway through.
	res := h.Pipeline.Process(context.WithoutCancel(r.Context()), body)
	h.logger.Debug("webhook processed",
		zap.Int("messages", res.Messages),
		zap.Int("statuses", res.Statuses),
		zap.Int("applied", res.Applied),
		zap.Int("failed", res.Failed),
		zap.Bool("malformed", res.Malformed))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
