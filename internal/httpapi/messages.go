package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/matheus3301/wabiz/internal/graph"
	"github.com/matheus3301/wabiz/internal/messaging"
	"github.com/matheus3301/wabiz/internal/outbox"
	"github.com/matheus3301/wabiz/internal/store"
	"go.uber.org/zap"
)

type sendMessageRequest struct {
	Phone   string `json:"phone" validate:"required,max=32"`
	Message string `json:"message" validate:"required,max=4096"`
}

type broadcastRequest struct {
	Phones       []string `json:"phones" validate:"required,min=1,dive,required,max=32"`
	TemplateName string   `json:"template_name" validate:"required"`
	LanguageCode string   `json:"language_code" validate:"omitempty,max=16"`
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxWebhookBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.Messaging.SendText(r.Context(), UserID(r.Context()), req.Phone, req.Message)
	if err != nil {
		var apiErr *graph.APIError
		switch {
		case errors.Is(err, messaging.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case msg != nil && errors.As(err, &apiErr):
			writeJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"message": msg,
				"error":   "Failed to send message",
				"details": apiErr.Body,
			})
		case msg != nil:
			writeJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"message": msg,
				"error":   "Failed to send message",
				"details": err.Error(),
			})
		default:
			h.logger.Error("send message failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to record message")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}

func limitParam(r *http.Request, def, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, ceiling)
}

func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.DB.ListMessages(r.Context(), r.URL.Query().Get("chatId"), limitParam(r, 50, 500))
	if err != nil {
		h.logger.Error("list messages failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handlers) legacyMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Events.Snapshot())
}

func (h *handlers) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.DB.ListConversations(r.Context(), limitParam(r, 100, 500))
	if err != nil {
		h.logger.Error("list conversations failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *handlers) createBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.Broadcasts.QueueBroadcast(r.Context(), outbox.Broadcast{
		SenderID:     UserID(r.Context()),
		TemplateName: req.TemplateName,
		LanguageCode: req.LanguageCode,
		Phones:       req.Phones,
	})
	if err != nil {
		h.logger.Error("queue broadcast failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "failed to queue broadcast")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     id,
		"total":  len(req.Phones),
		"status": "in-progress",
	})
}

func (h *handlers) listBroadcasts(w http.ResponseWriter, r *http.Request) {
	sums, err := h.DB.ListBroadcasts(r.Context(), limitParam(r, 50, 500))
	if err != nil {
		h.logger.Error("list broadcasts failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	out := make([]map[string]any, 0, len(sums))
	for _, s := range sums {
		out = append(out, map[string]any{
			"id":           s.ID,
			"templateName": s.TemplateName,
			"total":        s.Total,
			"sent":         s.Sent,
			"failed":       s.Failed,
			"pending":      s.Pending,
			"status":       s.Status(),
			"createdAt":    s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getBroadcast(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.DB.ListBroadcast(r.Context(), id)
	if err != nil {
		h.logger.Error("get broadcast failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "Broadcast not found")
		return
	}

	var sent, failed, pending int
	for _, e := range entries {
		switch e.Status {
		case store.OutboxSent:
			sent++
		case store.OutboxFailed:
			failed++
		default:
			pending++
		}
	}
	status := "completed"
	if pending > 0 {
		status = "in-progress"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           id,
		"templateName": entries[0].TemplateName,
		"languageCode": entries[0].LanguageCode,
		"total":        len(entries),
		"sent":         sent,
		"failed":       failed,
		"pending":      pending,
		"status":       status,
		"recipients":   entries,
	})
}
