// Package graph sends messages through the WhatsApp Business Cloud API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxErrorBody = 4 << 10

// Options configures a Client.
type Options struct {
	BaseURL       string
	APIVersion    string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client posts to /{version}/{phone-number-id}/messages.
type Client struct {
	http     *http.Client
	endpoint string
	token    string
	log      *zap.Logger
}

// SendResult is the provider's answer to an accepted send.
type SendResult struct {
	MessageID string
	WaID      string
}

// TemplateRef names an approved message template.
type TemplateRef struct {
	Name         string
	LanguageCode string
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Code    int
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("graph api: status %d code %d: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("graph api: status %d: %s", e.Status, e.Body)
}

// New creates a Client. A zero Timeout means 10s.
func New(opts Options, log *zap.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	endpoint := fmt.Sprintf("%s/%s/%s/messages",
		strings.TrimRight(opts.BaseURL, "/"), opts.APIVersion, opts.PhoneNumberID)
	return &Client{
		http:     hc,
		endpoint: endpoint,
		token:    opts.AccessToken,
		log:      log.Named("graph"),
	}
}

type sendRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type,omitempty"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type templateBody struct {
	Name     string `json:"name"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
}

type sendResponse struct {
	Contacts []struct {
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) (SendResult, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

// SendTemplate sends an approved template message.
func (c *Client) SendTemplate(ctx context.Context, to string, tpl TemplateRef) (SendResult, error) {
	tb := &templateBody{Name: tpl.Name}
	tb.Language.Code = tpl.LanguageCode
	if tb.Language.Code == "" {
		tb.Language.Code = "en_US"
	}
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         tb,
	})
}

func (c *Client) send(ctx context.Context, payload sendRequest) (SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal send request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("send %s: %w", payload.Type, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SendResult{}, fmt.Errorf("read send response: %w", err)
	}
	c.log.Debug("graph send",
		zap.String("type", payload.Type),
		zap.String("to", payload.To),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Body: truncate(string(raw))}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil {
			apiErr.Code = er.Error.Code
			apiErr.Message = er.Error.Message
		}
		return SendResult{}, apiErr
	}

	var sr sendResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return SendResult{}, fmt.Errorf("decode send response: %w", err)
	}
	var res SendResult
	if len(sr.Messages) > 0 {
		res.MessageID = sr.Messages[0].ID
	}
	if len(sr.Contacts) > 0 {
		res.WaID = sr.Contacts[0].WaID
	}
	return res, nil
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
