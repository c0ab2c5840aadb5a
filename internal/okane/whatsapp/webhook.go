package whatsapp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Inbound is one user message received through the webhook.
type Inbound struct {
	// From is the sender's phone number, used as the ledger owner ID.
	From string
	Text string
}

// MessageHandler processes incoming user messages.
type MessageHandler func(ctx context.Context, msg Inbound)

// WebhookConfig holds webhook server configuration.
type WebhookConfig struct {
	// VerifyToken must match the token configured in the Meta app's
	// webhook subscription.
	VerifyToken string
}

// Webhook receives Cloud API event notifications. Verification handshakes
// are answered inline; messages are dispatched to the handler.
type Webhook struct {
	config  WebhookConfig
	handler MessageHandler
}

// NewWebhook creates a Webhook delivering messages to handler.
func NewWebhook(config WebhookConfig, handler MessageHandler) *Webhook {
	return &Webhook{config: config, handler: handler}
}

// Router builds the HTTP routes for the webhook endpoint.
func (w *Webhook) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/webhook", w.verify)
	r.Post("/webhook", w.receive)
	return r
}

// verify answers the Meta webhook subscription handshake.
func (w *Webhook) verify(rw http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != w.config.VerifyToken {
		slog.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
		http.Error(rw, "verification failed", http.StatusForbidden)
		return
	}
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte(q.Get("hub.challenge")))
}

// notification mirrors the slice of the Cloud API event payload we consume.
type notification struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// receive acknowledges the notification immediately and hands text messages
// to the handler. The Cloud API redelivers on non-2xx responses, so even
// undecodable payloads are acknowledged once logged.
func (w *Webhook) receive(rw http.ResponseWriter, req *http.Request) {
	var payload notification
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		slog.Warn("undecodable webhook payload", "err", err)
		rw.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text.Body == "" {
					continue
				}
				if w.handler != nil {
					w.handler(req.Context(), Inbound{From: msg.From, Text: msg.Text.Body})
				}
			}
		}
	}
	rw.WriteHeader(http.StatusOK)
}
