// Package whatsapp provides the WhatsApp Cloud API transport for Okane:
// an outbound message sender and the inbound webhook.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okanebot/okane/common/retry"
	"github.com/okanebot/okane/internal/okane/platform"
)

// SenderConfig holds Cloud API credentials and endpoints.
type SenderConfig struct {
	// BaseURL is the Graph API root, overridable for tests.
	BaseURL string
	// PhoneNumberID is the business phone number this bot sends from.
	PhoneNumberID string
	// AccessToken is the Cloud API bearer token.
	AccessToken string
	// TemplateLanguage is the language code used for template messages.
	TemplateLanguage string
	Timeout          time.Duration
}

const defaultGraphURL = "https://graph.facebook.com/v19.0"

// Sender delivers outbound messages through the Cloud API.
// Safe for concurrent use.
type Sender struct {
	config SenderConfig
	http   *http.Client
	retry  retry.Config
}

// NewSender creates a Sender.
func NewSender(config SenderConfig) *Sender {
	if config.BaseURL == "" {
		config.BaseURL = defaultGraphURL
	}
	if config.TemplateLanguage == "" {
		config.TemplateLanguage = "en"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Sender{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		retry:  retry.DefaultConfig,
	}
}

// Send delivers one outbound message to the user identified by their phone
// number. Delivery is retried on transient failures.
func (s *Sender) Send(ctx context.Context, to string, out platform.Outbound) error {
	body, err := s.messageBody(to, out)
	if err != nil {
		return err
	}
	return retry.Do(ctx, s.retry, func() error {
		return s.post(ctx, body)
	})
}

// messageBody builds the Cloud API request document for an outbound message.
func (s *Sender) messageBody(to string, out platform.Outbound) (map[string]any, error) {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
	}

	switch out.Kind {
	case platform.KindText:
		body["type"] = "text"
		body["text"] = map[string]any{"body": out.Text}

	case platform.KindTemplate:
		params := make([]map[string]any, 0, len(out.TemplateParams))
		for _, value := range out.TemplateParams {
			params = append(params, map[string]any{"type": "text", "text": value})
		}
		body["type"] = "template"
		body["template"] = map[string]any{
			"name":     out.TemplateName,
			"language": map[string]any{"code": s.config.TemplateLanguage},
			"components": []map[string]any{
				{"type": "body", "parameters": params},
			},
		}

	case platform.KindImage:
		image := map[string]any{"link": out.ImageURL}
		if out.Caption != "" {
			image["caption"] = out.Caption
		}
		body["type"] = "image"
		body["image"] = image

	default:
		return nil, fmt.Errorf("whatsapp: unsupported message kind %q", out.Kind)
	}

	return body, nil
}

func (s *Sender) post(ctx context.Context, body map[string]any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("whatsapp: encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.config.BaseURL, s.config.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.AccessToken)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp: send message: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
