package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okanebot/okane/internal/okane/platform"
)

func newTestSender(t *testing.T, handler http.HandlerFunc) *Sender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSender(SenderConfig{
		BaseURL:       srv.URL,
		PhoneNumberID: "15550001111",
		AccessToken:   "token-123",
	})
}

func TestSenderTextMessage(t *testing.T) {
	var got map[string]any
	sender := newTestSender(t, func(rw http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/15550001111/messages", req.URL.Path)
		assert.Equal(t, "Bearer token-123", req.Header.Get("Authorization"))
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		rw.WriteHeader(http.StatusOK)
	})

	err := sender.Send(context.Background(), "40700000000", platform.Outbound{
		Kind: platform.KindText,
		Text: "You spent $42.50 this week.",
	})

	require.NoError(t, err)
	assert.Equal(t, "whatsapp", got["messaging_product"])
	assert.Equal(t, "40700000000", got["to"])
	assert.Equal(t, "text", got["type"])
	text := got["text"].(map[string]any)
	assert.Equal(t, "You spent $42.50 this week.", text["body"])
}

func TestSenderTemplateMessage(t *testing.T) {
	var got map[string]any
	sender := newTestSender(t, func(rw http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		rw.WriteHeader(http.StatusOK)
	})

	err := sender.Send(context.Background(), "40700000000", platform.Outbound{
		Kind:           platform.KindTemplate,
		TemplateName:   "period_summary",
		TemplateParams: []string{"this_week", "42.50", "7"},
	})

	require.NoError(t, err)
	assert.Equal(t, "template", got["type"])
	tmpl := got["template"].(map[string]any)
	assert.Equal(t, "period_summary", tmpl["name"])
	components := tmpl["components"].([]any)
	require.Len(t, components, 1)
	params := components[0].(map[string]any)["parameters"].([]any)
	require.Len(t, params, 3)
	assert.Equal(t, "this_week", params[0].(map[string]any)["text"])
}

func TestSenderImageMessage(t *testing.T) {
	var got map[string]any
	sender := newTestSender(t, func(rw http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		rw.WriteHeader(http.StatusOK)
	})

	err := sender.Send(context.Background(), "40700000000", platform.Outbound{
		Kind:     platform.KindImage,
		ImageURL: "https://quickchart.io/chart/render/pie",
		Caption:  "Spending by category",
	})

	require.NoError(t, err)
	assert.Equal(t, "image", got["type"])
	image := got["image"].(map[string]any)
	assert.Equal(t, "https://quickchart.io/chart/render/pie", image["link"])
	assert.Equal(t, "Spending by category", image["caption"])
}

func TestSenderRetriesTransientFailures(t *testing.T) {
	attempts := 0
	sender := newTestSender(t, func(rw http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 2 {
			rw.WriteHeader(http.StatusBadGateway)
			return
		}
		rw.WriteHeader(http.StatusOK)
	})
	sender.retry.InitialDelay = 1

	err := sender.Send(context.Background(), "40700000000", platform.Outbound{
		Kind: platform.KindText,
		Text: "hi",
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWebhookVerification(t *testing.T) {
	hook := NewWebhook(WebhookConfig{VerifyToken: "secret"}, nil)
	srv := httptest.NewServer(hook.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=challenge-42")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "challenge-42", string(body))
}

func TestWebhookVerificationRejectsBadToken(t *testing.T) {
	hook := NewWebhook(WebhookConfig{VerifyToken: "secret"}, nil)
	srv := httptest.NewServer(hook.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=x")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebhookDeliversTextMessages(t *testing.T) {
	var received []Inbound
	hook := NewWebhook(WebhookConfig{VerifyToken: "secret"}, func(_ context.Context, msg Inbound) {
		received = append(received, msg)
	})
	srv := httptest.NewServer(hook.Router())
	defer srv.Close()

	payload := `{
		"entry": [{
			"changes": [{
				"value": {
					"messages": [
						{"from": "40700000000", "type": "text", "text": {"body": "spent 12.50 on lunch"}},
						{"from": "40700000000", "type": "image"}
					]
				}
			}]
		}]
	}`
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, received, 1, "non-text messages are skipped")
	assert.Equal(t, "40700000000", received[0].From)
	assert.Equal(t, "spent 12.50 on lunch", received[0].Text)
}

func TestWebhookAcknowledgesUndecodablePayload(t *testing.T) {
	hook := NewWebhook(WebhookConfig{VerifyToken: "secret"}, nil)
	srv := httptest.NewServer(hook.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode, "redelivery storms are worse than a dropped event")
}
