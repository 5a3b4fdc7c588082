package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// WebhookAdapter отправляет уведомления HTTP POST'ом на URL получателя
//
// Webhook не выдаёт идентификатор сообщения, поэтому Send возвращает
// пустой provider id. Статус 2xx от endpoint'а считается доставкой
type WebhookAdapter struct {
	httpClient *http.Client
}

// webhookPayload - тело POST запроса на endpoint получателя
type webhookPayload struct {
	EventID   int64     `json:"event_id"`
	AlertID   int64     `json:"alert_id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Priority  string    `json:"priority"`
	DedupKey  string    `json:"dedup_key"`
	Timestamp time.Time `json:"timestamp"`
}

// NewWebhookAdapter создаёт адаптер webhook
func NewWebhookAdapter(timeout time.Duration) *WebhookAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookAdapter{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name возвращает имя канала
func (a *WebhookAdapter) Name() string {
	return "webhook"
}

// Send отправляет уведомление на webhook URL получателя
func (a *WebhookAdapter) Send(ctx context.Context, recipient string, n *Notification) (string, error) {
	parsed, err := url.Parse(recipient)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("invalid webhook URL: %q", recipient)
	}

	body, err := json.Marshal(webhookPayload{
		EventID:   n.EventID,
		AlertID:   n.AlertID,
		Subject:   n.Subject,
		Body:      n.Body,
		Priority:  n.Priority,
		DedupKey:  n.DedupKey,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dedup-Key", n.DedupKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &ProviderError{
			Channel:    a.Name(),
			StatusCode: resp.StatusCode,
			Message:    string(raw),
		}
	}

	return "", nil
}

var _ Adapter = (*WebhookAdapter)(nil)
