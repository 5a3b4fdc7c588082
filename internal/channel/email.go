package channel

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// EmailAdapter отправляет уведомления по email через Resend API
//
// Идентификатором сообщения у провайдера служит email id из ответа Resend,
// по нему приходят delivery/read колбэки
type EmailAdapter struct {
	client *resend.Client
	from   string
}

// NewEmailAdapter создаёт адаптер email
func NewEmailAdapter(apiKey, from string) *EmailAdapter {
	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}

	return &EmailAdapter{
		client: client,
		from:   from,
	}
}

// Name возвращает имя канала
func (a *EmailAdapter) Name() string {
	return "email"
}

// Send отправляет email на указанный адрес
func (a *EmailAdapter) Send(ctx context.Context, recipient string, n *Notification) (string, error) {
	if a.client == nil {
		return "", fmt.Errorf("resend client not initialized: RESEND_API_KEY missing")
	}
	if recipient == "" {
		return "", fmt.Errorf("email recipient missing")
	}

	params := &resend.SendEmailRequest{
		From:    a.from,
		To:      []string{recipient},
		Subject: n.Subject,
		Text:    n.Body,
		Headers: map[string]string{
			// Идемпотентный ключ, провайдер отбрасывает повторную отправку
			"X-Entity-Ref-ID": n.DedupKey,
		},
	}

	result, err := a.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("resend send failed: %w", err)
	}

	return result.Id, nil
}

var _ Adapter = (*EmailAdapter)(nil)
