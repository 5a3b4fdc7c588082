package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramAdapter отправляет уведомления через Telegram Bot API (sendMessage)
//
// Получатель - chat_id пользователя. Идентификатором сообщения у провайдера
// служит message_id из ответа API
type TelegramAdapter struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewTelegramAdapter создаёт адаптер Telegram
func NewTelegramAdapter(token string) *TelegramAdapter {
	return &TelegramAdapter{
		token:   token,
		baseURL: "https://api.telegram.org",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name возвращает имя канала
func (a *TelegramAdapter) Name() string {
	return "telegram"
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Send отправляет текст уведомления в указанный chat
func (a *TelegramAdapter) Send(ctx context.Context, recipient string, n *Notification) (string, error) {
	if a.token == "" {
		return "", fmt.Errorf("telegram bot token missing")
	}
	if recipient == "" {
		return "", fmt.Errorf("telegram chat_id missing")
	}

	text := n.Body
	if n.Subject != "" {
		text = fmt.Sprintf("*%s*\n%s", n.Subject, n.Body)
	}

	payload := map[string]interface{}{
		"chat_id":    recipient,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", a.baseURL, a.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 300 {
		return "", &ProviderError{
			Channel:    a.Name(),
			StatusCode: resp.StatusCode,
			Message:    string(raw),
		}
	}

	var tgResp telegramResponse
	if err := json.Unmarshal(raw, &tgResp); err != nil {
		return "", fmt.Errorf("failed to decode telegram response: %w", err)
	}

	if !tgResp.OK {
		return "", &ProviderError{
			Channel:    a.Name(),
			StatusCode: resp.StatusCode,
			Message:    tgResp.Description,
		}
	}

	return strconv.FormatInt(tgResp.Result.MessageID, 10), nil
}

var _ Adapter = (*TelegramAdapter)(nil)
