// Package channel содержит адаптеры провайдеров доставки уведомлений.
package channel

import (
	"context"
	"errors"
	"fmt"
)

// Notification - содержимое уведомления, подготовленное диспетчером
type Notification struct {
	EventID  int64
	AlertID  int64
	Subject  string
	Body     string
	Priority string

	// DedupKey - идемпотентный ключ отправки (evt:<event_id>:<channel>:<recipient>)
	// Передаётся провайдеру где это поддерживается
	DedupKey string
}

// Adapter определяет унифицированный интерфейс провайдера канала доставки
//
// Send возвращает идентификатор сообщения у провайдера (если провайдер его
// выдаёт, иначе пустую строку). По этому идентификатору колбэки провайдера
// сопоставляются с записями журнала доставки
type Adapter interface {
	// Name возвращает имя канала ("telegram", "email", "webhook", ...)
	Name() string

	// Send отправляет уведомление получателю
	Send(ctx context.Context, recipient string, n *Notification) (providerMessageID string, err error)
}

// ProviderError - ошибка ответа провайдера с HTTP статусом
type ProviderError struct {
	Channel    string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider returned status %d: %s", e.Channel, e.StatusCode, e.Message)
}

// Permanent возвращает true если повторная отправка бессмысленна
// (4xx кроме 429: невалидный получатель, отозванный токен и т.п.)
func (e *ProviderError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 429
}

// IsPermanent проверяет, является ли ошибка отправки постоянной
func IsPermanent(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Permanent()
	}
	return false
}

// StatusCode извлекает HTTP статус из ошибки отправки (0 если нет)
func StatusCode(err error) int {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.StatusCode
	}
	return 0
}
