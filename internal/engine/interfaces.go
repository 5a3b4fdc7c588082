package engine

import (
	"context"
	"time"

	"alertd/internal/channel"
	"alertd/internal/models"
	"alertd/internal/repository"
)

// Интерфейсы хранилища, которые потребляет движок.
// Реализации - репозитории на database/sql, в тестах - моки

// AlertStore - доступ к алертам
type AlertStore interface {
	GetActive() ([]*models.Alert, error)
	GetByID(id int64) (*models.Alert, error)
	MarkEvaluated(id int64, evaluatedAt time.Time) error
	TriggerAtomic(alert *models.Alert, now, dayStart time.Time, triggerValue, evalResult map[string]interface{}) (*models.AlertEvent, bool, error)
	ExpireDue(now time.Time) (int64, error)
}

// EventStore - доступ к событиям алертов
type EventStore interface {
	ListSnoozeElapsed(now time.Time, limit int) ([]*models.AlertEvent, error)
	ClearElapsedSnoozes(now time.Time) (int64, error)
	ListUnnotified(olderThan time.Time, limit int) ([]*models.AlertEvent, error)
	SetNotificationResult(id int64, sent bool, channels []string, ids map[string]string) error
}

// PreferenceStore - доступ к настройкам доставки
type PreferenceStore interface {
	GetByUserID(userID int64) (*models.NotificationPreference, error)
}

// LogStore - доступ к журналу доставки
type LogStore interface {
	CreatePending(entry *models.NotificationLogEntry, maxPerHour int, windowStart time.Time) error
	MarkSent(id int64, providerMessageID string, statusCode, attempts int, sentAt time.Time) error
	MarkFailed(id int64, statusCode int, errorMessage string, attempts int) error
	GetByProviderMessageID(providerMessageID string) (*models.NotificationLogEntry, error)
	MarkDelivered(providerMessageID string, at time.Time) error
	MarkRead(providerMessageID string, at time.Time) error
	SetClicked(providerMessageID string) error
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// Sender - отправка уведомления через адаптер канала
type Sender interface {
	Send(ctx context.Context, channelName, recipient string, n *channel.Notification) (string, error)
}

// Broadcaster - рассылка событий движка подписчикам дашборда
type Broadcaster interface {
	Broadcast(message []byte)
}

// Проверка реализации интерфейсов на этапе компиляции
var (
	_ AlertStore      = (*repository.AlertRepository)(nil)
	_ EventStore      = (*repository.EventRepository)(nil)
	_ PreferenceStore = (*repository.PreferenceRepository)(nil)
	_ LogStore        = (*repository.NotificationLogRepository)(nil)
	_ Sender          = (*channel.Registry)(nil)
)
