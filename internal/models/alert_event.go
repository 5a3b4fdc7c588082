package models

import "time"

// AlertEvent представляет одно конкретное срабатывание алерта.
//
// Создается Trigger Gate атомарно с обновлением счетчиков алерта.
// После создания неизменяем, кроме полей жизненного цикла
// (acknowledge/snooze/resolve) и результата доставки уведомлений.
type AlertEvent struct {
	ID      int64 `json:"id" db:"id"`
	AlertID int64 `json:"alert_id" db:"alert_id"`
	UserID  int64 `json:"user_id" db:"user_id"`

	TriggeredAt time.Time `json:"triggered_at" db:"triggered_at"`
	Status      string    `json:"status" db:"status"` // triggered, acknowledged, snoozed, resolved

	TriggerValue     map[string]interface{} `json:"trigger_value" db:"trigger_value"`         // конкретные значения, вызвавшие срабатывание (JSON в БД)
	EvaluationResult map[string]interface{} `json:"evaluation_result" db:"evaluation_result"` // полный контекст вычисления для аудита (JSON в БД)

	NotificationSent     bool              `json:"notification_sent" db:"notification_sent"`
	NotificationChannels []string          `json:"notification_channels" db:"notification_channels"` // реально попытанные каналы
	NotificationIDs      map[string]string `json:"notification_ids" db:"notification_ids"`           // канал → provider message id (JSON в БД)

	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy *int64     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	SnoozedUntil   *time.Time `json:"snoozed_until,omitempty" db:"snoozed_until"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy     *int64     `json:"resolved_by,omitempty" db:"resolved_by"`
}

// Статусы события
const (
	EventStatusTriggered    = "triggered"
	EventStatusAcknowledged = "acknowledged"
	EventStatusSnoozed      = "snoozed"
	EventStatusResolved     = "resolved"
)

// IsSnoozed возвращает true если событие отложено и срок еще не истек
func (e *AlertEvent) IsSnoozed(now time.Time) bool {
	return e.Status == EventStatusSnoozed && e.SnoozedUntil != nil && now.Before(*e.SnoozedUntil)
}
