package models

import "time"

// NotificationLogEntry представляет одну попытку доставки по одному каналу.
//
// Одна строка на (event_id, channel, recipient). Инвариант: не более одной
// успешной (sent/delivered/read) строки на ключ - обеспечивается частичным
// уникальным индексом в БД, retry переиспользует существующую строку.
type NotificationLogEntry struct {
	ID      int64 `json:"id" db:"id"`
	EventID int64 `json:"event_id" db:"event_id"`
	AlertID int64 `json:"alert_id" db:"alert_id"`
	UserID  int64 `json:"user_id" db:"user_id"`

	Channel   string `json:"channel" db:"channel"`
	Recipient string `json:"recipient" db:"recipient"`

	Status       string `json:"status" db:"status"` // pending, sent, delivered, failed, read
	StatusCode   int    `json:"status_code,omitempty" db:"status_code"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`
	Attempts     int    `json:"attempts" db:"attempts"`

	ProviderMessageID string `json:"provider_message_id,omitempty" db:"provider_message_id"`

	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt      *time.Time `json:"read_at,omitempty" db:"read_at"`
	Clicked     bool       `json:"clicked" db:"clicked"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Статусы доставки
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusSent      = "sent"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
	DeliveryStatusRead      = "read"
)

// IsSuccessful возвращает true для статусов, считающихся успешной отправкой
func (e *NotificationLogEntry) IsSuccessful() bool {
	return e.Status == DeliveryStatusSent || e.Status == DeliveryStatusDelivered || e.Status == DeliveryStatusRead
}

// DedupKey возвращает детерминированный ключ идемпотентности попытки
func (e *NotificationLogEntry) DedupKey() string {
	return DedupKey(e.EventID, e.Channel, e.Recipient)
}
