package websocket

import (
	"time"

	"alertd/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeAlertEvent - новое срабатывание алерта
	// Отправляется движком сразу после создания события
	MessageTypeAlertEvent MessageType = "alert_event"

	// MessageTypeEventUpdate - смена статуса события
	// Отправляется при acknowledge, snooze и resolve через API
	MessageTypeEventUpdate MessageType = "event_update"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventMessage - сообщение о новом срабатывании алерта
//
// Содержит событие целиком: значения, вызвавшие срабатывание,
// контекст вычисления и текущее состояние доставки уведомлений.
type EventMessage struct {
	BaseMessage
	Event *models.AlertEvent `json:"event"`
}

// EventUpdateMessage - сообщение о смене статуса события
type EventUpdateMessage struct {
	BaseMessage
	EventID int64  `json:"event_id"`
	AlertID int64  `json:"alert_id"`
	Status  string `json:"status"`
}

// NewEventMessage создает сообщение о новом срабатывании
func NewEventMessage(event *models.AlertEvent) *EventMessage {
	return &EventMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeAlertEvent,
			Timestamp: time.Now(),
		},
		Event: event,
	}
}

// NewEventUpdateMessage создает сообщение о смене статуса события
func NewEventUpdateMessage(event *models.AlertEvent) *EventUpdateMessage {
	return &EventUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeEventUpdate,
			Timestamp: time.Now(),
		},
		EventID: event.ID,
		AlertID: event.AlertID,
		Status:  event.Status,
	}
}

// BroadcastEvent отправляет новое срабатывание всем клиентам дашборда
func (h *Hub) BroadcastEvent(event *models.AlertEvent) {
	h.BroadcastJSON(NewEventMessage(event))
}

// BroadcastEventUpdate отправляет смену статуса события всем клиентам
func (h *Hub) BroadcastEventUpdate(event *models.AlertEvent) {
	h.BroadcastJSON(NewEventUpdateMessage(event))
}
