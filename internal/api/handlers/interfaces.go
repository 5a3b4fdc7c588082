package handlers

import (
	"time"

	"alertd/internal/engine"
	"alertd/internal/models"
	"alertd/internal/service"
	"alertd/internal/websocket"
)

// AlertServiceInterface - операции управления алертами
type AlertServiceInterface interface {
	Create(alert *models.Alert) error
	Get(id, userID int64) (*models.Alert, error)
	List(userID int64, status string) ([]*models.Alert, error)
	Update(alert *models.Alert) error
	Pause(id, userID int64) error
	Resume(id, userID int64) error
	Delete(id, userID int64) error
}

// EventServiceInterface - операции над событиями срабатываний
type EventServiceInterface interface {
	Get(id, userID int64) (*models.AlertEvent, error)
	List(userID int64, limit, offset int) ([]*models.AlertEvent, error)
	ListForAlert(alertID, userID int64, limit int) ([]*models.AlertEvent, error)
	Acknowledge(id, userID int64) error
	Snooze(id, userID int64, until time.Time) error
	Resolve(id, userID int64) error
	Deliveries(eventID, userID int64) ([]*models.NotificationLogEntry, error)
}

// PreferenceServiceInterface - операции над настройками уведомлений
type PreferenceServiceInterface interface {
	Get(userID int64) (*models.NotificationPreference, error)
	Update(pref *models.NotificationPreference) error
	RotateToken(userID int64) (string, error)
}

// DeliveryTracker - обработка callback'ов провайдеров о статусе доставки
type DeliveryTracker interface {
	HandleDelivered(providerMessageID string, at time.Time) error
	HandleRead(providerMessageID string, at time.Time) error
	HandleClicked(providerMessageID string) error
}

// EventBroadcaster - рассылка смены статуса события клиентам дашборда
type EventBroadcaster interface {
	BroadcastEventUpdate(event *models.AlertEvent)
}

// Проверка соответствия реализаций интерфейсам
var (
	_ AlertServiceInterface      = (*service.AlertService)(nil)
	_ EventServiceInterface      = (*service.EventService)(nil)
	_ PreferenceServiceInterface = (*service.PreferenceService)(nil)
	_ DeliveryTracker            = (*engine.Tracker)(nil)
	_ EventBroadcaster           = (*websocket.Hub)(nil)
)
