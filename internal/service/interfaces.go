package service

import (
	"time"

	"alertd/internal/models"
	"alertd/internal/repository"
)

// AlertRepositoryInterface определяет интерфейс репозитория алертов
type AlertRepositoryInterface interface {
	Create(alert *models.Alert) error
	GetByIDForUser(id, userID int64) (*models.Alert, error)
	ListForUser(userID int64, status string) ([]*models.Alert, error)
	Update(alert *models.Alert) error
	UpdateStatus(id int64, status string) error
	SoftDelete(id, userID int64) error
}

// EventRepositoryInterface определяет интерфейс репозитория событий
type EventRepositoryInterface interface {
	GetByIDForUser(id, userID int64) (*models.AlertEvent, error)
	ListForUser(userID int64, limit, offset int) ([]*models.AlertEvent, error)
	ListForAlert(alertID int64, limit int) ([]*models.AlertEvent, error)
	Acknowledge(id, userID int64, at time.Time) error
	Snooze(id, userID int64, until time.Time) error
	Resolve(id, userID int64, at time.Time) error
}

// PreferenceRepositoryInterface определяет интерфейс репозитория настроек
type PreferenceRepositoryInterface interface {
	GetByUserID(userID int64) (*models.NotificationPreference, error)
	Upsert(pref *models.NotificationPreference) error
	GetTokenHash(userID int64) (string, error)
}

// NotificationLogRepositoryInterface определяет интерфейс журнала доставки
type NotificationLogRepositoryInterface interface {
	ListByEvent(eventID int64) ([]*models.NotificationLogEntry, error)
}

// ConfigValidator проверяет типизированную конфигурацию условия
type ConfigValidator interface {
	ValidateConfig(conditionType string, config []byte) error
}

// Проверка реализации интерфейсов на этапе компиляции
var (
	_ AlertRepositoryInterface           = (*repository.AlertRepository)(nil)
	_ EventRepositoryInterface           = (*repository.EventRepository)(nil)
	_ PreferenceRepositoryInterface      = (*repository.PreferenceRepository)(nil)
	_ NotificationLogRepositoryInterface = (*repository.NotificationLogRepository)(nil)
)
