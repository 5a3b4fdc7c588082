package service

import (
	"errors"
	"time"

	"alertd/internal/models"
)

// Ошибки сервиса событий
var (
	ErrSnoozeInPast   = errors.New("snooze until must be in the future")
	ErrSnoozeTooLong  = errors.New("snooze duration exceeds the maximum")
	ErrInvalidPaging  = errors.New("limit and offset must be non-negative")
)

// MaxSnoozeDuration - максимальный срок откладывания события
const MaxSnoozeDuration = 7 * 24 * time.Hour

// Лимиты постраничной выборки событий
const (
	DefaultEventPageSize = 50
	MaxEventPageSize     = 200
)

// EventService - бизнес-логика работы с событиями алертов
//
// Acknowledge и Resolve идемпотентны: повторный вызов по событию
// в том же статусе не является ошибкой
type EventService struct {
	eventRepo EventRepositoryInterface
	alertRepo AlertRepositoryInterface
	logRepo   NotificationLogRepositoryInterface
}

// NewEventService создает новый экземпляр сервиса событий
func NewEventService(eventRepo EventRepositoryInterface, alertRepo AlertRepositoryInterface, logRepo NotificationLogRepositoryInterface) *EventService {
	return &EventService{
		eventRepo: eventRepo,
		alertRepo: alertRepo,
		logRepo:   logRepo,
	}
}

// Get возвращает событие владельца
func (s *EventService) Get(id, userID int64) (*models.AlertEvent, error) {
	return s.eventRepo.GetByIDForUser(id, userID)
}

// List возвращает события владельца, новые первыми
func (s *EventService) List(userID int64, limit, offset int) ([]*models.AlertEvent, error) {
	if limit < 0 || offset < 0 {
		return nil, ErrInvalidPaging
	}
	if limit == 0 {
		limit = DefaultEventPageSize
	}
	if limit > MaxEventPageSize {
		limit = MaxEventPageSize
	}
	return s.eventRepo.ListForUser(userID, limit, offset)
}

// ListForAlert возвращает события одного алерта владельца
func (s *EventService) ListForAlert(alertID, userID int64, limit int) ([]*models.AlertEvent, error) {
	// Владение проверяется через сам алерт
	if _, err := s.alertRepo.GetByIDForUser(alertID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxEventPageSize {
		limit = DefaultEventPageSize
	}
	return s.eventRepo.ListForAlert(alertID, limit)
}

// Acknowledge отмечает событие как увиденное владельцем
func (s *EventService) Acknowledge(id, userID int64) error {
	return s.eventRepo.Acknowledge(id, userID, time.Now())
}

// Snooze откладывает событие до указанного момента
func (s *EventService) Snooze(id, userID int64, until time.Time) error {
	now := time.Now()
	if !until.After(now) {
		return ErrSnoozeInPast
	}
	if until.Sub(now) > MaxSnoozeDuration {
		return ErrSnoozeTooLong
	}
	return s.eventRepo.Snooze(id, userID, until)
}

// Resolve закрывает событие
func (s *EventService) Resolve(id, userID int64) error {
	return s.eventRepo.Resolve(id, userID, time.Now())
}

// Deliveries возвращает журнал доставки по событию владельца
func (s *EventService) Deliveries(eventID, userID int64) ([]*models.NotificationLogEntry, error) {
	if _, err := s.eventRepo.GetByIDForUser(eventID, userID); err != nil {
		return nil, err
	}
	return s.logRepo.ListByEvent(eventID)
}
