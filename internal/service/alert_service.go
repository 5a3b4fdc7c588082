package service

import (
	"errors"
	"time"

	"alertd/internal/engine"
	"alertd/internal/models"
	"alertd/pkg/utils"
)

// Ошибки сервиса алертов
var (
	ErrAlertNameRequired    = errors.New("alert name is required")
	ErrAlertNameTooLong     = errors.New("alert name must be at most 200 characters")
	ErrNoChannels           = errors.New("at least one delivery channel is required")
	ErrUnknownChannel       = errors.New("unknown delivery channel")
	ErrInvalidPriority      = errors.New("priority must be non-negative")
	ErrIntervalTooShort     = errors.New("evaluation interval is below the minimum")
	ErrInvalidEvalWindow    = errors.New("evaluation window requires both start and end as HH:MM")
	ErrInvalidCooldown      = errors.New("cooldown must be non-negative")
	ErrInvalidDailyCap      = errors.New("max triggers per day must be non-negative")
	ErrExpiryInPast         = errors.New("expires_at must be in the future")
	ErrInvalidStatusChange  = errors.New("status transition is not allowed")
	ErrMaxAlertsReached     = errors.New("maximum number of alerts reached")
	ErrInvalidStatusFilter  = errors.New("unknown status filter")
)

// MaxAlertsPerUser - лимит алертов на пользователя
const MaxAlertsPerUser = 200

// MaxAlertNameLength - максимальная длина имени алерта
const MaxAlertNameLength = 200

// AlertService - бизнес-логика управления алертами
//
// Владение проверяется на каждом чтении: репозиторий отдает алерт только
// по паре (id, user_id). Изменение статуса проходит через state machine
type AlertService struct {
	alertRepo AlertRepositoryInterface
	validator ConfigValidator
}

// NewAlertService создает новый экземпляр сервиса алертов
func NewAlertService(alertRepo AlertRepositoryInterface) *AlertService {
	return &AlertService{
		alertRepo: alertRepo,
		validator: engine.NewEvaluator(),
	}
}

// Create создает новый алерт после полной валидации
func (s *AlertService) Create(alert *models.Alert) error {
	if err := s.validate(alert); err != nil {
		return err
	}

	existing, err := s.alertRepo.ListForUser(alert.UserID, "")
	if err != nil {
		return err
	}
	if len(existing) >= MaxAlertsPerUser {
		return ErrMaxAlertsReached
	}

	alert.Status = models.AlertStatusActive
	return s.alertRepo.Create(alert)
}

// Get возвращает алерт владельца
func (s *AlertService) Get(id, userID int64) (*models.Alert, error) {
	return s.alertRepo.GetByIDForUser(id, userID)
}

// List возвращает алерты владельца, опционально по статусу
func (s *AlertService) List(userID int64, status string) ([]*models.Alert, error) {
	if status != "" {
		if _, ok := engine.ValidTransitions[status]; !ok {
			return nil, ErrInvalidStatusFilter
		}
	}
	return s.alertRepo.ListForUser(userID, status)
}

// Update изменяет параметры алерта владельца
//
// Статус через Update не меняется, для этого есть Pause/Resume/Delete.
// Счетчики и временные метки движка сохраняются как есть
func (s *AlertService) Update(alert *models.Alert) error {
	existing, err := s.alertRepo.GetByIDForUser(alert.ID, alert.UserID)
	if err != nil {
		return err
	}

	if err := s.validate(alert); err != nil {
		return err
	}

	alert.Status = existing.Status
	alert.TriggerCount = existing.TriggerCount
	alert.EvaluationCount = existing.EvaluationCount
	alert.LastEvaluatedAt = existing.LastEvaluatedAt
	alert.LastTriggeredAt = existing.LastTriggeredAt
	alert.CreatedAt = existing.CreatedAt

	return s.alertRepo.Update(alert)
}

// Pause приостанавливает активный алерт
func (s *AlertService) Pause(id, userID int64) error {
	return s.transition(id, userID, models.AlertStatusPaused)
}

// Resume возвращает приостановленный алерт в работу
func (s *AlertService) Resume(id, userID int64) error {
	return s.transition(id, userID, models.AlertStatusActive)
}

// Delete помечает алерт удаленным (soft delete)
func (s *AlertService) Delete(id, userID int64) error {
	return s.alertRepo.SoftDelete(id, userID)
}

func (s *AlertService) transition(id, userID int64, to string) error {
	alert, err := s.alertRepo.GetByIDForUser(id, userID)
	if err != nil {
		return err
	}

	if !engine.CanTransition(alert.Status, to) {
		return ErrInvalidStatusChange
	}

	return s.alertRepo.UpdateStatus(id, to)
}

// validate проверяет все пользовательские поля алерта
func (s *AlertService) validate(alert *models.Alert) error {
	if alert.Name == "" {
		return ErrAlertNameRequired
	}
	if len(alert.Name) > MaxAlertNameLength {
		return ErrAlertNameTooLong
	}

	if err := s.validator.ValidateConfig(alert.ConditionType, alert.ConditionConfig); err != nil {
		return err
	}

	if len(alert.Channels) == 0 {
		return ErrNoChannels
	}
	for _, ch := range alert.Channels {
		if !models.ValidChannels[ch] {
			return ErrUnknownChannel
		}
	}

	if alert.Priority < 0 {
		return ErrInvalidPriority
	}

	if alert.EvaluationInterval < models.MinEvaluationInterval {
		return ErrIntervalTooShort
	}

	// Окно оценки: либо обе границы, либо ни одной
	if (alert.EvalWindowStart == nil) != (alert.EvalWindowEnd == nil) {
		return ErrInvalidEvalWindow
	}
	if alert.EvalWindowStart != nil {
		if utils.ValidateClock(*alert.EvalWindowStart) != nil || utils.ValidateClock(*alert.EvalWindowEnd) != nil {
			return ErrInvalidEvalWindow
		}
	}

	if alert.CooldownSeconds < 0 {
		return ErrInvalidCooldown
	}
	if alert.MaxTriggersPerDay < 0 {
		return ErrInvalidDailyCap
	}

	if alert.ExpiresAt != nil && !alert.ExpiresAt.After(time.Now()) {
		return ErrExpiryInPast
	}

	return nil
}
