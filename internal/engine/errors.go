package engine

import "fmt"

// ValidationError - ошибка владельца при создании или изменении алерта
// Запрос отклоняется на API, в БД ничего не пишется
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// NewValidationError создает ошибку валидации
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// EvaluationError - ошибка вычисления условия (недоступен сервис котировок,
// нет данных по символу, невалидная конфигурация в БД)
//
// Алерт остается активным, счетчик оценки все равно продвигается,
// следующий цикл попробует снова
type EvaluationError struct {
	AlertID int64
	Err     error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of alert %d failed: %v", e.AlertID, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// NewEvaluationError создает ошибку вычисления
func NewEvaluationError(alertID int64, err error) *EvaluationError {
	return &EvaluationError{AlertID: alertID, Err: err}
}

// DispatchError - ошибка доставки уведомления по одному каналу
// Не влияет на остальные каналы события
type DispatchError struct {
	EventID int64
	Channel string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch of event %d via %s failed: %v", e.EventID, e.Channel, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NewDispatchError создает ошибку доставки
func NewDispatchError(eventID int64, channel string, err error) *DispatchError {
	return &DispatchError{EventID: eventID, Channel: channel, Err: err}
}
