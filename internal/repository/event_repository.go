package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"alertd/internal/models"
)

// Ошибки репозитория событий
var (
	ErrEventNotFound = errors.New("alert event not found")
)

// EventRepository - работа с таблицей alert_events
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository создает новый экземпляр репозитория
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, alert_id, user_id, triggered_at, status, trigger_value, evaluation_result,
		notification_sent, notification_channels, notification_ids,
		acknowledged_at, acknowledged_by, snoozed_until, resolved_at, resolved_by`

// scanEvent читает строку alert_events в модель
func scanEvent(row interface{ Scan(...interface{}) error }) (*models.AlertEvent, error) {
	event := &models.AlertEvent{}
	var triggerValue, evalResult, notificationIDs []byte

	err := row.Scan(
		&event.ID,
		&event.AlertID,
		&event.UserID,
		&event.TriggeredAt,
		&event.Status,
		&triggerValue,
		&evalResult,
		&event.NotificationSent,
		pq.Array(&event.NotificationChannels),
		&notificationIDs,
		&event.AcknowledgedAt,
		&event.AcknowledgedBy,
		&event.SnoozedUntil,
		&event.ResolvedAt,
		&event.ResolvedBy,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerValue) > 0 {
		if err := json.Unmarshal(triggerValue, &event.TriggerValue); err != nil {
			return nil, err
		}
	}
	if len(evalResult) > 0 {
		if err := json.Unmarshal(evalResult, &event.EvaluationResult); err != nil {
			return nil, err
		}
	}
	if len(notificationIDs) > 0 {
		if err := json.Unmarshal(notificationIDs, &event.NotificationIDs); err != nil {
			return nil, err
		}
	}

	return event, nil
}

// GetByID возвращает событие по ID
func (r *EventRepository) GetByID(id int64) (*models.AlertEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM alert_events WHERE id = $1`

	event, err := scanEvent(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	return event, nil
}

// GetByIDForUser возвращает событие по ID с проверкой владельца
func (r *EventRepository) GetByIDForUser(id, userID int64) (*models.AlertEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM alert_events WHERE id = $1 AND user_id = $2`

	event, err := scanEvent(r.db.QueryRow(query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	return event, nil
}

// ListForUser возвращает события пользователя, новые первыми
func (r *EventRepository) ListForUser(userID int64, limit, offset int) ([]*models.AlertEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + eventColumns + ` FROM alert_events WHERE user_id = $1 ORDER BY triggered_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.AlertEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// ListForAlert возвращает события одного алерта, новые первыми
func (r *EventRepository) ListForAlert(alertID int64, limit int) ([]*models.AlertEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + eventColumns + ` FROM alert_events WHERE alert_id = $1 ORDER BY triggered_at DESC LIMIT $2`

	rows, err := r.db.Query(query, alertID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.AlertEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// Acknowledge помечает событие подтвержденным
//
// Идемпотентно: повторное подтверждение не меняет acknowledged_at.
// Resolved событие подтвердить нельзя
func (r *EventRepository) Acknowledge(id, userID int64, at time.Time) error {
	query := `
		UPDATE alert_events
		SET status = 'acknowledged', acknowledged_at = $3, acknowledged_by = $2, snoozed_until = NULL
		WHERE id = $1 AND user_id = $2 AND status IN ('triggered', 'snoozed')`

	result, err := r.db.Exec(query, id, userID, at)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		// Либо события нет, либо оно уже acknowledged/resolved
		event, getErr := r.GetByIDForUser(id, userID)
		if getErr != nil {
			return getErr
		}
		if event.Status == models.EventStatusAcknowledged {
			return nil // идемпотентный повтор
		}
		return ErrEventNotFound
	}

	return nil
}

// Snooze откладывает событие до указанного времени
func (r *EventRepository) Snooze(id, userID int64, until time.Time) error {
	query := `
		UPDATE alert_events
		SET status = 'snoozed', snoozed_until = $3
		WHERE id = $1 AND user_id = $2 AND status IN ('triggered', 'acknowledged', 'snoozed')`

	result, err := r.db.Exec(query, id, userID, until)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrEventNotFound
	}

	return nil
}

// Resolve закрывает событие
// Идемпотентно: повторный resolve не меняет resolved_at
func (r *EventRepository) Resolve(id, userID int64, at time.Time) error {
	query := `
		UPDATE alert_events
		SET status = 'resolved', resolved_at = $3, resolved_by = $2, snoozed_until = NULL
		WHERE id = $1 AND user_id = $2 AND status != 'resolved'`

	result, err := r.db.Exec(query, id, userID, at)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		event, getErr := r.GetByIDForUser(id, userID)
		if getErr != nil {
			return getErr
		}
		if event.Status == models.EventStatusResolved {
			return nil // идемпотентный повтор
		}
		return ErrEventNotFound
	}

	return nil
}

// ListSnoozeElapsed возвращает snoozed события с истекшим сроком
// Sweep движка перепроверяет условие и при необходимости повторяет доставку
func (r *EventRepository) ListSnoozeElapsed(now time.Time, limit int) ([]*models.AlertEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + eventColumns + ` FROM alert_events
		WHERE status = 'snoozed' AND snoozed_until IS NOT NULL AND snoozed_until <= $1
		ORDER BY snoozed_until LIMIT $2`

	rows, err := r.db.Query(query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.AlertEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// ClearElapsedSnoozes возвращает snoozed события с истекшим сроком в triggered
// Возвращает количество затронутых событий
func (r *EventRepository) ClearElapsedSnoozes(now time.Time) (int64, error) {
	query := `
		UPDATE alert_events
		SET status = 'triggered', snoozed_until = NULL
		WHERE status = 'snoozed' AND snoozed_until IS NOT NULL AND snoozed_until <= $1`

	result, err := r.db.Exec(query, now)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// ListUnnotified возвращает события без успешной отправки хотя бы по одному каналу
// Для sweep'а повторной отправки после сбоев диспетчера
func (r *EventRepository) ListUnnotified(olderThan time.Time, limit int) ([]*models.AlertEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + eventColumns + ` FROM alert_events
		WHERE notification_sent = false AND status != 'resolved' AND triggered_at <= $1
		ORDER BY triggered_at LIMIT $2`

	rows, err := r.db.Query(query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.AlertEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// SetNotificationResult фиксирует итог диспетчеризации события
//
// notificationSent = true если хотя бы одна отправка успешна;
// channels - реально попытанные каналы; ids - канал -> provider message id
func (r *EventRepository) SetNotificationResult(id int64, sent bool, channels []string, ids map[string]string) error {
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	query := `
		UPDATE alert_events
		SET notification_sent = $2, notification_channels = $3, notification_ids = $4
		WHERE id = $1`

	result, err := r.db.Exec(query, id, sent, pq.Array(channels), idsJSON)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrEventNotFound
	}

	return nil
}
