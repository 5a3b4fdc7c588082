package repository

import (
	"database/sql"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"alertd/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки репозитория алертов
var (
	ErrAlertNotFound = errors.New("alert not found")
)

// AlertRepository - работа с таблицей alerts
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository создает новый экземпляр репозитория
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, user_id, account_id, strategy_id, name, condition_type, condition_config,
		symbol, symbols, exchange, priority, channels, status,
		evaluation_interval, eval_window_start, eval_window_end,
		max_triggers_per_day, cooldown_seconds, one_shot,
		trigger_count, evaluation_count, last_evaluated_at, last_triggered_at, expires_at,
		created_at, updated_at`

// scanAlert читает строку alerts в модель
func scanAlert(row interface{ Scan(...interface{}) error }) (*models.Alert, error) {
	alert := &models.Alert{}
	var conditionConfig []byte

	err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.AccountID,
		&alert.StrategyID,
		&alert.Name,
		&alert.ConditionType,
		&conditionConfig,
		&alert.Symbol,
		pq.Array(&alert.Symbols),
		&alert.Exchange,
		&alert.Priority,
		pq.Array(&alert.Channels),
		&alert.Status,
		&alert.EvaluationInterval,
		&alert.EvalWindowStart,
		&alert.EvalWindowEnd,
		&alert.MaxTriggersPerDay,
		&alert.CooldownSeconds,
		&alert.OneShot,
		&alert.TriggerCount,
		&alert.EvaluationCount,
		&alert.LastEvaluatedAt,
		&alert.LastTriggeredAt,
		&alert.ExpiresAt,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.ConditionConfig = conditionConfig
	return alert, nil
}

// Create создает запись об алерте
func (r *AlertRepository) Create(alert *models.Alert) error {
	query := `
		INSERT INTO alerts (user_id, account_id, strategy_id, name, condition_type, condition_config,
			symbol, symbols, exchange, priority, channels, status,
			evaluation_interval, eval_window_start, eval_window_end,
			max_triggers_per_day, cooldown_seconds, one_shot, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id`

	now := time.Now()
	alert.CreatedAt = now
	alert.UpdatedAt = now
	if alert.Status == "" {
		alert.Status = models.AlertStatusActive
	}

	err := r.db.QueryRow(
		query,
		alert.UserID,
		alert.AccountID,
		alert.StrategyID,
		alert.Name,
		alert.ConditionType,
		[]byte(alert.ConditionConfig),
		alert.Symbol,
		pq.Array(alert.Symbols),
		alert.Exchange,
		alert.Priority,
		pq.Array(alert.Channels),
		alert.Status,
		alert.EvaluationInterval,
		alert.EvalWindowStart,
		alert.EvalWindowEnd,
		alert.MaxTriggersPerDay,
		alert.CooldownSeconds,
		alert.OneShot,
		alert.ExpiresAt,
		alert.CreatedAt,
		alert.UpdatedAt,
	).Scan(&alert.ID)

	return err
}

// GetByID возвращает алерт по ID
func (r *AlertRepository) GetByID(id int64) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1 AND status != 'deleted'`

	alert, err := scanAlert(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}

	return alert, nil
}

// GetByIDForUser возвращает алерт по ID с проверкой владельца
func (r *AlertRepository) GetByIDForUser(id, userID int64) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1 AND user_id = $2 AND status != 'deleted'`

	alert, err := scanAlert(r.db.QueryRow(query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}

	return alert, nil
}

// GetActive возвращает все активные алерты для цикла оценки
func (r *AlertRepository) GetActive() ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE status = 'active' ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// ListForUser возвращает алерты пользователя, опционально фильтруя по статусу
func (r *AlertRepository) ListForUser(userID int64, status string) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = $1 AND status != 'deleted'`
	args := []interface{}{userID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// Update обновляет изменяемые поля алерта
func (r *AlertRepository) Update(alert *models.Alert) error {
	query := `
		UPDATE alerts
		SET name = $2, condition_type = $3, condition_config = $4,
			symbol = $5, symbols = $6, exchange = $7, priority = $8, channels = $9,
			evaluation_interval = $10, eval_window_start = $11, eval_window_end = $12,
			max_triggers_per_day = $13, cooldown_seconds = $14, one_shot = $15,
			expires_at = $16, updated_at = $17
		WHERE id = $1 AND status != 'deleted'`

	alert.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		query,
		alert.ID,
		alert.Name,
		alert.ConditionType,
		[]byte(alert.ConditionConfig),
		alert.Symbol,
		pq.Array(alert.Symbols),
		alert.Exchange,
		alert.Priority,
		pq.Array(alert.Channels),
		alert.EvaluationInterval,
		alert.EvalWindowStart,
		alert.EvalWindowEnd,
		alert.MaxTriggersPerDay,
		alert.CooldownSeconds,
		alert.OneShot,
		alert.ExpiresAt,
		alert.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlertNotFound
	}

	return nil
}

// UpdateStatus изменяет статус алерта
// Валидация перехода выполняется на уровне сервиса (engine.CanTransition)
func (r *AlertRepository) UpdateStatus(id int64, status string) error {
	query := `UPDATE alerts SET status = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Exec(query, id, status, time.Now())
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlertNotFound
	}

	return nil
}

// SoftDelete помечает алерт удаленным с проверкой владельца
func (r *AlertRepository) SoftDelete(id, userID int64) error {
	query := `UPDATE alerts SET status = 'deleted', updated_at = $3 WHERE id = $1 AND user_id = $2 AND status != 'deleted'`

	result, err := r.db.Exec(query, id, userID, time.Now())
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlertNotFound
	}

	return nil
}

// MarkEvaluated фиксирует факт вычисления условия
// Вызывается на каждую оценку, включая оценки не приведшие к срабатыванию
func (r *AlertRepository) MarkEvaluated(id int64, evaluatedAt time.Time) error {
	query := `
		UPDATE alerts
		SET last_evaluated_at = $2, evaluation_count = evaluation_count + 1
		WHERE id = $1`

	_, err := r.db.Exec(query, id, evaluatedAt)
	return err
}

// TriggerAtomic атомарно фиксирует срабатывание алерта
//
// В одной транзакции: блокировка строки алерта, условный UPDATE счетчиков
// (cooldown, дневной лимит и активный snooze проверяются в WHERE) и INSERT
// события. Строка блокируется отдельным SELECT FOR UPDATE до условного
// UPDATE: после ожидания блокировки подзапрос дневного лимита выполняется
// на свежем снапшоте и видит событие конкурентной транзакции. Если UPDATE
// не затронул строк, срабатывание подавлено и возвращается (nil, false, nil).
//
// dayStart - начало календарного дня в таймзоне пользователя, граница
// для подсчета дневного лимита
func (r *AlertRepository) TriggerAtomic(alert *models.Alert, now time.Time, dayStart time.Time, triggerValue, evalResult map[string]interface{}) (*models.AlertEvent, bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`SELECT 1 FROM alerts WHERE id = $1 FOR UPDATE`, alert.ID); err != nil {
		return nil, false, err
	}

	updateQuery := `
		UPDATE alerts
		SET trigger_count = trigger_count + 1,
			last_triggered_at = $2,
			updated_at = $2,
			status = CASE WHEN one_shot THEN 'triggered' ELSE status END
		WHERE id = $1
			AND status = 'active'
			AND (cooldown_seconds = 0 OR last_triggered_at IS NULL
				OR last_triggered_at <= $2 - (cooldown_seconds * interval '1 second'))
			AND (max_triggers_per_day = 0
				OR (SELECT COUNT(*) FROM alert_events WHERE alert_id = $1 AND triggered_at >= $3) < max_triggers_per_day)
			AND NOT EXISTS (SELECT 1 FROM alert_events
				WHERE alert_id = $1 AND status = 'snoozed' AND snoozed_until > $2)`

	result, err := tx.Exec(updateQuery, alert.ID, now, dayStart)
	if err != nil {
		return nil, false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if rowsAffected == 0 {
		// Cooldown, дневной лимит, активный snooze или смена статуса
		return nil, false, nil
	}

	triggerValueJSON, err := json.Marshal(triggerValue)
	if err != nil {
		return nil, false, err
	}
	evalResultJSON, err := json.Marshal(evalResult)
	if err != nil {
		return nil, false, err
	}

	event := &models.AlertEvent{
		AlertID:          alert.ID,
		UserID:           alert.UserID,
		TriggeredAt:      now,
		Status:           models.EventStatusTriggered,
		TriggerValue:     triggerValue,
		EvaluationResult: evalResult,
	}

	insertQuery := `
		INSERT INTO alert_events (alert_id, user_id, triggered_at, status, trigger_value, evaluation_result, notification_sent, notification_channels)
		VALUES ($1, $2, $3, $4, $5, $6, false, '{}')
		RETURNING id`

	err = tx.QueryRow(
		insertQuery,
		event.AlertID,
		event.UserID,
		event.TriggeredAt,
		event.Status,
		triggerValueJSON,
		evalResultJSON,
	).Scan(&event.ID)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	return event, true, nil
}

// ExpireDue переводит просроченные алерты в статус expired
// Возвращает количество затронутых алертов
func (r *AlertRepository) ExpireDue(now time.Time) (int64, error) {
	query := `
		UPDATE alerts
		SET status = 'expired', updated_at = $1
		WHERE status IN ('active', 'paused') AND expires_at IS NOT NULL AND expires_at <= $1`

	result, err := r.db.Exec(query, now)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
