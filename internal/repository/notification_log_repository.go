package repository

import (
	"database/sql"
	"errors"
	"time"

	"alertd/internal/models"
)

// Ошибки репозитория журнала доставки
var (
	ErrLogEntryNotFound = errors.New("notification log entry not found")

	// ErrDuplicateDelivery - по ключу (event_id, channel, recipient) уже есть
	// неуспешная или успешная попытка, повторная отправка не нужна
	ErrDuplicateDelivery = errors.New("delivery already attempted for this event, channel and recipient")

	// ErrRateLimited - превышен часовой лимит уведомлений пользователя
	ErrRateLimited = errors.New("user hourly notification limit exceeded")
)

// NotificationLogRepository - работа с таблицей notification_log
//
// Инвариант таблицы: не более одной не-failed строки на ключ
// (event_id, channel, recipient), обеспечивается частичным уникальным индексом
type NotificationLogRepository struct {
	db *sql.DB
}

// NewNotificationLogRepository создает новый экземпляр репозитория
func NewNotificationLogRepository(db *sql.DB) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

const logColumns = `id, event_id, alert_id, user_id, channel, recipient, status, status_code,
		error_message, attempts, provider_message_id, sent_at, delivered_at, read_at, clicked, created_at`

// scanLogEntry читает строку notification_log в модель
func scanLogEntry(row interface{ Scan(...interface{}) error }) (*models.NotificationLogEntry, error) {
	entry := &models.NotificationLogEntry{}

	err := row.Scan(
		&entry.ID,
		&entry.EventID,
		&entry.AlertID,
		&entry.UserID,
		&entry.Channel,
		&entry.Recipient,
		&entry.Status,
		&entry.StatusCode,
		&entry.ErrorMessage,
		&entry.Attempts,
		&entry.ProviderMessageID,
		&entry.SentAt,
		&entry.DeliveredAt,
		&entry.ReadAt,
		&entry.Clicked,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// CreatePending атомарно создает pending строку попытки доставки
//
// Проверяются оба условия:
//   - часовой лимит: число отправок пользователя за последние 60 минут
//     (граница windowStart) меньше maxPerHour (0 = без лимита); pending строки
//     входят в счет, иначе параллельные диспетчеризации видят заниженное значение
//   - дедупликация: частичный уникальный индекс по (event_id, channel, recipient)
//     для не-failed строк, конфликт гасится через ON CONFLICT DO NOTHING
//
// Конкурентные проверки лимита одного пользователя сериализуются advisory
// lock'ом в рамках транзакции, снапшот READ COMMITTED сам этого не гарантирует
//
// Если строка не создана, различаем причину повторным запросом и возвращаем
// ErrDuplicateDelivery либо ErrRateLimited
func (r *NotificationLogRepository) CreatePending(entry *models.NotificationLogEntry, maxPerHour int, windowStart time.Time) error {
	query := `
		INSERT INTO notification_log (event_id, alert_id, user_id, channel, recipient, status, attempts, created_at)
		SELECT $1, $2, $3, $4, $5, 'pending', 0, $6
		WHERE ($7 = 0 OR (
			SELECT COUNT(*) FROM notification_log
			WHERE user_id = $3 AND (
				(status IN ('sent', 'delivered', 'read') AND sent_at >= $8)
				OR (status = 'pending' AND created_at >= $8)
			)
		) < $7)
		ON CONFLICT (event_id, channel, recipient) WHERE status != 'failed' DO NOTHING
		RETURNING id`

	entry.Status = models.DeliveryStatusPending
	entry.CreatedAt = time.Now()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`SELECT pg_advisory_xact_lock($1)`, entry.UserID); err != nil {
		return err
	}

	err = tx.QueryRow(
		query,
		entry.EventID,
		entry.AlertID,
		entry.UserID,
		entry.Channel,
		entry.Recipient,
		entry.CreatedAt,
		maxPerHour,
		windowStart,
	).Scan(&entry.ID)

	if err == nil {
		return tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	// Строка не вставлена: отпускаем lock и различаем дубликат от rate limit
	if err := tx.Rollback(); err != nil {
		return err
	}
	exists, checkErr := r.HasActiveAttempt(entry.EventID, entry.Channel, entry.Recipient)
	if checkErr != nil {
		return checkErr
	}
	if exists {
		return ErrDuplicateDelivery
	}
	return ErrRateLimited
}

// HasActiveAttempt проверяет наличие не-failed попытки по ключу дедупликации
func (r *NotificationLogRepository) HasActiveAttempt(eventID int64, channel, recipient string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM notification_log
			WHERE event_id = $1 AND channel = $2 AND recipient = $3 AND status != 'failed'
		)`

	var exists bool
	err := r.db.QueryRow(query, eventID, channel, recipient).Scan(&exists)
	return exists, err
}

// MarkSent переводит pending строку в sent с идентификатором провайдера
func (r *NotificationLogRepository) MarkSent(id int64, providerMessageID string, statusCode, attempts int, sentAt time.Time) error {
	query := `
		UPDATE notification_log
		SET status = 'sent', provider_message_id = $2, status_code = $3, attempts = $4, sent_at = $5, error_message = ''
		WHERE id = $1 AND status = 'pending'`

	result, err := r.db.Exec(query, id, providerMessageID, statusCode, attempts, sentAt)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrLogEntryNotFound
	}

	return nil
}

// MarkFailed переводит pending строку в failed после исчерпания retry
func (r *NotificationLogRepository) MarkFailed(id int64, statusCode int, errorMessage string, attempts int) error {
	query := `
		UPDATE notification_log
		SET status = 'failed', status_code = $2, error_message = $3, attempts = $4
		WHERE id = $1 AND status = 'pending'`

	result, err := r.db.Exec(query, id, statusCode, errorMessage, attempts)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrLogEntryNotFound
	}

	return nil
}

// CountSuccessfulSince возвращает число успешных отправок пользователя с момента since
// Используется для метрик и диагностики часового лимита
func (r *NotificationLogRepository) CountSuccessfulSince(userID int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM notification_log
		WHERE user_id = $1 AND status IN ('sent', 'delivered', 'read') AND sent_at >= $2`

	var count int
	err := r.db.QueryRow(query, userID, since).Scan(&count)
	return count, err
}

// GetByProviderMessageID возвращает запись по идентификатору сообщения у провайдера
func (r *NotificationLogRepository) GetByProviderMessageID(providerMessageID string) (*models.NotificationLogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM notification_log WHERE provider_message_id = $1`

	entry, err := scanLogEntry(r.db.QueryRow(query, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLogEntryNotFound
		}
		return nil, err
	}

	return entry, nil
}

// MarkDelivered фиксирует колбэк провайдера о доставке
func (r *NotificationLogRepository) MarkDelivered(providerMessageID string, at time.Time) error {
	query := `
		UPDATE notification_log
		SET status = 'delivered', delivered_at = $2
		WHERE provider_message_id = $1 AND status = 'sent'`

	result, err := r.db.Exec(query, providerMessageID, at)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrLogEntryNotFound
	}

	return nil
}

// MarkRead фиксирует колбэк провайдера о прочтении
func (r *NotificationLogRepository) MarkRead(providerMessageID string, at time.Time) error {
	query := `
		UPDATE notification_log
		SET status = 'read', read_at = $2
		WHERE provider_message_id = $1 AND status IN ('sent', 'delivered')`

	result, err := r.db.Exec(query, providerMessageID, at)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrLogEntryNotFound
	}

	return nil
}

// SetClicked фиксирует клик по уведомлению
func (r *NotificationLogRepository) SetClicked(providerMessageID string) error {
	query := `UPDATE notification_log SET clicked = true WHERE provider_message_id = $1`

	result, err := r.db.Exec(query, providerMessageID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrLogEntryNotFound
	}

	return nil
}

// ListByEvent возвращает все попытки доставки события
func (r *NotificationLogRepository) ListByEvent(eventID int64) ([]*models.NotificationLogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM notification_log WHERE event_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.NotificationLogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeleteOlderThan удаляет записи журнала старше cutoff (retention)
// Возвращает количество удаленных строк
func (r *NotificationLogRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	query := `DELETE FROM notification_log WHERE created_at < $1`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
