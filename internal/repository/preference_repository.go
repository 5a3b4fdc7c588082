package repository

import (
	"database/sql"
	"errors"
	"time"

	"alertd/internal/models"
)

// Ошибки репозитория настроек
var (
	ErrPreferenceNotFound = errors.New("notification preference not found")
)

// PreferenceRepository - работа с таблицей notification_preferences
type PreferenceRepository struct {
	db *sql.DB
}

// NewPreferenceRepository создает новый экземпляр репозитория
func NewPreferenceRepository(db *sql.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// GetByUserID возвращает настройки пользователя
//
// Если строки нет, возвращает настройки по умолчанию: все каналы выключены,
// без тихих часов, UTC. Диспетчер при этом не отправляет ничего, но событие
// все равно создается
func (r *PreferenceRepository) GetByUserID(userID int64) (*models.NotificationPreference, error) {
	query := `
		SELECT user_id, channels, quiet_hours_start, quiet_hours_end, timezone,
			max_notifications_per_hour, priority_threshold, format, api_token_hash, updated_at
		FROM notification_preferences
		WHERE user_id = $1`

	pref := &models.NotificationPreference{}
	var channels []byte

	err := r.db.QueryRow(query, userID).Scan(
		&pref.UserID,
		&channels,
		&pref.QuietHoursStart,
		&pref.QuietHoursEnd,
		&pref.Timezone,
		&pref.MaxNotificationsPerHour,
		&pref.PriorityThreshold,
		&pref.Format,
		&pref.APITokenHash,
		&pref.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultPreference(userID), nil
		}
		return nil, err
	}

	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &pref.Channels); err != nil {
			return nil, err
		}
	}
	if pref.Channels == nil {
		pref.Channels = map[string]models.ChannelSetting{}
	}

	return pref, nil
}

// Upsert сохраняет настройки пользователя (вставка или полная замена)
func (r *PreferenceRepository) Upsert(pref *models.NotificationPreference) error {
	channelsJSON, err := json.Marshal(pref.Channels)
	if err != nil {
		return err
	}

	pref.UpdatedAt = time.Now()

	query := `
		INSERT INTO notification_preferences
			(user_id, channels, quiet_hours_start, quiet_hours_end, timezone,
			max_notifications_per_hour, priority_threshold, format, api_token_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			channels = EXCLUDED.channels,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			max_notifications_per_hour = EXCLUDED.max_notifications_per_hour,
			priority_threshold = EXCLUDED.priority_threshold,
			format = EXCLUDED.format,
			api_token_hash = EXCLUDED.api_token_hash,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(
		query,
		pref.UserID,
		channelsJSON,
		pref.QuietHoursStart,
		pref.QuietHoursEnd,
		pref.Timezone,
		pref.MaxNotificationsPerHour,
		pref.PriorityThreshold,
		pref.Format,
		pref.APITokenHash,
		pref.UpdatedAt,
	)

	return err
}

// GetTokenHash возвращает bcrypt hash API токена пользователя
func (r *PreferenceRepository) GetTokenHash(userID int64) (string, error) {
	query := `SELECT api_token_hash FROM notification_preferences WHERE user_id = $1`

	var hash string
	err := r.db.QueryRow(query, userID).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrPreferenceNotFound
		}
		return "", err
	}

	return hash, nil
}
