package models

import "time"

// NotificationPreference представляет настройки доставки уведомлений пользователя.
//
// Одна строка на пользователя. Мутируется только владельцем через API,
// диспетчер читает (и кэширует на время цикла).
type NotificationPreference struct {
	UserID int64 `json:"user_id" db:"user_id"`

	// Настройки по каналам: включенность, адрес и зашифрованные credentials.
	// JSON в БД: {"telegram": {"enabled": true, "address": "123456", ...}, ...}
	Channels map[string]ChannelSetting `json:"channels" db:"channels"`

	// Тихие часы: окно локального времени, в котором доставляются только
	// алерты с priority >= PriorityThreshold. Окно может переходить через
	// полночь (22:00 - 07:00).
	QuietHoursStart *string `json:"quiet_hours_start,omitempty" db:"quiet_hours_start"` // "HH:MM"
	QuietHoursEnd   *string `json:"quiet_hours_end,omitempty" db:"quiet_hours_end"`
	Timezone        string  `json:"timezone" db:"timezone"` // IANA, например "Asia/Kolkata"

	MaxNotificationsPerHour int    `json:"max_notifications_per_hour" db:"max_notifications_per_hour"` // 0 = без лимита
	PriorityThreshold       int    `json:"priority_threshold" db:"priority_threshold"`
	Format                  string `json:"format" db:"format"` // plain, detailed

	// Hash API токена владельца (bcrypt), для аутентификации control surface
	APITokenHash string `json:"-" db:"api_token_hash"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ChannelSetting - настройки одного канала доставки
type ChannelSetting struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`              // chat id, email, URL - зависит от канала
	Credential string `json:"credential,omitempty"` // зашифровано AES-256-GCM (pkg/crypto)
}

// Каналы доставки
const (
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
	ChannelWebhook  = "webhook"
	ChannelPush     = "push"
	ChannelSMS      = "sms"
)

// ValidChannels - поддерживаемые каналы
var ValidChannels = map[string]bool{
	ChannelTelegram: true,
	ChannelEmail:    true,
	ChannelWebhook:  true,
	ChannelPush:     true,
	ChannelSMS:      true,
}

// Форматы уведомлений
const (
	FormatPlain    = "plain"
	FormatDetailed = "detailed"
)

// DefaultPreference возвращает настройки по умолчанию для пользователя
// без сохраненной строки: все каналы выключены, без тихих часов, UTC.
func DefaultPreference(userID int64) *NotificationPreference {
	return &NotificationPreference{
		UserID:                  userID,
		Channels:                map[string]ChannelSetting{},
		Timezone:                "UTC",
		MaxNotificationsPerHour: 0,
		PriorityThreshold:       0,
		Format:                  FormatPlain,
	}
}

// EnabledChannel возвращает настройку канала если он включен
func (p *NotificationPreference) EnabledChannel(channel string) (ChannelSetting, bool) {
	cs, ok := p.Channels[channel]
	if !ok || !cs.Enabled {
		return ChannelSetting{}, false
	}
	return cs, true
}
