package models

import (
	"encoding/json"
	"time"
)

// Alert представляет постоянное пользовательское условие-наблюдение.
//
// Владелец создает алерт с типизированной конфигурацией условия,
// движок периодически вычисляет условие и при срабатывании создает
// AlertEvent. ConditionConfig хранится как непрозрачный JSON и
// парсится в типизированную структуру по ConditionType.
type Alert struct {
	ID         int64  `json:"id" db:"id"`
	UserID     int64  `json:"user_id" db:"user_id"`
	AccountID  *int64 `json:"account_id,omitempty" db:"account_id"`
	StrategyID *int64 `json:"strategy_id,omitempty" db:"strategy_id"`
	Name       string `json:"name" db:"name"`

	ConditionType   string          `json:"condition_type" db:"condition_type"`     // price, indicator, position, greek, order, time, custom, strategy
	ConditionConfig json.RawMessage `json:"condition_config" db:"condition_config"` // типизированный payload (JSON в БД)

	// Область наблюдения: один символ, список символов или вся биржа
	Symbol   string   `json:"symbol,omitempty" db:"symbol"`     // NIFTY
	Symbols  []string `json:"symbols,omitempty" db:"symbols"`   // для мульти-символьных условий
	Exchange string   `json:"exchange,omitempty" db:"exchange"` // NSE

	Priority int      `json:"priority" db:"priority"` // сравнивается с priority_threshold в тихие часы
	Channels []string `json:"channels" db:"channels"` // упорядоченный список каналов доставки

	Status string `json:"status" db:"status"` // active, paused, triggered, expired, deleted

	EvaluationInterval int     `json:"evaluation_interval" db:"evaluation_interval"` // секунды, минимум 10
	EvalWindowStart    *string `json:"eval_window_start,omitempty" db:"eval_window_start"` // "HH:MM", опционально
	EvalWindowEnd      *string `json:"eval_window_end,omitempty" db:"eval_window_end"`
	MaxTriggersPerDay  int     `json:"max_triggers_per_day" db:"max_triggers_per_day"` // 0 = без лимита
	CooldownSeconds    int     `json:"cooldown_seconds" db:"cooldown_seconds"`
	OneShot            bool    `json:"one_shot" db:"one_shot"` // после первого срабатывания → status=triggered (терминально)

	TriggerCount    int        `json:"trigger_count" db:"trigger_count"`
	EvaluationCount int        `json:"evaluation_count" db:"evaluation_count"`
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty" db:"last_evaluated_at"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" db:"expires_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Статусы алерта
const (
	AlertStatusActive    = "active"
	AlertStatusPaused    = "paused"
	AlertStatusTriggered = "triggered" // терминальный, только для one-shot
	AlertStatusExpired   = "expired"
	AlertStatusDeleted   = "deleted" // soft delete
)

// Типы условий
const (
	ConditionTypePrice     = "price"
	ConditionTypeIndicator = "indicator"
	ConditionTypePosition  = "position"
	ConditionTypeGreek     = "greek"
	ConditionTypeOrder     = "order"
	ConditionTypeTime      = "time"
	ConditionTypeCustom    = "custom"
	ConditionTypeStrategy  = "strategy"
)

// MinEvaluationInterval - минимальный интервал между вычислениями (секунды)
const MinEvaluationInterval = 10

// ValidConditionTypes - допустимые типы условий
var ValidConditionTypes = map[string]bool{
	ConditionTypePrice:     true,
	ConditionTypeIndicator: true,
	ConditionTypePosition:  true,
	ConditionTypeGreek:     true,
	ConditionTypeOrder:     true,
	ConditionTypeTime:      true,
	ConditionTypeCustom:    true,
	ConditionTypeStrategy:  true,
}

// IsTerminal возвращает true если статус терминальный (алерт больше не вычисляется)
func (a *Alert) IsTerminal() bool {
	return a.Status == AlertStatusTriggered || a.Status == AlertStatusExpired || a.Status == AlertStatusDeleted
}

// IsExpired возвращает true если срок действия алерта истек к моменту now
func (a *Alert) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}
