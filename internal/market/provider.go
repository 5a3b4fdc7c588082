// Package market предоставляет доступ к состоянию рынка и счетов
// для оценки условий алертов.
package market

import (
	"context"
	"time"
)

// StateProvider определяет унифицированный интерфейс источника рыночных данных
//
// Движок оценки запрашивает snapshot перед проверкой условия алерта.
// Реализации: QuoteClient (HTTP к сервису котировок), CycleCache (обёртка
// с кэшированием в рамках одного цикла оценки)
type StateProvider interface {
	// GetState возвращает снимок состояния для области запроса
	GetState(ctx context.Context, q Query) (*Snapshot, error)
}

// Query описывает область данных, нужную для оценки одного алерта
type Query struct {
	Symbol     string `json:"symbol"`
	Exchange   string `json:"exchange,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
	StrategyID string `json:"strategy_id,omitempty"`
}

// Snapshot содержит снимок состояния рынка и счёта на момент запроса
//
// Не все поля заполнены для каждого запроса: сервис котировок возвращает
// только данные, относящиеся к области Query
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`      // последняя цена
	PrevPrice float64   `json:"prev_price"` // цена предыдущего снимка (для crosses_above/below)
	Timestamp time.Time `json:"timestamp"`

	// Технические индикаторы по имени: "rsi_14", "sma_50", "iv" и т.д.
	Indicators map[string]float64 `json:"indicators,omitempty"`

	// Открытая позиция по symbol/account (nil если позиции нет)
	Position *Position `json:"position,omitempty"`

	// Греки портфеля/позиции: "delta", "gamma", "theta", "vega"
	Greeks map[string]float64 `json:"greeks,omitempty"`

	// Ордера в области запроса
	Orders []OrderInfo `json:"orders,omitempty"`

	// Метрики стратегии: "pnl", "drawdown", "win_rate"
	Strategy map[string]float64 `json:"strategy,omitempty"`
}

// Position содержит состояние открытой позиции
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"` // "long" или "short"
	Quantity      float64 `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	PnLPercent    float64 `json:"pnl_percent"`
}

// OrderInfo содержит состояние ордера
type OrderInfo struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Status    string    `json:"status"` // "open", "filled", "cancelled", "rejected"
	Quantity  float64   `json:"quantity"`
	FilledQty float64   `json:"filled_qty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IndicatorValue возвращает значение индикатора по имени
func (s *Snapshot) IndicatorValue(name string) (float64, bool) {
	if s.Indicators == nil {
		return 0, false
	}
	v, ok := s.Indicators[name]
	return v, ok
}

// GreekValue возвращает значение грека по имени
func (s *Snapshot) GreekValue(name string) (float64, bool) {
	if s.Greeks == nil {
		return 0, false
	}
	v, ok := s.Greeks[name]
	return v, ok
}
