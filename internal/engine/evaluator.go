package engine

import (
	"fmt"
	"math"
	"time"

	jsoniter "github.com/json-iterator/go"

	"alertd/internal/market"
	"alertd/internal/models"
	"alertd/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Операторы сравнения
const (
	OpGTE          = ">="
	OpLTE          = "<="
	OpEQ           = "=="
	OpCrossesAbove = "crosses_above"
	OpCrossesBelow = "crosses_below"
)

// epsilon для сравнения float на равенство
const epsilon = 1e-9

// Result - итог вычисления условия
type Result struct {
	Fired bool

	// TriggerValue - конкретные значения, вызвавшие срабатывание
	TriggerValue map[string]interface{}

	// EvaluationResult - полный контекст вычисления для аудита
	EvaluationResult map[string]interface{}
}

// Типизированные конфигурации условий, по одной на тег condition_type.
// Неизвестный тег отклоняется на валидации, не на вычислении

// PriceCondition - сравнение текущей цены с порогом
type PriceCondition struct {
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// IndicatorCondition - сравнение значения индикатора с порогом
type IndicatorCondition struct {
	Indicator string  `json:"indicator"` // "rsi_14", "sma_50", ...
	Timeframe string  `json:"timeframe,omitempty"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// PositionCondition - условие на метрику открытой позиции
type PositionCondition struct {
	Metric    string  `json:"metric"` // "unrealized_pnl", "pnl_percent", "quantity"
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// GreekCondition - условие на грек позиции/портфеля
type GreekCondition struct {
	Greek     string  `json:"greek"` // "delta", "gamma", "theta", "vega"
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// OrderCondition - срабатывает когда в области наблюдения есть ордер
// в указанном статусе
type OrderCondition struct {
	OrderStatus string `json:"order_status"` // "filled", "cancelled", "rejected"
}

// TimeCondition - срабатывает раз в день в указанное время
type TimeCondition struct {
	At       string `json:"at"` // "HH:MM"
	Timezone string `json:"timezone,omitempty"`
}

// CustomCondition - комбинация подусловий над ценой и индикаторами
type CustomCondition struct {
	Mode  string            `json:"mode"` // "all" или "any"
	Terms []CustomTerm      `json:"terms"`
}

// CustomTerm - одно подусловие custom алерта
type CustomTerm struct {
	Source    string  `json:"source"` // "price" или имя индикатора
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// StrategyCondition - условие на метрику стратегии
type StrategyCondition struct {
	Metric    string  `json:"metric"` // "pnl", "drawdown", "win_rate"
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// Evaluator вычисляет условия алертов над снимком состояния
//
// Stateless: вся память о прошлом (предыдущая цена для crosses_*,
// last_triggered_at для time) приходит извне. Никогда не мутирует Alert
type Evaluator struct{}

// NewEvaluator создает evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// ValidateConfig парсит и проверяет конфигурацию условия
// Возвращает ValidationError при неизвестном теге или отсутствии полей
func (e *Evaluator) ValidateConfig(conditionType string, config []byte) error {
	if !models.ValidConditionTypes[conditionType] {
		return NewValidationError("condition_type", fmt.Sprintf("unknown condition type %q", conditionType))
	}

	switch conditionType {
	case models.ConditionTypePrice:
		var c PriceCondition
		if err := json.Unmarshal(config, &c); err != nil {
			return NewValidationError("condition_config", err.Error())
		}
		return validateOperator(c.Operator)

	case models.ConditionTypeIndicator:
		var c IndicatorCondition
		if err := json.Unmarshal(config, &c); err != nil {
			return NewValidationError("condition_config", err.Error())
		}
		if c.Indicator == "" {
			return NewValidationError("condition_config", "indicator name is required")
		}
		return validateOperator(c.Operator)

	case models.ConditionTypePosition:
		var c PositionCondition
		if err := json.Unmarshal(config, &c); err != nil {
			return NewValidationError("condition_config", err.Error())
		}
		if c.Metric == "" {
			return NewValidationError("condition_config", "position metric is required")
		}
		return validateLevelOperator(c.Operator)

	case models.ConditionTypeGreek:
		var c GreekCondition
		if err := json.Unmarshal(config, &c); err != nil {
			return NewValidationError("condition_config", err.Error())
		}
		if c.Greek == "" {
			return NewValidationError("condition_config", "greek name is required")
		}
		return validateLevelOperator(c.Operator)

	case models.ConditionTypeOrder:
		var c OrderCondition
		if err := json.Unmarshal(config, &c); err != nil {
			return NewValidationError("condition_config", err.Error())
		}
		if c.OrderStatus == "" {
			return NewValidationError("condition_config", "order_status is required")
		}
		return nil

	case models.ConditionTypeTime:
		var c TimeCondition
		if err := json.Unmarshal(config, &c); err != nil {
			return NewValidationError("condition_config", err.Error())
		}
		if _, err := utils.ParseClock(c.At); err != nil {
			return NewValidationError("condition_config", fmt.Sprintf("invalid time %q", c.At))
		}
		if err := utils.ValidateTimezone(c.Timezone); err != nil {
			return NewValidationError("condition_config", fmt.Sprintf("invalid timezone %q", c.Timezone))
		}
		return nil

	case models.ConditionTypeCustom:
		var c CustomCondition
		if err := json.Unmarshal(config, &c); err != nil {
			return NewValidationError("condition_config", err.Error())
		}
		if c.Mode != "all" && c.Mode != "any" {
			return NewValidationError("condition_config", "mode must be \"all\" or \"any\"")
		}
		if len(c.Terms) == 0 {
			return NewValidationError("condition_config", "at least one term is required")
		}
		for _, term := range c.Terms {
			if term.Source == "" {
				return NewValidationError("condition_config", "term source is required")
			}
			if err := validateOperator(term.Operator); err != nil {
				return err
			}
		}
		return nil

	case models.ConditionTypeStrategy:
		var c StrategyCondition
		if err := json.Unmarshal(config, &c); err != nil {
			return NewValidationError("condition_config", err.Error())
		}
		if c.Metric == "" {
			return NewValidationError("condition_config", "strategy metric is required")
		}
		return validateLevelOperator(c.Operator)
	}

	return NewValidationError("condition_type", fmt.Sprintf("unknown condition type %q", conditionType))
}

func validateOperator(op string) error {
	switch op {
	case OpGTE, OpLTE, OpEQ, OpCrossesAbove, OpCrossesBelow:
		return nil
	}
	return NewValidationError("operator", fmt.Sprintf("unknown operator %q", op))
}

// validateLevelOperator дополнительно отклоняет crosses_*: у позиционных
// метрик, греков и метрик стратегии нет источника предыдущего значения,
// пересечение для них невычислимо
func validateLevelOperator(op string) error {
	if err := validateOperator(op); err != nil {
		return err
	}
	if op == OpCrossesAbove || op == OpCrossesBelow {
		return NewValidationError("operator", fmt.Sprintf("operator %q requires a previous value source", op))
	}
	return nil
}

// Evaluate вычисляет условие алерта над снимком состояния
//
// now и alert.LastTriggeredAt нужны только условию типа time
// (раз в день, не чаще). Прочие условия читают snapshot
func (e *Evaluator) Evaluate(alert *models.Alert, snapshot *market.Snapshot, now time.Time) (*Result, error) {
	switch alert.ConditionType {
	case models.ConditionTypePrice:
		return e.evaluatePrice(alert, snapshot)
	case models.ConditionTypeIndicator:
		return e.evaluateIndicator(alert, snapshot)
	case models.ConditionTypePosition:
		return e.evaluatePosition(alert, snapshot)
	case models.ConditionTypeGreek:
		return e.evaluateGreek(alert, snapshot)
	case models.ConditionTypeOrder:
		return e.evaluateOrder(alert, snapshot)
	case models.ConditionTypeTime:
		return e.evaluateTime(alert, now)
	case models.ConditionTypeCustom:
		return e.evaluateCustom(alert, snapshot)
	case models.ConditionTypeStrategy:
		return e.evaluateStrategy(alert, snapshot)
	}

	return nil, NewValidationError("condition_type", fmt.Sprintf("unknown condition type %q", alert.ConditionType))
}

// compare применяет оператор к текущему и предыдущему значению
func compare(op string, current, previous, threshold float64) bool {
	switch op {
	case OpGTE:
		return current >= threshold
	case OpLTE:
		return current <= threshold
	case OpEQ:
		return math.Abs(current-threshold) <= epsilon
	case OpCrossesAbove:
		return previous < threshold && current >= threshold
	case OpCrossesBelow:
		return previous > threshold && current <= threshold
	}
	return false
}

func (e *Evaluator) evaluatePrice(alert *models.Alert, snapshot *market.Snapshot) (*Result, error) {
	var c PriceCondition
	if err := json.Unmarshal(alert.ConditionConfig, &c); err != nil {
		return nil, NewValidationError("condition_config", err.Error())
	}

	fired := compare(c.Operator, snapshot.Price, snapshot.PrevPrice, c.Threshold)

	return &Result{
		Fired: fired,
		TriggerValue: map[string]interface{}{
			"current_price": snapshot.Price,
			"threshold":     c.Threshold,
		},
		EvaluationResult: map[string]interface{}{
			"condition_type": models.ConditionTypePrice,
			"operator":       c.Operator,
			"current_price":  snapshot.Price,
			"prev_price":     snapshot.PrevPrice,
			"threshold":      c.Threshold,
			"symbol":         alert.Symbol,
		},
	}, nil
}

func (e *Evaluator) evaluateIndicator(alert *models.Alert, snapshot *market.Snapshot) (*Result, error) {
	var c IndicatorCondition
	if err := json.Unmarshal(alert.ConditionConfig, &c); err != nil {
		return nil, NewValidationError("condition_config", err.Error())
	}

	current, ok := snapshot.IndicatorValue(c.Indicator)
	if !ok {
		return nil, NewEvaluationError(alert.ID, fmt.Errorf("indicator %q not present in snapshot", c.Indicator))
	}

	// Предыдущее значение индикатора приходит под ключом "prev_<name>"
	previous, _ := snapshot.IndicatorValue("prev_" + c.Indicator)

	fired := compare(c.Operator, current, previous, c.Threshold)

	return &Result{
		Fired: fired,
		TriggerValue: map[string]interface{}{
			"indicator": c.Indicator,
			"value":     current,
			"threshold": c.Threshold,
		},
		EvaluationResult: map[string]interface{}{
			"condition_type": models.ConditionTypeIndicator,
			"indicator":      c.Indicator,
			"timeframe":      c.Timeframe,
			"operator":       c.Operator,
			"value":          current,
			"prev_value":     previous,
			"threshold":      c.Threshold,
		},
	}, nil
}

func (e *Evaluator) evaluatePosition(alert *models.Alert, snapshot *market.Snapshot) (*Result, error) {
	var c PositionCondition
	if err := json.Unmarshal(alert.ConditionConfig, &c); err != nil {
		return nil, NewValidationError("condition_config", err.Error())
	}

	// Нет позиции - условие не выполнено, это не ошибка
	if snapshot.Position == nil {
		return &Result{
			Fired:            false,
			TriggerValue:     map[string]interface{}{},
			EvaluationResult: map[string]interface{}{"condition_type": models.ConditionTypePosition, "position": nil},
		}, nil
	}

	var current float64
	switch c.Metric {
	case "unrealized_pnl":
		current = snapshot.Position.UnrealizedPnL
	case "pnl_percent":
		current = snapshot.Position.PnLPercent
	case "quantity":
		current = snapshot.Position.Quantity
	default:
		return nil, NewValidationError("condition_config", fmt.Sprintf("unknown position metric %q", c.Metric))
	}

	fired := compare(c.Operator, current, current, c.Threshold)

	return &Result{
		Fired: fired,
		TriggerValue: map[string]interface{}{
			"metric":    c.Metric,
			"value":     current,
			"threshold": c.Threshold,
		},
		EvaluationResult: map[string]interface{}{
			"condition_type": models.ConditionTypePosition,
			"metric":         c.Metric,
			"operator":       c.Operator,
			"value":          current,
			"threshold":      c.Threshold,
			"side":           snapshot.Position.Side,
		},
	}, nil
}

func (e *Evaluator) evaluateGreek(alert *models.Alert, snapshot *market.Snapshot) (*Result, error) {
	var c GreekCondition
	if err := json.Unmarshal(alert.ConditionConfig, &c); err != nil {
		return nil, NewValidationError("condition_config", err.Error())
	}

	current, ok := snapshot.GreekValue(c.Greek)
	if !ok {
		return nil, NewEvaluationError(alert.ID, fmt.Errorf("greek %q not present in snapshot", c.Greek))
	}

	fired := compare(c.Operator, current, current, c.Threshold)

	return &Result{
		Fired: fired,
		TriggerValue: map[string]interface{}{
			"greek":     c.Greek,
			"value":     current,
			"threshold": c.Threshold,
		},
		EvaluationResult: map[string]interface{}{
			"condition_type": models.ConditionTypeGreek,
			"greek":          c.Greek,
			"operator":       c.Operator,
			"value":          current,
			"threshold":      c.Threshold,
		},
	}, nil
}

func (e *Evaluator) evaluateOrder(alert *models.Alert, snapshot *market.Snapshot) (*Result, error) {
	var c OrderCondition
	if err := json.Unmarshal(alert.ConditionConfig, &c); err != nil {
		return nil, NewValidationError("condition_config", err.Error())
	}

	for _, order := range snapshot.Orders {
		if order.Status == c.OrderStatus {
			return &Result{
				Fired: true,
				TriggerValue: map[string]interface{}{
					"order_id":     order.ID,
					"order_status": order.Status,
				},
				EvaluationResult: map[string]interface{}{
					"condition_type": models.ConditionTypeOrder,
					"order_id":       order.ID,
					"order_status":   order.Status,
					"symbol":         order.Symbol,
					"filled_qty":     order.FilledQty,
				},
			}, nil
		}
	}

	return &Result{
		Fired:            false,
		TriggerValue:     map[string]interface{}{},
		EvaluationResult: map[string]interface{}{"condition_type": models.ConditionTypeOrder, "order_status": c.OrderStatus, "orders_seen": len(snapshot.Orders)},
	}, nil
}

// evaluateTime срабатывает когда локальное время прошло отметку "at"
// и сегодня срабатывания еще не было (раз в день)
func (e *Evaluator) evaluateTime(alert *models.Alert, now time.Time) (*Result, error) {
	var c TimeCondition
	if err := json.Unmarshal(alert.ConditionConfig, &c); err != nil {
		return nil, NewValidationError("condition_config", err.Error())
	}

	loc := utils.LocationOrUTC(c.Timezone)
	local := now.In(loc)

	target, err := utils.ParseClock(c.At)
	if err != nil {
		return nil, NewValidationError("condition_config", fmt.Sprintf("invalid time %q", c.At))
	}

	passed := utils.MinutesOfDay(local) >= target

	// Уже срабатывал сегодня (в таймзоне условия)?
	firedToday := false
	if alert.LastTriggeredAt != nil {
		lastLocal := alert.LastTriggeredAt.In(loc)
		firedToday = lastLocal.Year() == local.Year() && lastLocal.YearDay() == local.YearDay()
	}

	fired := passed && !firedToday

	return &Result{
		Fired: fired,
		TriggerValue: map[string]interface{}{
			"at":         c.At,
			"local_time": local.Format("15:04"),
		},
		EvaluationResult: map[string]interface{}{
			"condition_type": models.ConditionTypeTime,
			"at":             c.At,
			"timezone":       loc.String(),
			"local_time":     local.Format("15:04"),
			"fired_today":    firedToday,
		},
	}, nil
}

func (e *Evaluator) evaluateCustom(alert *models.Alert, snapshot *market.Snapshot) (*Result, error) {
	var c CustomCondition
	if err := json.Unmarshal(alert.ConditionConfig, &c); err != nil {
		return nil, NewValidationError("condition_config", err.Error())
	}

	matched := 0
	terms := make([]map[string]interface{}, 0, len(c.Terms))

	for _, term := range c.Terms {
		var current, previous float64
		if term.Source == "price" {
			current, previous = snapshot.Price, snapshot.PrevPrice
		} else {
			v, ok := snapshot.IndicatorValue(term.Source)
			if !ok {
				return nil, NewEvaluationError(alert.ID, fmt.Errorf("source %q not present in snapshot", term.Source))
			}
			current = v
			previous, _ = snapshot.IndicatorValue("prev_" + term.Source)
		}

		termFired := compare(term.Operator, current, previous, term.Threshold)
		if termFired {
			matched++
		}
		terms = append(terms, map[string]interface{}{
			"source":    term.Source,
			"operator":  term.Operator,
			"value":     current,
			"threshold": term.Threshold,
			"fired":     termFired,
		})
	}

	fired := false
	switch c.Mode {
	case "all":
		fired = matched == len(c.Terms)
	case "any":
		fired = matched > 0
	}

	return &Result{
		Fired: fired,
		TriggerValue: map[string]interface{}{
			"mode":    c.Mode,
			"matched": matched,
			"total":   len(c.Terms),
		},
		EvaluationResult: map[string]interface{}{
			"condition_type": models.ConditionTypeCustom,
			"mode":           c.Mode,
			"terms":          terms,
		},
	}, nil
}

func (e *Evaluator) evaluateStrategy(alert *models.Alert, snapshot *market.Snapshot) (*Result, error) {
	var c StrategyCondition
	if err := json.Unmarshal(alert.ConditionConfig, &c); err != nil {
		return nil, NewValidationError("condition_config", err.Error())
	}

	current, ok := snapshot.Strategy[c.Metric]
	if !ok {
		return nil, NewEvaluationError(alert.ID, fmt.Errorf("strategy metric %q not present in snapshot", c.Metric))
	}

	fired := compare(c.Operator, current, current, c.Threshold)

	return &Result{
		Fired: fired,
		TriggerValue: map[string]interface{}{
			"metric":    c.Metric,
			"value":     current,
			"threshold": c.Threshold,
		},
		EvaluationResult: map[string]interface{}{
			"condition_type": models.ConditionTypeStrategy,
			"metric":         c.Metric,
			"operator":       c.Operator,
			"value":          current,
			"threshold":      c.Threshold,
		},
	}, nil
}
