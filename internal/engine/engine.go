package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"alertd/internal/config"
	"alertd/internal/market"
	"alertd/internal/models"
	"alertd/pkg/utils"
)

const (
	snoozeSweepBatch   = 500
	resendSweepBatch   = 200
	retentionSweepIvl  = time.Hour
)

// Engine - оркестратор цикла оценки алертов.
//
// Каждый тик: служебные sweep'ы (истечение, snooze, повторная доставка,
// ретенция журнала), затем выборка активных алертов и их параллельная
// оценка пулом воркеров. Циклы не накладываются: если предыдущий еще
// идет, новый тик пропускается целиком
type Engine struct {
	alerts     AlertStore
	events     EventStore
	prefs      PreferenceStore
	logs       LogStore
	provider   market.StateProvider
	evaluator  *Evaluator
	dispatcher *Dispatcher
	broadcaster Broadcaster
	logger     *zap.Logger
	cfg        config.EngineConfig

	running int32

	// Отпечатки конфигураций, уже отмеченных как невалидные.
	// Позволяет логировать ValidationError один раз на изменение конфига
	invalidMu sync.Mutex
	invalid   map[int64]string

	lastRetention time.Time
}

// NewEngine собирает движок из хранилищ и внешних зависимостей.
// broadcaster опционален (nil - без рассылки на дашборд)
func NewEngine(alerts AlertStore, events EventStore, prefs PreferenceStore, logs LogStore, provider market.StateProvider, dispatcher *Dispatcher, broadcaster Broadcaster, cfg config.EngineConfig, logger *zap.Logger) *Engine {
	return &Engine{
		alerts:      alerts,
		events:      events,
		prefs:       prefs,
		logs:        logs,
		provider:    provider,
		evaluator:   NewEvaluator(),
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		logger:      logger,
		cfg:         cfg,
		invalid:     make(map[int64]string),
	}
}

// Run запускает периодический цикл оценки до отмены контекста
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.logger.Info("evaluation loop started",
		zap.Duration("tick_interval", e.cfg.TickInterval),
		zap.Int("workers", e.cfg.Workers),
	)

	e.RunEvaluationCycle(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("evaluation loop stopped")
			return
		case now := <-ticker.C:
			e.RunEvaluationCycle(ctx, now)
		}
	}
}

// RunEvaluationCycle выполняет один полный цикл оценки.
// Если предыдущий цикл еще не завершился, тик пропускается
func (e *Engine) RunEvaluationCycle(ctx context.Context, now time.Time) {
	if !atomic.CompareAndSwapInt32(&e.running, 0, 1) {
		CyclesSkipped.Inc()
		e.logger.Warn("previous evaluation cycle still running, skipping tick")
		return
	}
	defer atomic.StoreInt32(&e.running, 0)

	start := time.Now()
	defer func() {
		CycleDuration.Observe(time.Since(start).Seconds())
	}()

	cache := market.NewCycleCache(e.provider)
	prefs := newPrefCache(e.prefs, e.logger)

	e.sweepExpired(now)
	e.sweepSnoozed(ctx, cache, prefs, now)
	e.sweepUnnotified(ctx, prefs, now)
	e.sweepRetention(now)

	alerts, err := e.alerts.GetActive()
	if err != nil {
		e.logger.Error("failed to load active alerts", zap.Error(err))
		return
	}
	if len(alerts) == 0 {
		return
	}

	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(alerts) {
		workers = len(alerts)
	}

	queue := make(chan *models.Alert)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for alert := range queue {
				e.processAlert(ctx, alert, cache, prefs, now)
			}
		}()
	}

	for _, alert := range alerts {
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return
		case queue <- alert:
		}
	}
	close(queue)
	wg.Wait()

	e.logger.Debug("evaluation cycle finished",
		zap.Int("alerts", len(alerts)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// processAlert проводит один алерт через гейты и, при срабатывании,
// через Trigger Gate и диспетчеризацию
func (e *Engine) processAlert(ctx context.Context, alert *models.Alert, cache *market.CycleCache, prefs *prefCache, now time.Time) {
	if err := e.evaluator.ValidateConfig(alert.ConditionType, alert.ConditionConfig); err != nil {
		e.reportInvalid(alert, err)
		AlertsEvaluated.WithLabelValues(alert.ConditionType, "invalid").Inc()
		return
	}
	e.clearInvalid(alert.ID)

	pref := prefs.get(alert.UserID)
	loc := utils.LocationOrUTC(pref.Timezone)

	ok, reason := ShouldEvaluate(alert, now, loc)
	if !ok {
		if reason == SkipReasonWindow {
			AlertsEvaluated.WithLabelValues(alert.ConditionType, "skipped").Inc()
		}
		return
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.cfg.EvalTimeout)
	defer cancel()

	var snapshot *market.Snapshot
	if alert.ConditionType != models.ConditionTypeTime {
		var err error
		snapshot, err = cache.GetState(evalCtx, queryFor(alert))
		if err != nil {
			// Транзиентная ошибка источника данных: повтор на следующем цикле
			e.logger.Warn("market state fetch failed",
				zap.Int64("alert_id", alert.ID),
				zap.Error(NewEvaluationError(alert.ID, err)),
			)
			e.markEvaluated(alert, now)
			AlertsEvaluated.WithLabelValues(alert.ConditionType, "error").Inc()
			return
		}
	}

	evalStart := time.Now()
	result, err := e.evaluator.Evaluate(alert, snapshot, now)
	EvaluationDuration.WithLabelValues(alert.ConditionType).Observe(time.Since(evalStart).Seconds())

	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			e.reportInvalid(alert, err)
			AlertsEvaluated.WithLabelValues(alert.ConditionType, "invalid").Inc()
			return
		}
		e.logger.Warn("alert evaluation failed",
			zap.Int64("alert_id", alert.ID),
			zap.String("condition_type", alert.ConditionType),
			zap.Error(err),
		)
		e.markEvaluated(alert, now)
		AlertsEvaluated.WithLabelValues(alert.ConditionType, "error").Inc()
		return
	}

	e.markEvaluated(alert, now)

	if !result.Fired {
		AlertsEvaluated.WithLabelValues(alert.ConditionType, "not_fired").Inc()
		return
	}
	AlertsEvaluated.WithLabelValues(alert.ConditionType, "fired").Inc()

	dayStart := utils.GetDayStartIn(now, loc)
	event, fired, err := e.alerts.TriggerAtomic(alert, now, dayStart, result.TriggerValue, result.EvaluationResult)
	if err != nil {
		e.logger.Error("trigger gate failed",
			zap.Int64("alert_id", alert.ID),
			zap.Error(err),
		)
		return
	}
	if !fired {
		// Подавлено cooldown'ом, дневным лимитом или сменой статуса
		TriggersSuppressed.Inc()
		return
	}

	TriggersTotal.WithLabelValues(alert.ConditionType).Inc()
	e.logger.Info("alert triggered",
		zap.Int64("alert_id", alert.ID),
		zap.Int64("event_id", event.ID),
		zap.String("condition_type", alert.ConditionType),
		zap.Any("trigger_value", event.TriggerValue),
	)

	e.broadcast(event)
	e.dispatcher.Dispatch(ctx, alert, event, pref, now)
}

// sweepExpired переводит алерты с истекшим expires_at в статус expired
func (e *Engine) sweepExpired(now time.Time) {
	n, err := e.alerts.ExpireDue(now)
	if err != nil {
		e.logger.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		e.logger.Info("alerts expired", zap.Int64("count", n))
	}
}

// sweepSnoozed обрабатывает события с истекшим snooze: условие
// перевычисляется, и если оно все еще истинно, уведомление уходит
// повторно по тому же событию. Новое событие не создается
func (e *Engine) sweepSnoozed(ctx context.Context, cache *market.CycleCache, prefs *prefCache, now time.Time) {
	events, err := e.events.ListSnoozeElapsed(now, snoozeSweepBatch)
	if err != nil {
		e.logger.Error("snooze sweep failed", zap.Error(err))
		return
	}

	for _, event := range events {
		alert, err := e.alerts.GetByID(event.AlertID)
		if err != nil {
			e.logger.Warn("snoozed event references missing alert",
				zap.Int64("event_id", event.ID),
				zap.Int64("alert_id", event.AlertID),
				zap.Error(err),
			)
			continue
		}
		if alert.Status != models.AlertStatusActive && alert.Status != models.AlertStatusTriggered {
			continue
		}

		var snapshot *market.Snapshot
		if alert.ConditionType != models.ConditionTypeTime {
			evalCtx, cancel := context.WithTimeout(ctx, e.cfg.EvalTimeout)
			snapshot, err = cache.GetState(evalCtx, queryFor(alert))
			cancel()
			if err != nil {
				e.logger.Warn("snooze re-check fetch failed",
					zap.Int64("event_id", event.ID),
					zap.Error(err),
				)
				continue
			}
		}

		result, err := e.evaluator.Evaluate(alert, snapshot, now)
		if err != nil || !result.Fired {
			continue
		}

		e.dispatcher.Dispatch(ctx, alert, event, prefs.get(alert.UserID), now)
	}

	if n, err := e.events.ClearElapsedSnoozes(now); err != nil {
		e.logger.Error("failed to clear elapsed snoozes", zap.Error(err))
	} else if n > 0 {
		e.logger.Debug("snoozes cleared", zap.Int64("count", n))
	}
}

// sweepUnnotified повторяет диспетчеризацию событий, у которых
// ни один канал не был доставлен. Закрывает пробел после падения
// процесса между созданием события и отправкой
func (e *Engine) sweepUnnotified(ctx context.Context, prefs *prefCache, now time.Time) {
	events, err := e.events.ListUnnotified(now.Add(-e.cfg.ResendInterval), resendSweepBatch)
	if err != nil {
		e.logger.Error("re-notify sweep failed", zap.Error(err))
		return
	}

	for _, event := range events {
		alert, err := e.alerts.GetByID(event.AlertID)
		if err != nil {
			continue
		}
		e.dispatcher.Dispatch(ctx, alert, event, prefs.get(alert.UserID), now)
	}
}

// sweepRetention удаляет старые записи журнала доставки.
// Выполняется не чаще раза в час
func (e *Engine) sweepRetention(now time.Time) {
	if e.cfg.LogRetention <= 0 {
		return
	}
	if now.Sub(e.lastRetention) < retentionSweepIvl {
		return
	}
	e.lastRetention = now

	n, err := e.logs.DeleteOlderThan(now.Add(-e.cfg.LogRetention))
	if err != nil {
		e.logger.Error("log retention sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		e.logger.Info("notification log pruned", zap.Int64("deleted", n))
	}
}

func (e *Engine) markEvaluated(alert *models.Alert, now time.Time) {
	if err := e.alerts.MarkEvaluated(alert.ID, now); err != nil {
		e.logger.Error("failed to mark alert evaluated",
			zap.Int64("alert_id", alert.ID),
			zap.Error(err),
		)
	}
}

// reportInvalid логирует невалидную конфигурацию один раз.
// Повторный лог только после изменения condition_config
func (e *Engine) reportInvalid(alert *models.Alert, err error) {
	fingerprint := alert.ConditionType + "|" + string(alert.ConditionConfig)

	e.invalidMu.Lock()
	prev, seen := e.invalid[alert.ID]
	e.invalid[alert.ID] = fingerprint
	e.invalidMu.Unlock()

	if seen && prev == fingerprint {
		return
	}

	e.logger.Error("alert has invalid condition config, skipping until fixed",
		zap.Int64("alert_id", alert.ID),
		zap.String("condition_type", alert.ConditionType),
		zap.Error(err),
	)
}

func (e *Engine) clearInvalid(alertID int64) {
	e.invalidMu.Lock()
	delete(e.invalid, alertID)
	e.invalidMu.Unlock()
}

func (e *Engine) broadcast(event *models.AlertEvent) {
	if e.broadcaster == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type":  "alert_event",
		"event": event,
	})
	if err != nil {
		e.logger.Error("failed to marshal event for broadcast", zap.Error(err))
		return
	}
	e.broadcaster.Broadcast(payload)
}

func queryFor(alert *models.Alert) market.Query {
	q := market.Query{
		Symbol:   alert.Symbol,
		Exchange: alert.Exchange,
	}
	if q.Symbol == "" && len(alert.Symbols) > 0 {
		q.Symbol = alert.Symbols[0]
	}
	if alert.AccountID != nil {
		q.AccountID = strconv.FormatInt(*alert.AccountID, 10)
	}
	if alert.StrategyID != nil {
		q.StrategyID = strconv.FormatInt(*alert.StrategyID, 10)
	}
	return q
}

// prefCache кэширует настройки доставки на время одного цикла.
// Ошибка загрузки дает настройки по умолчанию
type prefCache struct {
	store  PreferenceStore
	logger *zap.Logger

	mu    sync.Mutex
	prefs map[int64]*models.NotificationPreference
}

func newPrefCache(store PreferenceStore, logger *zap.Logger) *prefCache {
	return &prefCache{
		store:  store,
		logger: logger,
		prefs:  make(map[int64]*models.NotificationPreference),
	}
}

func (c *prefCache) get(userID int64) *models.NotificationPreference {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pref, ok := c.prefs[userID]; ok {
		return pref
	}

	pref, err := c.store.GetByUserID(userID)
	if err != nil {
		c.logger.Warn("failed to load notification preferences, using defaults",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		pref = models.DefaultPreference(userID)
	}
	c.prefs[userID] = pref
	return pref
}
