package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"alertd/internal/channel"
	"alertd/internal/models"
	"alertd/internal/repository"
	"alertd/pkg/retry"
)

// Dispatcher раздает уведомления о событии по каналам владельца
//
// Гейты применяются в порядке: тихие часы (все-или-ничего на событие),
// затем по каждому каналу дедупликация и часовой лимит пользователя
// (оба атомарно в CreatePending). Сбой одного канала не влияет на остальные
type Dispatcher struct {
	prefs  PreferenceStore
	events EventStore
	log    LogStore
	sender Sender
	logger *zap.Logger

	maxRetries      int
	retryBackoff    time.Duration
	dispatchTimeout time.Duration
}

// NewDispatcher создает диспетчер уведомлений
func NewDispatcher(prefs PreferenceStore, events EventStore, log LogStore, sender Sender, logger *zap.Logger, maxRetries int, retryBackoff, dispatchTimeout time.Duration) *Dispatcher {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 10 * time.Second
	}

	return &Dispatcher{
		prefs:           prefs,
		events:          events,
		log:             log,
		sender:          sender,
		logger:          logger,
		maxRetries:      maxRetries,
		retryBackoff:    retryBackoff,
		dispatchTimeout: dispatchTimeout,
	}
}

// Dispatch пытается доставить событие по каналам алерта
//
// Вызывается и для свежих событий, и повторно (snooze sweep, re-notify sweep):
// уже отправленные каналы отсекаются дедупликацией в журнале, поэтому
// повторный вызов безопасен
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert, event *models.AlertEvent, pref *models.NotificationPreference, now time.Time) {
	// Тихие часы: все-или-ничего на событие, не по каналам
	if InQuietHours(pref, now) && alert.Priority < pref.PriorityThreshold {
		QuietHoursDrops.Inc()
		d.logger.Info("event suppressed by quiet hours",
			zap.Int64("event_id", event.ID),
			zap.Int64("alert_id", alert.ID),
			zap.Int("priority", alert.Priority),
			zap.Int("threshold", pref.PriorityThreshold),
		)
		d.finalize(event, event.NotificationSent, nil, nil)
		return
	}

	subject, body := d.render(alert, event, pref.Format)

	var attempted []string
	ids := map[string]string{}
	anySuccess := false

	for _, channelName := range alert.Channels {
		cs, enabled := pref.EnabledChannel(channelName)
		if !enabled {
			continue
		}

		entry := &models.NotificationLogEntry{
			EventID:   event.ID,
			AlertID:   alert.ID,
			UserID:    alert.UserID,
			Channel:   channelName,
			Recipient: cs.Address,
		}

		// Атомарно: дедупликация + часовой лимит в одном запросе
		err := d.log.CreatePending(entry, pref.MaxNotificationsPerHour, now.Add(-time.Hour))
		if errors.Is(err, repository.ErrDuplicateDelivery) {
			NotificationsSent.WithLabelValues(channelName, "deduplicated").Inc()
			continue
		}
		if errors.Is(err, repository.ErrRateLimited) {
			// Лимит достигнут: бросаем оставшиеся каналы, очередь не копим
			NotificationsSent.WithLabelValues(channelName, "rate_limited").Inc()
			d.logger.Info("hourly notification limit reached, dropping remaining channels",
				zap.Int64("event_id", event.ID),
				zap.Int64("user_id", alert.UserID),
				zap.Int("limit", pref.MaxNotificationsPerHour),
			)
			break
		}
		if err != nil {
			d.logger.Error("failed to create delivery log entry",
				zap.Int64("event_id", event.ID),
				zap.String("channel", channelName),
				zap.Error(err),
			)
			continue
		}

		attempted = append(attempted, channelName)

		providerID, sendErr := d.sendWithRetry(ctx, channelName, cs.Address, &channel.Notification{
			EventID:  event.ID,
			AlertID:  alert.ID,
			Subject:  subject,
			Body:     body,
			Priority: fmt.Sprintf("%d", alert.Priority),
			DedupKey: models.DedupKey(event.ID, channelName, cs.Address),
		}, entry)

		if sendErr != nil {
			NotificationsSent.WithLabelValues(channelName, "failed").Inc()
			d.logger.Warn("channel dispatch failed",
				zap.Int64("event_id", event.ID),
				zap.String("channel", channelName),
				zap.Error(NewDispatchError(event.ID, channelName, sendErr)),
			)
			continue
		}

		NotificationsSent.WithLabelValues(channelName, "sent").Inc()
		anySuccess = true
		if providerID != "" {
			ids[channelName] = providerID
		}
	}

	d.finalize(event, anySuccess || event.NotificationSent, attempted, ids)
}

// sendWithRetry выполняет отправку с экспоненциальным backoff
// Постоянные ошибки провайдера (4xx) не ретраятся
func (d *Dispatcher) sendWithRetry(ctx context.Context, channelName, recipient string, n *channel.Notification, entry *models.NotificationLogEntry) (string, error) {
	start := time.Now()
	defer func() {
		DispatchDuration.WithLabelValues(channelName).Observe(time.Since(start).Seconds())
	}()

	attempts := 0
	var providerID string

	cfg := retry.DispatchConfig(d.maxRetries, d.retryBackoff)
	cfg.RetryIf = func(err error) bool {
		return !channel.IsPermanent(err)
	}
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		d.logger.Debug("retrying channel dispatch",
			zap.String("channel", channelName),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.dispatchTimeout)
	defer cancel()

	err := retry.Do(sendCtx, func() error {
		attempts++
		id, sendErr := d.sender.Send(sendCtx, channelName, recipient, n)
		if sendErr != nil {
			return sendErr
		}
		providerID = id
		return nil
	}, cfg)

	if err != nil {
		if markErr := d.log.MarkFailed(entry.ID, channel.StatusCode(err), err.Error(), attempts); markErr != nil {
			d.logger.Error("failed to mark delivery as failed", zap.Int64("log_id", entry.ID), zap.Error(markErr))
		}
		return "", err
	}

	if markErr := d.log.MarkSent(entry.ID, providerID, 200, attempts, time.Now()); markErr != nil {
		d.logger.Error("failed to mark delivery as sent", zap.Int64("log_id", entry.ID), zap.Error(markErr))
	}

	return providerID, nil
}

// finalize фиксирует итог диспетчеризации на событии
// Прежние успешные каналы и provider id сохраняются при повторных вызовах
func (d *Dispatcher) finalize(event *models.AlertEvent, sent bool, attempted []string, ids map[string]string) {
	channels := mergeChannels(event.NotificationChannels, attempted)
	merged := map[string]string{}
	for k, v := range event.NotificationIDs {
		merged[k] = v
	}
	for k, v := range ids {
		merged[k] = v
	}

	if err := d.events.SetNotificationResult(event.ID, sent, channels, merged); err != nil {
		d.logger.Error("failed to persist notification result",
			zap.Int64("event_id", event.ID),
			zap.Error(err),
		)
		return
	}

	event.NotificationSent = sent
	event.NotificationChannels = channels
	event.NotificationIDs = merged
}

// render строит текст уведомления согласно формату настроек
func (d *Dispatcher) render(alert *models.Alert, event *models.AlertEvent, format string) (subject, body string) {
	subject = alert.Name

	var b strings.Builder
	fmt.Fprintf(&b, "Alert %q triggered at %s", alert.Name, event.TriggeredAt.UTC().Format(time.RFC3339))
	if alert.Symbol != "" {
		fmt.Fprintf(&b, " for %s", alert.Symbol)
	}

	if format == models.FormatDetailed {
		keys := make([]string, 0, len(event.TriggerValue))
		for k := range event.TriggerValue {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %v", k, event.TriggerValue[k])
		}
	}

	return subject, b.String()
}

func mergeChannels(existing, attempted []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range existing {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range attempted {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
