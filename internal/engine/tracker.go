package engine

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"alertd/internal/repository"
)

// Tracker обрабатывает callback'и провайдеров о статусе доставки
//
// Неизвестный provider message id логируется и отбрасывается: callback'и
// приходят асинхронно и могут относиться к уже удаленным записям журнала
type Tracker struct {
	log    LogStore
	logger *zap.Logger
}

// NewTracker создает обработчик callback'ов доставки
func NewTracker(log LogStore, logger *zap.Logger) *Tracker {
	return &Tracker{log: log, logger: logger}
}

// HandleDelivered отмечает доставку по provider message id
func (t *Tracker) HandleDelivered(providerMessageID string, at time.Time) error {
	return t.apply("delivered", providerMessageID, func() error {
		return t.log.MarkDelivered(providerMessageID, at)
	})
}

// HandleRead отмечает прочтение по provider message id
func (t *Tracker) HandleRead(providerMessageID string, at time.Time) error {
	return t.apply("read", providerMessageID, func() error {
		return t.log.MarkRead(providerMessageID, at)
	})
}

// HandleClicked отмечает клик по ссылке в уведомлении
func (t *Tracker) HandleClicked(providerMessageID string) error {
	return t.apply("clicked", providerMessageID, func() error {
		return t.log.SetClicked(providerMessageID)
	})
}

func (t *Tracker) apply(kind, providerMessageID string, update func() error) error {
	entry, err := t.log.GetByProviderMessageID(providerMessageID)
	if errors.Is(err, repository.ErrLogEntryNotFound) {
		ProviderCallbacks.WithLabelValues(kind, "unknown").Inc()
		t.logger.Warn("callback for unknown provider message id",
			zap.String("kind", kind),
			zap.String("provider_message_id", providerMessageID),
		)
		return nil
	}
	if err != nil {
		ProviderCallbacks.WithLabelValues(kind, "error").Inc()
		return err
	}

	if err := update(); err != nil {
		// Переход невозможен из текущего статуса (например read до sent)
		if errors.Is(err, repository.ErrLogEntryNotFound) {
			ProviderCallbacks.WithLabelValues(kind, "ignored").Inc()
			t.logger.Debug("callback ignored for log entry status",
				zap.String("kind", kind),
				zap.Int64("log_id", entry.ID),
				zap.String("status", entry.Status),
			)
			return nil
		}
		ProviderCallbacks.WithLabelValues(kind, "error").Inc()
		return err
	}

	ProviderCallbacks.WithLabelValues(kind, "applied").Inc()
	return nil
}
