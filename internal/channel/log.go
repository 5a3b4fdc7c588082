package channel

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// LogAdapter пишет уведомление в лог вместо реальной отправки
//
// Используется для каналов без подключенного провайдера (push, sms):
// событие фиксируется в журнале доставки, но наружу ничего не уходит
type LogAdapter struct {
	channel string
	logger  *zap.Logger
	seq     int64
}

// NewLogAdapter создаёт лог-адаптер для указанного канала
func NewLogAdapter(channel string, logger *zap.Logger) *LogAdapter {
	return &LogAdapter{
		channel: channel,
		logger:  logger,
	}
}

// Name возвращает имя канала
func (a *LogAdapter) Name() string {
	return a.channel
}

// Send пишет уведомление в лог и возвращает синтетический provider id
func (a *LogAdapter) Send(ctx context.Context, recipient string, n *Notification) (string, error) {
	id := fmt.Sprintf("log-%s-%d", a.channel, atomic.AddInt64(&a.seq, 1))

	a.logger.Info("notification logged (no provider configured)",
		zap.String("channel", a.channel),
		zap.String("recipient", recipient),
		zap.Int64("event_id", n.EventID),
		zap.String("subject", n.Subject),
		zap.String("provider_message_id", id),
	)

	return id, nil
}

var _ Adapter = (*LogAdapter)(nil)
