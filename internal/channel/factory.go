package channel

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alertd/internal/config"
	"alertd/pkg/ratelimit"
)

// Registry хранит адаптеры каналов и лимиты провайдеров
//
// Перед каждой отправкой берётся токен из rate limiter'а канала,
// чтобы не превышать лимиты провайдера при всплесках срабатываний
type Registry struct {
	adapters map[string]Adapter
	limiter  *ratelimit.MultiLimiter
}

// NewRegistry создаёт реестр адаптеров из конфигурации
//
// Каналы без подключенного провайдера (push, sms) получают LogAdapter:
// доставка фиксируется в журнале, наружу ничего не уходит
func NewRegistry(cfg config.ChannelsConfig, logger *zap.Logger) *Registry {
	limiter := ratelimit.NewMultiLimiter()
	limiter.Add("telegram", 30, 30) // Telegram Bot API: 30 msg/sec
	limiter.Add("email", 10, 10)    // Resend: 10 req/sec
	limiter.Add("webhook", 20, 40)

	return &Registry{
		adapters: map[string]Adapter{
			"telegram": NewTelegramAdapter(cfg.TelegramToken),
			"email":    NewEmailAdapter(cfg.ResendAPIKey, cfg.EmailFrom),
			"webhook":  NewWebhookAdapter(cfg.WebhookTimeout),
			"push":     NewLogAdapter("push", logger),
			"sms":      NewLogAdapter("sms", logger),
		},
		limiter: limiter,
	}
}

// NewRegistryWithAdapters создаёт реестр из готовых адаптеров (для тестов)
func NewRegistryWithAdapters(adapters map[string]Adapter) *Registry {
	return &Registry{
		adapters: adapters,
		limiter:  ratelimit.NewMultiLimiter(),
	}
}

// Get возвращает адаптер канала
func (r *Registry) Get(channel string) (Adapter, error) {
	adapter, ok := r.adapters[channel]
	if !ok {
		return nil, fmt.Errorf("unknown channel: %s", channel)
	}
	return adapter, nil
}

// Send отправляет уведомление через адаптер канала с учётом лимита провайдера
func (r *Registry) Send(ctx context.Context, channel, recipient string, n *Notification) (string, error) {
	adapter, err := r.Get(channel)
	if err != nil {
		return "", err
	}

	// Ждём токен провайдера, но не дольше чем живёт контекст отправки
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.limiter.Wait(waitCtx, channel); err != nil {
		return "", fmt.Errorf("provider rate limit wait failed for %s: %w", channel, err)
	}

	return adapter.Send(ctx, recipient, n)
}
