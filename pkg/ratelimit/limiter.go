package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - Token Bucket rate limiter для контроля частоты запросов к API провайдеров каналов
//
// Алгоритм Token Bucket:
// - Ведро наполняется токенами с постоянной скоростью (rate токенов/сек)
// - Максимальная ёмкость ведра = burst (позволяет короткие всплески)
// - Каждая отправка потребляет 1 токен
// - Если токенов нет, отправка ждёт или отклоняется
//
// Использование:
//
//	limiter := NewRateLimiter(30, 30) // Telegram Bot API: 30 msg/sec
//	err := limiter.Wait(ctx)          // блокирующее ожидание перед Send
//	if limiter.Allow() { ... }        // неблокирующая проверка
type RateLimiter struct {
	rate       float64   // токенов в секунду
	burst      float64   // максимальная ёмкость (burst capacity)
	tokens     float64   // текущее количество токенов
	lastRefill time.Time // время последнего пополнения
	mu         sync.Mutex
}

// NewRateLimiter создаёт новый rate limiter
//
// Параметры:
//   - rate: количество отправок в секунду
//   - burst: максимальный burst (обычно 1-2x от rate)
//
// Примеры лимитов провайдеров:
//   - Telegram Bot API: 30 msg/sec (burst 30)
//   - Resend:           10 req/sec (burst 10)
//   - Webhook (дефолт): 20 req/sec (burst 40)
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10 // дефолт 10 req/sec
	}
	if burst <= 0 {
		burst = rate * 2 // дефолт burst = 2x rate
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst, // начинаем с полным ведром
		lastRefill: time.Now(),
	}
}

// refill пополняет токены на основе прошедшего времени
// ВАЖНО: вызывается под lock'ом
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()

	// Добавляем токены пропорционально прошедшему времени
	rl.tokens += elapsed * rl.rate

	// Не превышаем burst capacity
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}

	rl.lastRefill = now
}

// Wait блокирует до получения токена или отмены контекста
//
// Возвращает:
//   - nil: токен получен, можно отправлять
//   - ctx.Err(): контекст отменён (timeout или cancel)
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		// Вычисляем время ожидания до следующего токена
		waitTime := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		// Ждём с возможностью отмены
		select {
		case <-time.After(waitTime):
			// Повторяем попытку получить токен
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allow проверяет доступность токена без блокировки
//
// Возвращает:
//   - true: токен получен, можно отправлять
//   - false: нет токенов, отправку нужно отложить
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}

	return false
}

// Tokens возвращает текущее количество доступных токенов
// Полезно для мониторинга и отладки
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// Rate возвращает скорость пополнения токенов (токенов/сек)
func (rl *RateLimiter) Rate() float64 {
	return rl.rate
}

// SetRate изменяет скорость пополнения токенов
// Потокобезопасно
func (rl *RateLimiter) SetRate(rate float64) {
	if rate <= 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill() // фиксируем текущие токены перед изменением rate
	rl.rate = rate
}

// ============================================================
// MultiLimiter - комбинированный rate limiter для нескольких каналов
// ============================================================

// MultiLimiter управляет rate limiter'ами по имени канала
// У каждого провайдера свой лимит, диспетчер берёт токен перед Send
type MultiLimiter struct {
	limiters map[string]*RateLimiter
	mu       sync.RWMutex
}

// NewMultiLimiter создаёт новый MultiLimiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*RateLimiter),
	}
}

// Add добавляет rate limiter для канала
func (ml *MultiLimiter) Add(channel string, rate, burst float64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.limiters[channel] = NewRateLimiter(rate, burst)
}

// Wait ожидает токен для указанного канала
// Если для канала нет лимита, возвращает nil сразу
func (ml *MultiLimiter) Wait(ctx context.Context, channel string) error {
	ml.mu.RLock()
	limiter, ok := ml.limiters[channel]
	ml.mu.RUnlock()

	if !ok {
		return nil // нет лимита для этого канала
	}

	return limiter.Wait(ctx)
}

// Allow проверяет доступность токена для канала
func (ml *MultiLimiter) Allow(channel string) bool {
	ml.mu.RLock()
	limiter, ok := ml.limiters[channel]
	ml.mu.RUnlock()

	if !ok {
		return true // нет лимита для этого канала
	}

	return limiter.Allow()
}

// Get возвращает limiter для канала
func (ml *MultiLimiter) Get(channel string) *RateLimiter {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return ml.limiters[channel]
}
