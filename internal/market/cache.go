package market

import (
	"context"
	"sync"
)

// CycleCache - кэширующая обёртка над StateProvider в рамках одного цикла оценки
//
// Несколько алертов на один символ не должны порождать несколько запросов
// к сервису котировок за один тик. Кэш живёт один цикл: движок создаёт
// новый CycleCache в начале каждого цикла.
//
// Все алерты одного символа в цикле видят один и тот же снимок,
// что делает результаты оценки внутри цикла согласованными
type CycleCache struct {
	provider StateProvider

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once     sync.Once
	snapshot *Snapshot
	err      error
}

// NewCycleCache создаёт кэш поверх провайдера
func NewCycleCache(provider StateProvider) *CycleCache {
	return &CycleCache{
		provider: provider,
		entries:  make(map[string]*cacheEntry),
	}
}

// GetState возвращает снимок из кэша или запрашивает у провайдера
// Конкурентные запросы одной области ждут один общий fetch
func (c *CycleCache) GetState(ctx context.Context, q Query) (*Snapshot, error) {
	key := q.Symbol + "|" + q.Exchange + "|" + q.AccountID + "|" + q.StrategyID

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.snapshot, entry.err = c.provider.GetState(ctx, q)
	})

	return entry.snapshot, entry.err
}

var _ StateProvider = (*CycleCache)(nil)
