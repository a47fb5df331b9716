package market

import (
	"context"
	"sync"
	"time"

	"stockwatch/internal/provider"
)

// cacheEntry - закэшированная котировка
type cacheEntry struct {
	quote    *provider.Quote
	cachedAt time.Time
}

// inflightCall - выполняющийся запрос к провайдеру
// Все ожидающие читают результат после закрытия done
type inflightCall struct {
	done  chan struct{}
	quote *provider.Quote
	err   error
}

// PriceCache - TTL кэш котировок со слиянием одновременных запросов
//
// Назначение:
// Несколько пользователей могут держать один тикер: при общем тике
// мониторинга за одну цену к провайдеру идёт ровно один запрос,
// остальные ждут его результат или берут значение из кэша.
//
// ОПТИМИЗАЦИЯ: ошибки не кэшируются - неудачный запрос не должен
// блокировать тикер на весь TTL.
type PriceCache struct {
	ttl time.Duration

	mu       sync.Mutex
	entries  map[string]*cacheEntry
	inflight map[string]*inflightCall

	// Счётчик обращений к провайдеру, для метрик и тестов
	upstreamCalls int64
}

// NewPriceCache создает кэш с заданным TTL
func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		ttl:      ttl,
		entries:  make(map[string]*cacheEntry),
		inflight: make(map[string]*inflightCall),
	}
}

// Get возвращает котировку из кэша или выполняет fetch,
// сливая одновременные запросы по одному тикеру в один вызов
func (c *PriceCache) Get(ctx context.Context, symbol string, fetch func(context.Context) (*provider.Quote, error)) (*provider.Quote, error) {
	c.mu.Lock()

	if entry, ok := c.entries[symbol]; ok && time.Since(entry.cachedAt) < c.ttl {
		c.mu.Unlock()
		metricCacheHits.Inc()
		return entry.quote, nil
	}

	if call, ok := c.inflight[symbol]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.quote, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	c.inflight[symbol] = call
	c.upstreamCalls++
	c.mu.Unlock()

	quote, err := fetch(ctx)

	c.mu.Lock()
	delete(c.inflight, symbol)
	if err == nil {
		c.entries[symbol] = &cacheEntry{quote: quote, cachedAt: time.Now()}
	}
	c.mu.Unlock()

	call.quote = quote
	call.err = err
	close(call.done)

	return quote, err
}

// Put записывает котировку напрямую, минуя провайдера
// Используется потоком сделок: тик свежее любого REST ответа
func (c *PriceCache) Put(quote *provider.Quote) {
	if quote == nil {
		return
	}
	c.mu.Lock()
	c.entries[quote.Symbol] = &cacheEntry{quote: quote, cachedAt: time.Now()}
	c.mu.Unlock()
}

// Peek возвращает котировку из кэша без обращения к провайдеру
func (c *PriceCache) Peek(symbol string) (*provider.Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[symbol]
	if !ok || time.Since(entry.cachedAt) >= c.ttl {
		return nil, false
	}
	return entry.quote, true
}

// Invalidate удаляет тикер из кэша
func (c *PriceCache) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.entries, symbol)
	c.mu.Unlock()
}

// UpstreamCalls возвращает число обращений к провайдеру
func (c *PriceCache) UpstreamCalls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upstreamCalls
}
