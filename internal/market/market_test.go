package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stockwatch/internal/models"
	"stockwatch/internal/provider"
)

// ============================================================
// Моки источников
// ============================================================

type mockQuoteSource struct {
	mu    sync.Mutex
	calls int
	quote *provider.Quote
	err   error
}

func (m *mockQuoteSource) Name() string { return "mock-generic" }

func (m *mockQuoteSource) GetQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.quote, nil
}

func (m *mockQuoteSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockBrokerSource struct {
	mu    sync.Mutex
	calls int
	quote *provider.Quote
	err   error
}

func (m *mockBrokerSource) Name() string { return "mock-broker" }

func (m *mockBrokerSource) GetQuoteWithCreds(ctx context.Context, symbol string, creds *models.BrokerCredentials) (*provider.Quote, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.quote, nil
}

// ============================================================
// PriceCache
// ============================================================

func TestPriceCacheHit(t *testing.T) {
	cache := NewPriceCache(time.Minute)

	var fetches int32
	fetch := func(ctx context.Context) (*provider.Quote, error) {
		atomic.AddInt32(&fetches, 1)
		return &provider.Quote{Symbol: "AAPL", Price: 100}, nil
	}

	for i := 0; i < 5; i++ {
		quote, err := cache.Get(context.Background(), "AAPL", fetch)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if quote.Price != 100 {
			t.Errorf("expected price 100, got %v", quote.Price)
		}
	}

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("expected 1 upstream fetch, got %d", n)
	}
}

func TestPriceCacheExpiry(t *testing.T) {
	cache := NewPriceCache(10 * time.Millisecond)

	var fetches int32
	fetch := func(ctx context.Context) (*provider.Quote, error) {
		atomic.AddInt32(&fetches, 1)
		return &provider.Quote{Symbol: "AAPL", Price: 100}, nil
	}

	cache.Get(context.Background(), "AAPL", fetch)
	time.Sleep(20 * time.Millisecond)
	cache.Get(context.Background(), "AAPL", fetch)

	if n := atomic.LoadInt32(&fetches); n != 2 {
		t.Errorf("expected refetch after TTL, got %d fetches", n)
	}
}

func TestPriceCacheCoalescing(t *testing.T) {
	// Два одновременных запроса по одному тикеру -
	// к провайдеру уходит ровно один вызов
	cache := NewPriceCache(time.Minute)

	var fetches int32
	started := make(chan struct{})
	release := make(chan struct{})

	fetch := func(ctx context.Context) (*provider.Quote, error) {
		atomic.AddInt32(&fetches, 1)
		close(started)
		<-release
		return &provider.Quote{Symbol: "AAPL", Price: 123}, nil
	}

	var wg sync.WaitGroup
	results := make([]*provider.Quote, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = cache.Get(context.Background(), "AAPL", fetch)
	}()

	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = cache.Get(context.Background(), "AAPL", fetch)
	}()

	// Даём второму запросу встать в очередь ожидания
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("expected 1 coalesced fetch, got %d", n)
	}
	for i, q := range results {
		if q == nil || q.Price != 123 {
			t.Errorf("caller %d got wrong quote: %+v", i, q)
		}
	}
}

func TestPriceCacheErrorsNotCached(t *testing.T) {
	cache := NewPriceCache(time.Minute)

	var fetches int32
	fetch := func(ctx context.Context) (*provider.Quote, error) {
		if atomic.AddInt32(&fetches, 1) == 1 {
			return nil, errors.New("upstream down")
		}
		return &provider.Quote{Symbol: "AAPL", Price: 100}, nil
	}

	if _, err := cache.Get(context.Background(), "AAPL", fetch); err == nil {
		t.Fatal("expected error from first fetch")
	}
	quote, err := cache.Get(context.Background(), "AAPL", fetch)
	if err != nil {
		t.Fatalf("second fetch should succeed: %v", err)
	}
	if quote.Price != 100 {
		t.Errorf("expected price 100, got %v", quote.Price)
	}
}

func TestPriceCachePut(t *testing.T) {
	cache := NewPriceCache(time.Minute)

	cache.Put(&provider.Quote{Symbol: "AAPL", Price: 150, Source: "stream"})

	quote, ok := cache.Peek("AAPL")
	if !ok {
		t.Fatal("expected cached quote after Put")
	}
	if quote.Source != "stream" {
		t.Errorf("expected stream source, got %s", quote.Source)
	}

	cache.Invalidate("AAPL")
	if _, ok := cache.Peek("AAPL"); ok {
		t.Error("expected cache miss after Invalidate")
	}
}

// ============================================================
// PriceService fallback
// ============================================================

func TestPriceServiceBrokerPreferred(t *testing.T) {
	generic := &mockQuoteSource{quote: &provider.Quote{Symbol: "AAPL", Price: 99, Source: "mock-generic"}}
	broker := &mockBrokerSource{quote: &provider.Quote{Symbol: "AAPL", Price: 101, Source: "mock-broker"}}

	svc := NewPriceService(generic, broker, time.Minute, nil)

	creds := &models.BrokerCredentials{APIKey: "k", APISecret: "s"}
	quote, err := svc.GetPrice(context.Background(), "AAPL", creds)
	if err != nil {
		t.Fatalf("GetPrice returned error: %v", err)
	}

	if quote.Source != "mock-broker" {
		t.Errorf("expected broker source, got %s", quote.Source)
	}
	if generic.callCount() != 0 {
		t.Error("generic source must not be called when broker succeeds")
	}
}

func TestPriceServiceFallbackToGeneric(t *testing.T) {
	generic := &mockQuoteSource{quote: &provider.Quote{Symbol: "AAPL", Price: 99, Source: "mock-generic"}}
	broker := &mockBrokerSource{err: provider.ErrRateLimited}

	svc := NewPriceService(generic, broker, time.Minute, nil)

	creds := &models.BrokerCredentials{APIKey: "k", APISecret: "s"}
	quote, err := svc.GetPrice(context.Background(), "AAPL", creds)
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if quote.Source != "mock-generic" {
		t.Errorf("expected generic source, got %s", quote.Source)
	}
}

func TestPriceServiceNoCredsSkipsBroker(t *testing.T) {
	generic := &mockQuoteSource{quote: &provider.Quote{Symbol: "AAPL", Price: 99, Source: "mock-generic"}}
	broker := &mockBrokerSource{quote: &provider.Quote{Symbol: "AAPL", Price: 101, Source: "mock-broker"}}

	svc := NewPriceService(generic, broker, time.Minute, nil)

	quote, err := svc.GetPrice(context.Background(), "AAPL", nil)
	if err != nil {
		t.Fatalf("GetPrice returned error: %v", err)
	}
	if quote.Source != "mock-generic" {
		t.Errorf("without creds expected generic source, got %s", quote.Source)
	}
}

func TestPriceServiceAllSourcesFail(t *testing.T) {
	generic := &mockQuoteSource{err: errors.New("finnhub down")}
	broker := &mockBrokerSource{err: errors.New("alpaca down")}

	svc := NewPriceService(generic, broker, time.Minute, nil)

	creds := &models.BrokerCredentials{APIKey: "k", APISecret: "s"}
	_, err := svc.GetPrice(context.Background(), "AAPL", creds)
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestPriceServicePutTick(t *testing.T) {
	generic := &mockQuoteSource{err: errors.New("down")}
	svc := NewPriceService(generic, nil, time.Minute, nil)

	svc.PutTick(provider.Tick{Symbol: "AAPL", Price: 152.5, Timestamp: time.Now()})

	// Цена из потока обслуживает запросы без похода к провайдеру
	quote, err := svc.GetPrice(context.Background(), "AAPL", nil)
	if err != nil {
		t.Fatalf("expected tick-fed price, got %v", err)
	}
	if quote.Price != 152.5 || quote.Source != "stream" {
		t.Errorf("unexpected quote: %+v", quote)
	}
	if generic.callCount() != 0 {
		t.Error("provider must not be called when cache holds a stream tick")
	}
}
