package provider

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"stockwatch/pkg/utils"
)

// Tick - сделка из потока котировок
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// streamSubMsg - сообщение подписки/отписки Finnhub
type streamSubMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// FinnhubStream - поток сделок Finnhub поверх WSReconnectManager
//
// Назначение:
// Принимает сделки в реальном времени и отдаёт их в callback,
// чтобы цикл мониторинга видел свежие цены между опросами REST.
//
// Функции:
// - Подписка/отписка на тикеры с ограничением по количеству
// - Автоматическая переподписка после разрыва (через менеджер)
// - Разбор сообщений типа trade, остальные игнорируются
type FinnhubStream struct {
	apiKey string
	wsURL  string

	manager *WSReconnectManager
	logger  *utils.Logger

	// Активные тикеры, symbol -> struct{}
	symbols   map[string]struct{}
	symbolCap int
	mu        sync.Mutex

	onTick func(Tick)
}

// NewFinnhubStream создает новый потоковый клиент
// symbolCap ограничивает число одновременных подписок (бесплатный тариф: 50)
func NewFinnhubStream(apiKey, wsURL string, symbolCap int, logger *utils.Logger) *FinnhubStream {
	if wsURL == "" {
		wsURL = "wss://ws.finnhub.io"
	}
	if symbolCap <= 0 {
		symbolCap = 50
	}
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}

	s := &FinnhubStream{
		apiKey:    apiKey,
		wsURL:     wsURL,
		logger:    logger.WithComponent("stream"),
		symbols:   make(map[string]struct{}),
		symbolCap: symbolCap,
	}

	fullURL := fmt.Sprintf("%s?token=%s", wsURL, apiKey)
	s.manager = NewWSReconnectManager("finnhub", fullURL, DefaultWSReconnectConfig(), logger)
	s.manager.SetOnMessage(s.handleMessage)

	return s
}

// SetOnTick устанавливает callback для входящих сделок
func (s *FinnhubStream) SetOnTick(handler func(Tick)) {
	s.onTick = handler
}

// Connect подключается к потоку котировок
func (s *FinnhubStream) Connect() error {
	return s.manager.Connect()
}

// IsConnected проверяет состояние соединения
func (s *FinnhubStream) IsConnected() bool {
	return s.manager.IsConnected()
}

// Subscribe подписывается на сделки по тикеру
// Повторная подписка на уже активный тикер - no-op
func (s *FinnhubStream) Subscribe(symbol string) error {
	s.mu.Lock()
	if _, ok := s.symbols[symbol]; ok {
		s.mu.Unlock()
		return nil
	}
	if len(s.symbols) >= s.symbolCap {
		s.mu.Unlock()
		return fmt.Errorf("subscription cap reached (%d symbols)", s.symbolCap)
	}
	s.symbols[symbol] = struct{}{}
	s.mu.Unlock()

	msg := streamSubMsg{Type: "subscribe", Symbol: symbol}
	s.manager.AddSubscription(msg)

	if s.manager.IsConnected() {
		if err := s.manager.Send(msg); err != nil {
			// Подписка останется в менеджере и восстановится при reconnect
			s.logger.Warn("subscribe send failed", utils.Symbol(symbol), utils.Err(err))
		}
	}
	return nil
}

// Unsubscribe отписывается от сделок по тикеру
func (s *FinnhubStream) Unsubscribe(symbol string) {
	s.mu.Lock()
	if _, ok := s.symbols[symbol]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.symbols, symbol)
	s.mu.Unlock()

	s.manager.RemoveSubscription(func(sub interface{}) bool {
		m, ok := sub.(streamSubMsg)
		return ok && m.Symbol == symbol
	})

	if s.manager.IsConnected() {
		msg := streamSubMsg{Type: "unsubscribe", Symbol: symbol}
		if err := s.manager.Send(msg); err != nil {
			s.logger.Warn("unsubscribe send failed", utils.Symbol(symbol), utils.Err(err))
		}
	}
}

// Subscribed проверяет, активна ли подписка на тикер
func (s *FinnhubStream) Subscribed(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.symbols[symbol]
	return ok
}

// SubscriptionCount возвращает число активных подписок
func (s *FinnhubStream) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.symbols)
}

// Symbols возвращает список активных подписок
func (s *FinnhubStream) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	return symbols
}

// handleMessage разбирает сообщение потока
// Формат trade: {"type":"trade","data":[{"s":"AAPL","p":150.1,"t":1700000000000,"v":10}]}
func (s *FinnhubStream) handleMessage(raw []byte) {
	var msg struct {
		Type string `json:"type"`
		Data []struct {
			Symbol    string  `json:"s"`
			Price     float64 `json:"p"`
			Timestamp int64   `json:"t"` // миллисекунды
			Volume    float64 `json:"v"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Debug("unparseable stream message", utils.Err(err))
		return
	}

	// ping и служебные сообщения пропускаем
	if msg.Type != "trade" {
		return
	}

	onTick := s.onTick
	if onTick == nil {
		return
	}

	for _, t := range msg.Data {
		if t.Symbol == "" || t.Price <= 0 {
			continue
		}
		onTick(Tick{
			Symbol:    t.Symbol,
			Price:     t.Price,
			Volume:    t.Volume,
			Timestamp: time.UnixMilli(t.Timestamp),
		})
	}
}

// Close закрывает поток
func (s *FinnhubStream) Close() error {
	return s.manager.Close()
}
