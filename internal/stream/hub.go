// Package stream реализует hub живых подписок: раздачу изменений
// состояния открытым соединениям пользователя и периодические
// keep-alive сообщения.
package stream

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"stockwatch/internal/models"
	"stockwatch/pkg/utils"
)

// Быстрый кодек для горячего пути рассылки
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message - кадр, уходящий подписчику
type Message struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Alert     *models.Alert `json:"alert,omitempty"`
}

const (
	MessageTypeAlert     = "alert"
	MessageTypeKeepAlive = "keepalive"
)

// Client - одно открытое соединение подписчика
//
// Кадры уходят в буферизованный канал; читает его HTTP хендлер.
// Переполненный буфер означает отставшего клиента - он отключается,
// чтобы не задерживать рассылку остальным.
type Client struct {
	UserID string
	Send   chan []byte

	hub  *Hub
	once sync.Once
}

// Close закрывает канал клиента; безопасен при повторных вызовах
func (c *Client) Close() {
	c.once.Do(func() { close(c.Send) })
}

const clientBufferSize = 64

// Hub - реестр подписчиков с рассылкой по пользователям
//
// Функции:
// - Register/Unregister соединений, набор на пользователя
// - Broadcast алерта всем соединениям пользователя
// - Периодические keep-alive всем открытым соединениям
// - Отключение отстающих клиентов (переполненный буфер)
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	keepAliveInterval time.Duration
	logger            *utils.Logger

	done chan struct{}
	once sync.Once
}

// NewHub создает hub
func NewHub(keepAliveInterval time.Duration, logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &Hub{
		clients:           make(map[string]map[*Client]struct{}),
		keepAliveInterval: keepAliveInterval,
		logger:            logger.WithComponent("hub"),
		done:              make(chan struct{}),
	}
}

// Register создает и регистрирует соединение пользователя
func (h *Hub) Register(userID string) *Client {
	client := &Client{
		UserID: userID,
		Send:   make(chan []byte, clientBufferSize),
		hub:    h,
	}

	h.mu.Lock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[userID] = set
	}
	set[client] = struct{}{}
	total := len(set)
	h.mu.Unlock()

	metricClients.Inc()

	h.logger.Debug("subscriber registered",
		utils.UserID(userID), utils.Int("connections", total))
	return client
}

// Unregister удаляет соединение и закрывает его канал
// Вызывается хендлером при закрытии соединения клиентом
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if set, ok := h.clients[client.UserID]; ok {
		if _, present := set[client]; present {
			delete(set, client)
			metricClients.Dec()
		}
		if len(set) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	h.mu.Unlock()

	client.Close()
}

// Broadcast отправляет алерт всем соединениям пользователя
// Отстающие клиенты отключаются, рассылка не блокируется
func (h *Hub) Broadcast(userID string, alert *models.Alert) {
	payload, err := json.Marshal(Message{
		Type:      MessageTypeAlert,
		Timestamp: time.Now(),
		Alert:     alert,
	})
	if err != nil {
		h.logger.Error("message marshal failed", utils.Err(err))
		return
	}

	h.mu.RLock()
	set := h.clients[userID]
	var slow []*Client
	for client := range set {
		select {
		case client.Send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		metricSlowDrops.Inc()
		h.logger.Warn("dropping slow subscriber", utils.UserID(client.UserID))
		h.Unregister(client)
	}
}

// RunKeepAlive шлёт keep-alive кадры всем соединениям до Stop
// Запускается отдельной горутиной при старте сервера
func (h *Hub) RunKeepAlive() {
	ticker := time.NewTicker(h.keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.keepAlive()
		}
	}
}

func (h *Hub) keepAlive() {
	payload, err := json.Marshal(Message{
		Type:      MessageTypeKeepAlive,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	var slow []*Client
	for _, set := range h.clients {
		for client := range set {
			select {
			case client.Send <- payload:
			default:
				slow = append(slow, client)
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		metricSlowDrops.Inc()
		h.Unregister(client)
	}
}

// Stop останавливает keep-alive цикл и закрывает все соединения
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })

	h.mu.Lock()
	var closed int
	for _, set := range h.clients {
		for client := range set {
			client.Close()
			closed++
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	metricClients.Sub(float64(closed))
}

// Connections возвращает число открытых соединений пользователя
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// TotalConnections возвращает общее число открытых соединений
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var total int
	for _, set := range h.clients {
		total += len(set)
	}
	return total
}
