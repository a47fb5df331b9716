package monitor

import (
	"sync"
	"time"
)

// TriggerKind - вид триггера пересчёта
// У каждого вида своё независимое окно охлаждения
type TriggerKind string

const (
	TriggerPeriodic   TriggerKind = "periodic"   // плановый тик / движение цены
	TriggerDrop       TriggerKind = "drop"       // резкое падение за короткое окно
	TriggerEvent      TriggerKind = "event"      // внешняя новость / отчётность
	TriggerWebhook    TriggerKind = "webhook"    // явный вызов через API
	TriggerAllocation TriggerKind = "allocation" // переразметка стоп-лоссов портфеля
)

// cooldownKey - ключ окна: (user, symbol, kind)
// Для портфельных окон symbol пустой
type cooldownKey struct {
	userID string
	symbol string
	kind   TriggerKind
}

// CooldownController ограничивает частоту пересчётов и уведомлений
//
// Состояния на ключ: idle (можно стрелять) и cooling (заблокировано
// до истечения окна). Неформированный триггер в cooling отклоняется;
// форсированный проходит, но заново взводит окно - серия смешанных
// триггеров не даёт неограниченных пересчётов.
//
// ВАЖНО: проверка и отметка атомарны - одновременные триггеры по
// одному ключу не могут пройти оба.
type CooldownController struct {
	mu        sync.Mutex
	lastFired map[cooldownKey]time.Time
	windows   map[TriggerKind]time.Duration

	// Подменяется в тестах
	now func() time.Time
}

// NewCooldownController создает контроллер с окнами по видам триггеров
func NewCooldownController(windows map[TriggerKind]time.Duration) *CooldownController {
	return &CooldownController{
		lastFired: make(map[cooldownKey]time.Time),
		windows:   windows,
		now:       time.Now,
	}
}

// Admit атомарно проверяет окно и при успехе отмечает срабатывание
// Возвращает false когда ключ в cooling и триггер не форсирован.
// Форсированный триггер всегда проходит и заново взводит окно.
func (c *CooldownController) Admit(userID, symbol string, kind TriggerKind, force bool) bool {
	key := cooldownKey{userID: userID, symbol: symbol, kind: kind}
	window := c.windows[kind]

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if !force {
		if last, ok := c.lastFired[key]; ok && now.Sub(last) < window {
			return false
		}
	}

	c.lastFired[key] = now
	return true
}

// Remaining возвращает оставшееся время окна для ключа
func (c *CooldownController) Remaining(userID, symbol string, kind TriggerKind) time.Duration {
	key := cooldownKey{userID: userID, symbol: symbol, kind: kind}

	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastFired[key]
	if !ok {
		return 0
	}
	remaining := c.windows[kind] - c.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset сбрасывает окно ключа - следующий триггер пройдёт сразу
func (c *CooldownController) Reset(userID, symbol string, kind TriggerKind) {
	key := cooldownKey{userID: userID, symbol: symbol, kind: kind}
	c.mu.Lock()
	delete(c.lastFired, key)
	c.mu.Unlock()
}

// DropUser удаляет все окна пользователя
// Вызывается при замене или удалении портфеля
func (c *CooldownController) DropUser(userID string) {
	c.mu.Lock()
	for key := range c.lastFired {
		if key.userID == userID {
			delete(c.lastFired, key)
		}
	}
	c.mu.Unlock()
}
