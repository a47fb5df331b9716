package models

import (
	"time"
)

// Portfolio - портфель одного пользователя
//
// Создаётся/замещается целиком через POST /update-portfolio.
// Позиции ключуются тикером, порядок не важен.
// Брокерские credentials хранятся только в зашифрованном виде (AES-256-GCM,
// см. pkg/crypto); поле EncryptedCreds никогда не сериализуется в API ответы.
type Portfolio struct {
	UserID    string               `json:"userId"`
	Positions map[string]*Position `json:"stocks"`

	// Зашифрованный JSON BrokerCredentials; пусто = брокер не подключен
	EncryptedCreds string `json:"-"`

	// Максимальный допустимый убыток портфеля в процентах (5 = 5%).
	// 0 = использовать значение по умолчанию из конфигурации.
	MaxLossPct float64 `json:"maxLossPercent"`

	// Контакты владельца для каналов доставки
	Email        string `json:"userEmail,omitempty"`
	PushEndpoint string `json:"-"` // регистрируется отдельно через POST /subscribe

	TotalInvestment float64   `json:"totalInvestment,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// BrokerCredentials - API ключи брокерского счёта пользователя
//
// Наличие credentials делает брокерский источник цен предпочтительным
// для инструментов этого пользователя.
type BrokerCredentials struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

// Symbols возвращает тикеры всех позиций портфеля
func (p *Portfolio) Symbols() []string {
	symbols := make([]string, 0, len(p.Positions))
	for symbol := range p.Positions {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Value возвращает текущую стоимость портфеля по последним ценам.
// Позиции без цены (ещё не опрошены) не учитываются.
func (p *Portfolio) Value() float64 {
	total := 0.0
	for _, pos := range p.Positions {
		if pos.CurrentPrice > 0 {
			total += pos.Shares * pos.CurrentPrice
		}
	}
	return total
}

// Clone возвращает глубокую копию портфеля.
//
// Репозитории отдают копии, чтобы вызывающий код не мог мутировать
// хранимое состояние мимо Update.
func (p *Portfolio) Clone() *Portfolio {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Positions = make(map[string]*Position, len(p.Positions))
	for symbol, pos := range p.Positions {
		posCopy := *pos
		clone.Positions[symbol] = &posCopy
	}
	return &clone
}
