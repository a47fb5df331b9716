package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация входных данных API
//
// Назначение:
// Проверка корректности данных портфеля до того, как они попадут
// в хранилище и в цикл мониторинга.
//
// Возвращает error с описанием проблемы или nil

// Тикер: 1-6 заглавных букв/цифр, опционально суффикс через точку или дефис
// (BRK.B, BF-B). Нормализация регистра - на вызывающей стороне.
var symbolRe = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,5}([.-][A-Z]{1,2})?$`)

// Упрощённая проверка email (полная валидация RFC 5322 не нужна -
// адрес подтверждается фактической доставкой)
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateSymbol проверяет формат тикера (AAPL, BRK.B)
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !symbolRe.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %q", symbol)
	}
	return nil
}

// NormalizeSymbol приводит тикер к каноническому виду (uppercase, trim)
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateEmail проверяет формат email адреса.
// Пустой email допустим (канал email просто не используется).
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	if len(email) > 254 || !emailRe.MatchString(email) {
		return fmt.Errorf("invalid email format: %q", email)
	}
	return nil
}

// ValidateUserID проверяет идентификатор пользователя
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("userId is required")
	}
	if len(userID) > 128 {
		return fmt.Errorf("userId too long (max 128 chars)")
	}
	return nil
}

// ValidateShares проверяет количество акций (> 0)
func ValidateShares(shares float64) error {
	if shares <= 0 {
		return fmt.Errorf("shares must be positive, got %v", shares)
	}
	return nil
}

// ValidateEntryPrice проверяет цену входа (> 0)
func ValidateEntryPrice(price float64) error {
	if price <= 0 {
		return fmt.Errorf("entry price must be positive, got %v", price)
	}
	return nil
}

// ValidateMaxLossPct проверяет максимальный процент потерь портфеля.
//
// Задаётся в процентах (5 = 5%). Ноль допустим - берётся значение
// по умолчанию из конфигурации.
func ValidateMaxLossPct(pct float64) error {
	if pct < 0 {
		return fmt.Errorf("max loss percent cannot be negative, got %v", pct)
	}
	if pct > 50 {
		return fmt.Errorf("max loss percent should not exceed 50, got %v", pct)
	}
	return nil
}
