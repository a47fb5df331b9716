package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"stockwatch/internal/config"
	"stockwatch/internal/models"
)

// EmailSender - доставка алертов по SMTP
//
// Канал строго best-effort: ошибка доставки логируется диспетчером
// и никого не блокирует. Синхронных повторов нет - следующее
// изменение состояния принесёт новое письмо.
type EmailSender struct {
	cfg config.NotifyConfig
}

// NewEmailSender создает отправителя
func NewEmailSender(cfg config.NotifyConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

// Configured проверяет, задан ли SMTP
func (s *EmailSender) Configured() bool {
	return s.cfg.SMTPHost != "" && s.cfg.EmailFrom != ""
}

// Send отправляет письмо с алертом
func (s *EmailSender) Send(to string, alert *models.Alert) error {
	if !s.Configured() {
		return fmt.Errorf("smtp is not configured")
	}
	if to == "" {
		return fmt.Errorf("recipient email is empty")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	var auth smtp.Auth
	if s.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}

	msg := buildEmail(s.cfg.EmailFrom, to, alert)
	return smtp.SendMail(addr, auth, s.cfg.EmailFrom, []string{to}, msg)
}

// buildEmail собирает RFC 5322 сообщение
func buildEmail(from, to string, alert *models.Alert) []byte {
	var b strings.Builder

	subject := fmt.Sprintf("[%s] %s %s", strings.ToUpper(alert.Severity), alert.Symbol, alertTitle(alert.Type))

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")

	b.WriteString(alert.Message)
	b.WriteString("\r\n\r\n")

	if alert.Price > 0 {
		fmt.Fprintf(&b, "Price: %.2f\r\n", alert.Price)
	}
	if alert.RiskScore > 0 {
		fmt.Fprintf(&b, "Risk score: %d/10\r\n", alert.RiskScore)
	}
	if alert.StopLoss > 0 {
		fmt.Fprintf(&b, "Stop-loss: %.2f\r\n", alert.StopLoss)
	}
	if alert.DropPct > 0 {
		fmt.Fprintf(&b, "Drop: %.1f%%\r\n", alert.DropPct)
	}
	fmt.Fprintf(&b, "Time: %s\r\n", alert.Timestamp.Format("2006-01-02 15:04:05 MST"))

	return []byte(b.String())
}

func alertTitle(alertType string) string {
	switch alertType {
	case models.AlertTypeRiskUpdate:
		return "risk score changed"
	case models.AlertTypeStopLossUpdate:
		return "stop-loss moved"
	case models.AlertTypePriceDrop:
		return "sharp price drop"
	case models.AlertTypeMarketEvent:
		return "market event"
	default:
		return "update"
	}
}
