// Package notify реализует fan-out доставку изменений состояния:
// live stream, email и push, каждый канал независим и best-effort.
package notify

import (
	"context"

	"stockwatch/internal/models"
	"stockwatch/internal/stream"
	"stockwatch/pkg/utils"
)

// Dispatcher - fan-out алертов по каналам доставки
//
// Stream получает все алерты, включая ценовые тики. Email и push -
// только warn и critical, чтобы не заливать внешние каналы шумом.
//
// ВАЖНО: каждый канал работает в своей горутине со своей границей
// ошибок - отказ или зависание одного канала не блокирует ни другие
// каналы, ни цикл мониторинга. Доставка fire-and-forget: начатая
// отправка не отменяется вместе с вызывающим контекстом.
type Dispatcher struct {
	hub    *stream.Hub
	email  *EmailSender
	push   *PushSender
	logger *utils.Logger
}

// NewDispatcher создает диспетчер
// email и push допускаются nil - канал просто выключен
func NewDispatcher(hub *stream.Hub, email *EmailSender, push *PushSender, logger *utils.Logger) *Dispatcher {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &Dispatcher{
		hub:    hub,
		email:  email,
		push:   push,
		logger: logger.WithComponent("notify"),
	}
}

// Notify доставляет алерт по всем каналам пользователя
// Никогда не блокирует вызывающего дольше, чем на запись в канал hub
func (d *Dispatcher) Notify(ctx context.Context, p *models.Portfolio, alert *models.Alert) {
	if alert == nil {
		return
	}

	if d.hub != nil {
		d.hub.Broadcast(alert.UserID, alert)
		metricDeliveries.WithLabelValues("stream", "ok").Inc()
	}

	// Внешние каналы только для существенных изменений
	if alert.Severity == models.SeverityInfo {
		return
	}

	if d.email != nil && d.email.Configured() && p != nil && p.Email != "" {
		go d.deliverEmail(p.Email, alert)
	}

	if d.push != nil && p != nil && p.PushEndpoint != "" {
		go d.deliverPush(p.PushEndpoint, alert)
	}
}

func (d *Dispatcher) deliverEmail(to string, alert *models.Alert) {
	defer d.recoverChannel("email", alert)

	if err := d.email.Send(to, alert); err != nil {
		metricDeliveries.WithLabelValues("email", "error").Inc()
		d.logger.Warn("email delivery failed",
			utils.UserID(alert.UserID),
			utils.Channel("email"),
			utils.Err(err))
		return
	}
	metricDeliveries.WithLabelValues("email", "ok").Inc()
}

func (d *Dispatcher) deliverPush(endpoint string, alert *models.Alert) {
	defer d.recoverChannel("push", alert)

	if err := d.push.Send(context.Background(), endpoint, alert); err != nil {
		metricDeliveries.WithLabelValues("push", "error").Inc()
		d.logger.Warn("push delivery failed",
			utils.UserID(alert.UserID),
			utils.Channel("push"),
			utils.Err(err))
		return
	}
	metricDeliveries.WithLabelValues("push", "ok").Inc()
}

// recoverChannel не даёт панике одного канала уронить процесс
func (d *Dispatcher) recoverChannel(channel string, alert *models.Alert) {
	if r := recover(); r != nil {
		d.logger.Error("delivery channel panicked",
			utils.Channel(channel),
			utils.UserID(alert.UserID),
			utils.Any("panic", r))
	}
}
