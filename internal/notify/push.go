package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PushSender доставляет алерт на зарегистрированный push-эндпоинт
// пользователя одним POST запросом. Канал best-effort, без повторов.
type PushSender struct {
	client  *http.Client
	timeout time.Duration
}

// NewPushSender создает отправителя push уведомлений
func NewPushSender(client *http.Client, timeout time.Duration) *PushSender {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PushSender{client: client, timeout: timeout}
}

// Send отправляет payload на эндпоинт
func (s *PushSender) Send(ctx context.Context, endpoint string, payload interface{}) error {
	if endpoint == "" {
		return fmt.Errorf("push endpoint is empty")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
