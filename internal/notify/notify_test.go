package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/models"
	"stockwatch/internal/stream"
)

func warnAlert(userID string) *models.Alert {
	return &models.Alert{
		Type:      models.AlertTypeStopLossUpdate,
		Severity:  models.SeverityWarn,
		UserID:    userID,
		Symbol:    "AAPL",
		StopLoss:  95.50,
		Message:   "AAPL stop-loss 94.00 -> 95.50",
		Timestamp: time.Now(),
	}
}

// ============================================================
// PushSender
// ============================================================

func TestPushSenderDelivers(t *testing.T) {
	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("expected json content type")
		}
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewPushSender(nil, time.Second)
	if err := sender.Send(context.Background(), server.URL, warnAlert("u1")); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	select {
	case body := <-received:
		if !strings.Contains(string(body), "STOPLOSS_UPDATE") {
			t.Errorf("payload missing alert type: %s", body)
		}
	case <-time.After(time.Second):
		t.Fatal("push endpoint never received the payload")
	}
}

func TestPushSenderErrorStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewPushSender(nil, time.Second)
	if err := sender.Send(context.Background(), server.URL, warnAlert("u1")); err == nil {
		t.Error("expected error on 502 response")
	}

	if err := sender.Send(context.Background(), "", warnAlert("u1")); err == nil {
		t.Error("expected error for empty endpoint")
	}
}

// ============================================================
// EmailSender
// ============================================================

func TestEmailBuild(t *testing.T) {
	alert := warnAlert("u1")
	msg := string(buildEmail("bot@example.com", "user@example.com", alert))

	for _, want := range []string{
		"From: bot@example.com",
		"To: user@example.com",
		"Subject: [WARN] AAPL stop-loss moved",
		"Stop-loss: 95.50",
		alert.Message,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("email missing %q:\n%s", want, msg)
		}
	}
}

func TestEmailSenderUnconfigured(t *testing.T) {
	sender := NewEmailSender(config.NotifyConfig{})
	if sender.Configured() {
		t.Error("empty config must not report as configured")
	}
	if err := sender.Send("user@example.com", warnAlert("u1")); err == nil {
		t.Error("expected error when smtp is not configured")
	}
}

// ============================================================
// Dispatcher
// ============================================================

func TestDispatcherStreamAlwaysPushSelective(t *testing.T) {
	hub := stream.NewHub(time.Minute, nil)
	defer hub.Stop()

	pushed := make(chan struct{}, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(hub, nil, NewPushSender(nil, time.Second), nil)

	client := hub.Register("u1")
	p := &models.Portfolio{UserID: "u1", PushEndpoint: server.URL}

	// info уходит только в stream
	info := warnAlert("u1")
	info.Severity = models.SeverityInfo
	d.Notify(context.Background(), p, info)

	select {
	case <-client.Send:
	default:
		t.Error("stream must receive info alerts")
	}
	select {
	case <-pushed:
		t.Error("push must not fire for info alerts")
	case <-time.After(50 * time.Millisecond):
	}

	// warn уходит и в stream, и в push
	d.Notify(context.Background(), p, warnAlert("u1"))
	select {
	case <-client.Send:
	case <-time.After(time.Second):
		t.Error("stream must receive warn alerts")
	}
	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Error("push must fire for warn alerts")
	}
}

func TestDispatcherChannelFailureIsolated(t *testing.T) {
	hub := stream.NewHub(time.Minute, nil)
	defer hub.Stop()

	// Push эндпоинт всегда падает - stream всё равно доставляется
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewDispatcher(hub, nil, NewPushSender(nil, time.Second), nil)

	client := hub.Register("u1")
	p := &models.Portfolio{UserID: "u1", PushEndpoint: server.URL}

	d.Notify(context.Background(), p, warnAlert("u1"))

	select {
	case <-client.Send:
	case <-time.After(time.Second):
		t.Error("stream delivery must not depend on push failures")
	}
}

func TestDispatcherNilSafety(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil)

	// Ни одного канала - вызов остаётся no-op без паники
	d.Notify(context.Background(), nil, warnAlert("u1"))
	d.Notify(context.Background(), &models.Portfolio{UserID: "u1"}, nil)
}
