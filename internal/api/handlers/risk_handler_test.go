package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

// ============ RiskHandler Tests ============

func TestRiskHandler_GetRisk(t *testing.T) {
	t.Run("returns score for known ticker", func(t *testing.T) {
		mockSvc := NewMockQuoteService(map[string]float64{"AAPL": 189.50})
		handler := NewRiskHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/risk/aapl", nil)
		req = mux.SetURLVars(req, map[string]string{"ticker": "aapl"})
		w := httptest.NewRecorder()

		handler.GetRisk(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		var response RiskResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response.Ticker != "AAPL" {
			t.Errorf("expected normalized ticker AAPL, got %s", response.Ticker)
		}
		if response.Price != 189.50 {
			t.Errorf("expected price 189.50, got %f", response.Price)
		}
		if response.RiskScore < 1 || response.RiskScore > 10 {
			t.Errorf("risk score out of range: %d", response.RiskScore)
		}
	})

	t.Run("returns 502 when price unavailable", func(t *testing.T) {
		mockSvc := NewMockQuoteService(map[string]float64{})
		handler := NewRiskHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/risk/GHOST", nil)
		req = mux.SetURLVars(req, map[string]string{"ticker": "GHOST"})
		w := httptest.NewRecorder()

		handler.GetRisk(w, req)

		if w.Code != http.StatusBadGateway {
			t.Errorf("expected status %d, got %d", http.StatusBadGateway, w.Code)
		}
	})

	t.Run("returns 400 for empty ticker", func(t *testing.T) {
		mockSvc := NewMockQuoteService(map[string]float64{"AAPL": 189.50})
		handler := NewRiskHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/risk/", nil)
		req = mux.SetURLVars(req, map[string]string{"ticker": "  "})
		w := httptest.NewRecorder()

		handler.GetRisk(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestRiskHandler_BulkRisk(t *testing.T) {
	t.Run("isolates per-ticker failures", func(t *testing.T) {
		mockSvc := NewMockQuoteService(map[string]float64{"AAPL": 189.50, "MSFT": 410.20})
		handler := NewRiskHandler(mockSvc)

		body := `{"tickers": ["AAPL", "GHOST", "MSFT"]}`
		req := httptest.NewRequest(http.MethodPost, "/risk/bulk", bytes.NewBufferString(body))
		w := httptest.NewRecorder()

		handler.BulkRisk(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		var response BulkRiskResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if len(response.Results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(response.Results))
		}

		for _, item := range response.Results {
			switch item.Ticker {
			case "AAPL", "MSFT":
				if item.Error != "" {
					t.Errorf("%s: unexpected error %q", item.Ticker, item.Error)
				}
				if item.RiskScore == 0 {
					t.Errorf("%s: expected risk score, got 0", item.Ticker)
				}
			case "GHOST":
				if item.Error == "" {
					t.Error("GHOST: expected per-item error")
				}
			default:
				t.Errorf("unexpected ticker in results: %s", item.Ticker)
			}
		}
	})

	t.Run("returns 400 on empty list", func(t *testing.T) {
		handler := NewRiskHandler(NewMockQuoteService(nil))

		req := httptest.NewRequest(http.MethodPost, "/risk/bulk", bytes.NewBufferString(`{"tickers": []}`))
		w := httptest.NewRecorder()

		handler.BulkRisk(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 400 on invalid JSON", func(t *testing.T) {
		handler := NewRiskHandler(NewMockQuoteService(nil))

		req := httptest.NewRequest(http.MethodPost, "/risk/bulk", bytes.NewBufferString("not json"))
		w := httptest.NewRecorder()

		handler.BulkRisk(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

// ============ WebhookHandler Tests ============

func TestWebhookHandler_HandleEvent(t *testing.T) {
	t.Run("triggers recompute and reports holders", func(t *testing.T) {
		mockSvc := &MockWebhookService{holders: 3}
		handler := NewWebhookHandler(mockSvc)

		body := `{"ticker": "aapl", "reason": "sec filing"}`
		req := httptest.NewRequest(http.MethodPost, "/webhook/event", bytes.NewBufferString(body))
		w := httptest.NewRecorder()

		handler.HandleEvent(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		var response WebhookEventResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Holders != 3 {
			t.Errorf("expected 3 holders, got %d", response.Holders)
		}
		if len(mockSvc.calls) != 1 || mockSvc.calls[0] != "AAPL" {
			t.Errorf("expected one normalized recompute call, got %v", mockSvc.calls)
		}
	})

	t.Run("zero holders is a valid response", func(t *testing.T) {
		handler := NewWebhookHandler(&MockWebhookService{holders: 0})

		req := httptest.NewRequest(http.MethodPost, "/webhook/event",
			bytes.NewBufferString(`{"ticker": "TSLA"}`))
		w := httptest.NewRecorder()

		handler.HandleEvent(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
	})

	t.Run("returns 400 when ticker missing", func(t *testing.T) {
		handler := NewWebhookHandler(&MockWebhookService{})

		req := httptest.NewRequest(http.MethodPost, "/webhook/event",
			bytes.NewBufferString(`{"reason": "no ticker"}`))
		w := httptest.NewRecorder()

		handler.HandleEvent(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 400 on service error", func(t *testing.T) {
		handler := NewWebhookHandler(&MockWebhookService{err: ErrMockInternal})

		req := httptest.NewRequest(http.MethodPost, "/webhook/event",
			bytes.NewBufferString(`{"ticker": "AAPL"}`))
		w := httptest.NewRecorder()

		handler.HandleEvent(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}
