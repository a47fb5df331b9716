package handlers

import (
	"net/http"

	"stockwatch/internal/stream"

	"github.com/gorilla/mux"
)

// StreamHandler отвечает за SSE поток алертов
//
// Endpoints:
// - GET /events/{userId} - Server-Sent Events поток алертов пользователя
//
// Каждое соединение регистрируется в хабе и получает все алерты своего
// пользователя. Несколько одновременных соединений на одного пользователя
// допустимы - каждое получает полную копию потока. Медленных читателей
// хаб отключает сам, здесь это видно как закрытие канала.
type StreamHandler struct {
	hub *stream.Hub
}

// NewStreamHandler создает новый StreamHandler с внедрением зависимостей
func NewStreamHandler(hub *stream.Hub) *StreamHandler {
	return &StreamHandler{
		hub: hub,
	}
}

// StreamEvents открывает SSE поток алертов пользователя
// GET /events/{userId}
//
// Формат: стандартный SSE, каждый алерт - один фрейм "data: {json}\n\n".
// Keep-alive фреймы приходят с интервалом KEEPALIVE_INTERVAL, чтобы
// прокси не закрывали простаивающее соединение.
//
// Response:
// - 200 OK: поток открыт (заголовки отправляются немедленно)
// - 400 Bad Request: пустой userId
// - 500 Internal Server Error: ResponseWriter не поддерживает flush
func (h *StreamHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Stream hub is not available", "")
		return
	}

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "missing_user_id", "User ID is required", "")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming is not supported by this connection", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Отключаем буферизацию в nginx, иначе события копятся на прокси
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Немедленный flush: клиент должен увидеть открытие потока сразу,
	// не дожидаясь первого алерта
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	client := h.hub.Register(userID)
	defer h.hub.Unregister(client)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// Клиент отключился или сервер останавливается
			return

		case frame, open := <-client.Send:
			if !open {
				// Хаб закрыл канал (остановка или эвикция медленного клиента)
				return
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
