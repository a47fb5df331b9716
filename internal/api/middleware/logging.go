package middleware

import (
	"net/http"
	"time"

	"stockwatch/pkg/utils"
)

// responseWriter оборачивает http.ResponseWriter для захвата
// статус-кода и размера ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Flush пробрасывает flush к нижележащему writer.
// Обязателен: без него SSE endpoint за этим middleware перестает стримить.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Logging - middleware структурированного логирования HTTP запросов
//
// Логирует метод, путь, статус, длительность, адрес клиента и размер
// ответа одной записью на запрос. SSE соединения попадают в лог при
// закрытии, поэтому их duration равен времени жизни соединения.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		utils.L().WithComponent("http").Info("request",
			utils.String("method", r.Method),
			utils.String("path", r.URL.Path),
			utils.Int("status", wrapped.statusCode),
			utils.Latency(float64(duration.Microseconds())/1000.0),
			utils.String("remote", r.RemoteAddr),
			utils.Int64("bytes", wrapped.written),
		)
	})
}
