package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/mux"
)

// WebhookSecretHeader - заголовок с shared secret для webhook вызовов
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookAuth - middleware защиты webhook endpoints shared secret'ом
//
// Внешние системы передают secret в заголовке X-Webhook-Secret.
// Сравнение constant-time для защиты от timing attacks.
//
// Если secret в конфигурации пуст (WEBHOOK_SECRET не задан),
// проверка отключена - режим для локальной разработки. В production
// config.Validate предупреждает о пустом или коротком secret.
//
// Использование:
//
//	webhook := router.PathPrefix("/webhook").Subrouter()
//	webhook.Use(middleware.WebhookAuth(cfg.Security.WebhookSecret))
func WebhookAuth(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get(WebhookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
