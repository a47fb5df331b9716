package middleware

import (
	"net/http"
	"runtime/debug"

	"stockwatch/pkg/utils"
)

// Recovery - middleware восстановления после panic в handlers
//
// Перехватывает panic в любом handler, логирует ошибку со stack trace
// и возвращает клиенту 500, не роняя сервер. Паники в фоновых
// горутинах (мониторинг, доставка уведомлений) сюда не попадают -
// у них свои recover-границы.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.L().WithComponent("http").Error("handler panic",
					utils.Any("panic", err),
					utils.String("method", r.Method),
					utils.String("path", r.URL.Path),
					utils.String("stack", string(debug.Stack())),
				)

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
