package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TokenVerifier проверяет API токен пользователя
type TokenVerifier interface {
	VerifyToken(userID int64, token string) error
}

// contextKey - приватный тип ключей контекста, исключает коллизии с другими пакетами
type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext извлекает идентификатор пользователя, записанный Auth middleware
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok
}

// ContextWithUserID возвращает контекст с идентификатором пользователя.
// Используется в тестах handlers вместо прохода через Auth middleware.
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Auth - middleware аутентификации запросов к control surface
//
// Запрос обязан нести два заголовка:
// - X-User-ID: числовой идентификатор пользователя
// - Authorization: Bearer <api token>
//
// Токен сверяется с bcrypt-хэшем из настроек пользователя.
// При успехе user_id попадает в context запроса и доступен
// handlers через UserIDFromContext.
//
// Response:
// - 401 Unauthorized: заголовки отсутствуют или токен не подошел
func Auth(verifier TokenVerifier, logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
			if err != nil || userID <= 0 {
				unauthorized(w, "missing or invalid X-User-ID header")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}

			if err := verifier.VerifyToken(userID, token); err != nil {
				logger.Warn("api token verification failed",
					zap.Int64("user_id", userID),
					zap.String("remote_addr", r.RemoteAddr))
				unauthorized(w, "invalid API token")
				return
			}

			ctx := ContextWithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization: Bearer <token>
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `","code":"unauthorized"}`))
}
