package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"ImageVault/internal/rateguard"
)

// ClientIP извлекает адрес клиента с учётом обратного прокси.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// первый адрес в цепочке — исходный клиент
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// KeyFunc строит ключ лимитера из запроса.
type KeyFunc func(r *http.Request) string

// ByIP — ключ лимитера по адресу клиента.
func ByIP(r *http.Request) string {
	return ClientIP(r)
}

// ByIPAndUser — составной ключ для операций с ключами: один пользователь
// не выбирает лимит чужого адреса и наоборот.
func ByIPAndUser(r *http.Request) string {
	uid, _ := GetUserIDFromContext(r.Context())
	return ClientIP(r) + "|" + uid
}

// WithBanCheck отбивает запросы забаненных адресов до всякой другой обработки.
func WithBanCheck(guard *rateguard.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if guard.IsBanned(ClientIP(r)) {
				http.Error(w, "access temporarily blocked", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithRateLimit отвечает 429 с Retry-After при превышении лимита.
func WithRateLimit(limiter *rateguard.Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := limiter.Allow(key(r))
			if !ok {
				secs := int(retryAfter.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type failureTrackingWriter struct {
	http.ResponseWriter
	status int
}

func (w *failureTrackingWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *failureTrackingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// WithFailureTracking учитывает клиентские ошибки (4xx, кроме 429) как
// подозрительную активность адреса. Достаточно много отказов в окне —
// и Guard банит адрес целиком.
func WithFailureTracking(guard *rateguard.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fw := &failureTrackingWriter{ResponseWriter: w}
			next.ServeHTTP(fw, r)
			if fw.status >= 400 && fw.status < 500 && fw.status != http.StatusTooManyRequests {
				guard.RecordFailure(ClientIP(r))
			}
		})
	}
}
