package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "user_id"

// CookieName — имя cookie с сессионным токеном.
const CookieName = "auth_token"

const sessionTTL = 24 * time.Hour

type sessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// SetLoginCookie выпускает сессионный JWT и кладёт его в cookie ответа.
func SetLoginCookie(w http.ResponseWriter, userID string, secret string) error {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
		UserID: userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func parseSessionToken(tokenString, secret string) (string, error) {
	claims := &sessionClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid || claims.UserID == "" {
		return "", errors.New("invalid session token")
	}
	return claims.UserID, nil
}

// WithAuth достаёт сессионный токен из cookie или заголовка Authorization
// и кладёт user_id в контекст запроса. Невалидный или отсутствующий токен
// оставляет запрос анонимным; обязательность аутентификации решают хендлеры.
func WithAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string
			if c, err := r.Cookie(CookieName); err == nil {
				tokenString = c.Value
			} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				tokenString = strings.TrimPrefix(h, "Bearer ")
			}
			if tokenString != "" {
				if uid, err := parseSessionToken(tokenString, secret); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), userIDKey, uid))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserIDFromContext возвращает user_id, установленный WithAuth.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDKey).(string)
	return uid, ok
}
