package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

var sugar *zap.SugaredLogger = zap.NewNop().Sugar()

// SetLogger задаёт логгер для WithLogging. Вызывается один раз при старте.
func SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		sugar = l
	}
}

type responseData struct {
	status int
	size   int
}

type loggingResponseWriter struct {
	http.ResponseWriter
	data *responseData
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	if w.data.status == 0 {
		w.data.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.data.size += n
	return n, err
}

func (w *loggingResponseWriter) WriteHeader(statusCode int) {
	w.data.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// WithLogging пишет по строке на запрос: метод, путь, статус, размер, длительность.
func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, data: &responseData{}}

		next.ServeHTTP(lw, r)

		sugar.Infow("request",
			"method", r.Method,
			"uri", r.RequestURI,
			"status", lw.data.status,
			"size", lw.data.size,
			"duration", time.Since(start),
		)
	})
}
