package middleware

import (
	"compress/gzip"
	"net/http"
	"strings"
)

type gzipWriter struct {
	http.ResponseWriter
	zw *gzip.Writer
}

func (w *gzipWriter) Write(b []byte) (int, error) {
	// хендлер мог выставить Content-Length уже после входа в мидлварь
	w.Header().Del("Content-Length")
	return w.zw.Write(b)
}

func (w *gzipWriter) WriteHeader(statusCode int) {
	// длина исходного тела после сжатия не совпадёт
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(statusCode)
}

// WithGzip сжимает тело ответа, если клиент заявил поддержку gzip.
func WithGzip(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
		zw := gzip.NewWriter(w)
		defer zw.Close()

		next.ServeHTTP(&gzipWriter{ResponseWriter: w, zw: zw}, r)
	})
}
