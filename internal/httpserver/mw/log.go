package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/trafficdeck/trafficdeck/internal/logger"
)

// accessWriter records the status code and response size for the access log.
type accessWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *accessWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *accessWriter) Write(b []byte) (int, error) {
	// A handler may write the body without an explicit WriteHeader.
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// Log emits one structured access-log line per request. Degraded responses
// (5xx) are logged at warn so write-back failures stand out among the
// snapshot polls.
func Log(loggerClient logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			aw := &accessWriter{ResponseWriter: w}

			next.ServeHTTP(aw, r)

			emit := loggerClient.Info
			if aw.status >= http.StatusInternalServerError {
				emit = loggerClient.Warn
			}
			emit("http_request",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", aw.status),
				logger.Int("bytes", aw.size),
				logger.Duration("duration", time.Since(start)),
				logger.String("remote_ip", r.RemoteAddr),
				logger.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
