package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jonwraymond/tiercache/observe"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger observe.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Debug(r.Context(), "http request",
				observe.F("method", r.Method),
				observe.F("path", r.URL.Path),
				observe.F("status", rec.status),
				observe.F("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}
