package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger attaches log to the request context and logs one line per
// request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			reqLog := log.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()

			next.ServeHTTP(rec, r.WithContext(reqLog.WithContext(r.Context())))

			evt := reqLog.Info()
			if rec.status >= http.StatusInternalServerError {
				evt = reqLog.Error()
			}
			evt.Int("status", rec.status).Dur("duration", time.Since(start)).Msg("http request")
		})
	}
}

// recovery turns handler panics into a 500 response.
func recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					log.Error().Interface("panic", p).Str("path", r.URL.Path).Msg("panic recovered")
					writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL", Message: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
