package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/buzzer/internal/infrastructure/json"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
)

func (app *Application) rateLimiterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := app.ratelimiter.GetSourceKey(r)
		if !app.ratelimiter.Allow(key) {
			app.logger.Warn(logging.General, logging.RateLimiting, "request rate limited", map[logging.ExtraKey]any{
				logging.ClientIp: key,
				logging.Path:     r.URL.Path,
			})
			json.WriteRateLimitError(w, 1)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(app.ratelimiter.GetMaxBurst()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(app.ratelimiter.Remaining(key)))
		next.ServeHTTP(w, r)
	})
}

func (app *Application) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		extra := map[logging.ExtraKey]any{
			logging.Method:     r.Method,
			logging.Path:       r.URL.Path,
			logging.StatusCode: ww.Status(),
			logging.BodySize:   ww.BytesWritten(),
			logging.Latency:    time.Since(start).String(),
			logging.ClientIp:   r.RemoteAddr,
		}
		if ww.Status() >= http.StatusInternalServerError {
			app.logger.Error(logging.RequestResponse, logging.ExternalService, "request failed", extra)
			return
		}
		app.logger.Info(logging.RequestResponse, logging.ExternalService, "request", extra)
	})
}

// metricsMiddleware labels requests by route pattern so room codes do not
// explode label cardinality.
func (app *Application) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		app.metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}
