package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/buzzer/internal/infrastructure/configs"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
	"github.com/hilthontt/buzzer/internal/infrastructure/metrics"
	"github.com/hilthontt/buzzer/internal/infrastructure/ratelimiter"
	healthHandler "github.com/hilthontt/buzzer/internal/presentation/handler/health"
	roomHandler "github.com/hilthontt/buzzer/internal/presentation/handler/rooms"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Application struct {
	config        configs.Config
	roomHandler   *roomHandler.Handler
	healthHandler *healthHandler.Handler
	gateway       http.Handler
	metrics       *metrics.Collector
	logger        logging.Logger
	ratelimiter   ratelimiter.Limiter
}

func NewApplication(
	config configs.Config,
	roomHandler *roomHandler.Handler,
	healthHandler *healthHandler.Handler,
	gateway http.Handler,
	metrics *metrics.Collector,
	logger logging.Logger,
	ratelimiter ratelimiter.Limiter,
) *Application {
	return &Application{
		config:        config,
		roomHandler:   roomHandler,
		healthHandler: healthHandler,
		gateway:       gateway,
		metrics:       metrics,
		logger:        logger,
		ratelimiter:   ratelimiter,
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(app.metricsMiddleware)
	r.Use(app.corsMiddleware())

	r.Handle("/metrics", app.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// The socket lives as long as the connection, so it skips the
		// request timeout and the per-request limiter.
		r.Get("/rooms/ws", app.gateway.ServeHTTP)

		r.Group(func(r chi.Router) {
			if app.config.HTTP.RequestTimeout > 0 {
				r.Use(middleware.Timeout(app.config.HTTP.RequestTimeout))
			}
			if app.ratelimiter != nil {
				r.Use(app.rateLimiterMiddleware)
			}

			r.Route("/rooms", func(r chi.Router) {
				r.Post("/", app.roomHandler.CreateRoomHandler)
				r.Get("/{roomId}", app.roomHandler.GetRoomHandler)
				r.Post("/{roomId}/join", app.roomHandler.JoinRoomHandler)
			})

			r.Get("/health", app.healthHandler.GetHealth)
			r.Get("/healthz", app.healthHandler.GetHealth)
			r.Get("/live", app.healthHandler.GetHealth)
			r.Get("/ready", app.healthHandler.GetReady)
		})
	})

	return otelhttp.NewHandler(r, "buzzer-api",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics"
		}),
	)
}

func (app *Application) corsMiddleware() func(http.Handler) http.Handler {
	origins := app.config.HTTP.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	headers := app.config.HTTP.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "Authorization"}
	}

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: headers,
		MaxAge:         300,
	}).Handler
}

// Run serves mux until SIGINT or SIGTERM, then drains in-flight requests.
func (app *Application) Run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port),
		Handler:      mux,
		WriteTimeout: app.config.HTTP.WriteTimeout,
		ReadTimeout:  app.config.HTTP.ReadTimeout,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Info(logging.General, logging.Shutdown, "signal caught", map[logging.ExtraKey]any{
			"Signal": s.String(),
		})

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Info(logging.General, logging.Startup, "server has started", map[logging.ExtraKey]any{
		logging.HostIp: srv.Addr,
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Info(logging.General, logging.Shutdown, "server has stopped", map[logging.ExtraKey]any{
		logging.HostIp: srv.Addr,
	})

	return nil
}
