package main

import (
	"context"
	"log"
	"time"

	"github.com/hilthontt/buzzer/internal/domain"
	"github.com/hilthontt/buzzer/internal/infrastructure/configs"
	"github.com/hilthontt/buzzer/internal/infrastructure/events"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
	"github.com/hilthontt/buzzer/internal/infrastructure/messaging"
	"github.com/hilthontt/buzzer/internal/infrastructure/metrics"
	"github.com/hilthontt/buzzer/internal/infrastructure/ratelimiter"
	memoryRepository "github.com/hilthontt/buzzer/internal/infrastructure/repository"
	"github.com/hilthontt/buzzer/internal/infrastructure/tracing"
	"github.com/hilthontt/buzzer/internal/infrastructure/ws"
	"github.com/hilthontt/buzzer/internal/persistence/db"
	mongoRepository "github.com/hilthontt/buzzer/internal/persistence/repository"
	"github.com/hilthontt/buzzer/internal/presentation/api"
	"github.com/hilthontt/buzzer/internal/presentation/handler/health"
	"github.com/hilthontt/buzzer/internal/presentation/handler/rooms"
	"github.com/hilthontt/buzzer/internal/session"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.NewLogger(&cfg.Logger)
	logger.Info(logging.General, logging.Startup, "configuration loaded", map[logging.ExtraKey]any{
		"ConfigPath": configPath,
		"Store":      cfg.RoomStore.Driver,
		"Events":     cfg.Events.Driver,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal(logging.General, logging.Startup, "failed to init tracing", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = shutdownTracer(shutdownCtx)
	}()

	collector := metrics.New()
	checks := map[string]health.Check{}

	var mongoClient *mongo.Client
	var database *mongo.Database
	if cfg.RoomStore.Driver == configs.StoreMongo || cfg.Events.Audit {
		mongoCfg := &db.MongoConfig{
			URI:               cfg.Mongo.URI,
			Database:          cfg.Mongo.Database,
			ConnectionTimeout: cfg.Mongo.ConnectTimeout,
			MaxPoolSize:       cfg.Mongo.MaxPoolSize,
		}
		mongoClient, err = db.NewMongoClient(ctx, mongoCfg, logger)
		if err != nil {
			logger.Fatal(logging.MongoDB, logging.Startup, "failed to connect to mongodb", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
		defer func() {
			if err := db.DisconnectMongo(context.Background(), mongoClient, logger); err != nil {
				logger.Error(logging.MongoDB, logging.Shutdown, "failed to disconnect mongodb", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
		}()
		database = db.GetDatabase(mongoClient, mongoCfg)
		checks["mongodb"] = func(ctx context.Context) error {
			return mongoClient.Ping(ctx, readpref.Primary())
		}
	}

	var store domain.RoomStore
	switch cfg.RoomStore.Driver {
	case configs.StoreMongo:
		store = mongoRepository.NewRoomRepository(database, cfg.Mongo.RoomsCollection, cfg.RoomStore.IdleExpiry)
	default:
		store = memoryRepository.NewRoomRepository(cfg.RoomStore.Capacity, cfg.RoomStore.IdleExpiry)
	}
	if ix, ok := store.(indexer); ok {
		if err := ix.EnsureIndexes(ctx); err != nil {
			logger.Fatal(logging.MongoDB, logging.Startup, "failed to create room indexes", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
	}

	bus, err := newBus(cfg, logger)
	if err != nil {
		logger.Fatal(logging.IO, logging.Startup, "failed to connect to event bus", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	var publisher session.Publisher
	if bus != nil {
		defer bus.Close()
		publisher = events.NewRoomPublisher(bus)

		if cfg.Events.Audit {
			audit := mongoRepository.NewRoomAuditLogRepository(database, cfg.Mongo.AuditCollection, cfg.Mongo.AuditRetention)
			if err := audit.EnsureIndexes(ctx); err != nil {
				logger.Fatal(logging.MongoDB, logging.Startup, "failed to create audit indexes", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
			if err := events.NewRoomConsumer(bus, audit, cfg.Events.Queue, logger).Listen(ctx); err != nil {
				logger.Fatal(logging.IO, logging.Startup, "failed to start audit consumer", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
		}
	}

	manager := ws.NewRoomManager(logger, collector)
	engine := session.NewEngine(store, manager, session.Options{
		Window:       cfg.Buzzer.Window,
		CodeAttempts: cfg.Buzzer.CodeAttempts,
		Logger:       logger,
		Publisher:    publisher,
		Metrics:      collector,
	})
	defer engine.Close()

	var eventLimiter ws.EventLimiter
	if cfg.WebSocket.MaxEventsPerSecond > 0 {
		eventLimiter = ratelimiter.NewFixedWindowRateLimiter(cfg.WebSocket.MaxEventsPerSecond, time.Second)
	}
	gateway := ws.NewGateway(engine, manager, eventLimiter, logger, cfg.WebSocket)

	var requestLimiter ratelimiter.Limiter
	if cfg.RateLimiter.Enabled {
		requestLimiter = ratelimiter.New(ratelimiter.Options{
			MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
			MaxBurst:         cfg.RateLimiter.MaxBurst,
			CacheTTL:         cfg.RateLimiter.CacheTTL,
			SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
		})
	}

	app := api.NewApplication(
		*cfg,
		rooms.NewHandler(engine, logger),
		health.NewHandler(nil, checks),
		gateway,
		collector,
		logger,
		requestLimiter,
	)

	if err := app.Run(app.Mount()); err != nil {
		logger.Error(logging.General, logging.Shutdown, "server stopped with error", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
}

// newBus returns nil when no event bus is configured.
func newBus(cfg *configs.Config, logger logging.Logger) (messaging.Bus, error) {
	switch cfg.Events.Driver {
	case configs.EventsRabbitMQ:
		return messaging.NewRabbitMQ(cfg.Events.URL, cfg.Events.Exchange, logger)
	case configs.EventsNATS:
		natsCfg := messaging.DefaultNATSConfig()
		if cfg.Events.URL != "" {
			natsCfg.URL = cfg.Events.URL
		}
		if cfg.Events.Subject != "" {
			natsCfg.SubjectPrefix = cfg.Events.Subject
		}
		return messaging.NewNATS(natsCfg, logger)
	default:
		return nil, nil
	}
}
