package configs

import (
	"fmt"
	"time"

	"github.com/hilthontt/buzzer/internal/infrastructure/env"
	"github.com/hilthontt/buzzer/internal/infrastructure/logging"
	"github.com/hilthontt/buzzer/internal/infrastructure/tracing"
	"github.com/hilthontt/buzzer/internal/infrastructure/ws"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	EventsNone     = "none"
	EventsRabbitMQ = "rabbitmq"
	EventsNATS     = "nats"
)

type Config struct {
	HTTP        HTTPConfig           `koanf:"http"`
	WebSocket   ws.Config            `koanf:"websocket"`
	RateLimiter RateLimiterConfig    `koanf:"rateLimiter"`
	RoomStore   RoomStoreConfig      `koanf:"room_store"`
	Buzzer      BuzzerConfig         `koanf:"buzzer"`
	Mongo       MongoConfig          `koanf:"mongo"`
	Events      EventsConfig         `koanf:"events"`
	Logger      logging.LoggerConfig `koanf:"logger"`
	Tracing     tracing.Config       `koanf:"tracing"`
}

type HTTPConfig struct {
	Host           string        `koanf:"host"`
	Port           uint16        `koanf:"port"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	AllowedHeaders []string      `koanf:"allowed_headers"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type RateLimiterConfig struct {
	Enabled          bool          `koanf:"enabled"`
	MaxRatePerSecond int           `koanf:"maxRatePerSecond"`
	MaxBurst         int           `koanf:"maxBurst"`
	CacheTTL         time.Duration `koanf:"cacheTTL"`
	SourceHeaderKey  string        `koanf:"sourceHeaderKey"`
}

type RoomStoreConfig struct {
	Driver     string        `koanf:"driver"`
	Capacity   uint          `koanf:"capacity"`
	IdleExpiry time.Duration `koanf:"idle_expiry"`
}

type BuzzerConfig struct {
	Window       time.Duration `koanf:"window"`
	CodeAttempts int           `koanf:"code_attempts"`
}

type MongoConfig struct {
	URI             string        `koanf:"uri"`
	Database        string        `koanf:"database"`
	RoomsCollection string        `koanf:"rooms_collection"`
	AuditCollection string        `koanf:"audit_collection"`
	AuditRetention  time.Duration `koanf:"audit_retention"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	MaxPoolSize     uint64        `koanf:"max_pool_size"`
}

type EventsConfig struct {
	Driver   string `koanf:"driver"`
	URL      string `koanf:"url"`
	Exchange string `koanf:"exchange"`
	Queue    string `koanf:"queue"`
	Subject  string `koanf:"subject"`
	Audit    bool   `koanf:"audit"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.RoomStore.Driver {
	case StoreMemory, StoreMongo:
	default:
		return fmt.Errorf("room_store.driver: unsupported driver %q", c.RoomStore.Driver)
	}
	switch c.Events.Driver {
	case EventsNone, EventsRabbitMQ, EventsNATS:
	default:
		return fmt.Errorf("events.driver: unsupported driver %q", c.Events.Driver)
	}
	if c.Buzzer.Window <= 0 {
		return fmt.Errorf("buzzer.window must be positive, got %s", c.Buzzer.Window)
	}
	return nil
}

func applyDefaults(k *koanf.Koanf) {
	// HTTP defaults
	setDefault(k, "http.host", "0.0.0.0")
	setDefault(k, "http.port", 8080)
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)
	setDefault(k, "http.request_timeout", 15*time.Second)
	setDefault(k, "http.allowed_origins", []string{"*"})
	setDefault(k, "http.allowed_headers", []string{"Content-Type", "Authorization"})

	// WebSocket defaults
	setDefault(k, "websocket.read_timeout", 60*time.Second)
	setDefault(k, "websocket.write_timeout", 10*time.Second)
	setDefault(k, "websocket.ping_interval", 30*time.Second)
	setDefault(k, "websocket.max_message_size", 4096)
	setDefault(k, "websocket.send_buffer", 64)
	setDefault(k, "websocket.operation_timeout", 5*time.Second)
	setDefault(k, "websocket.max_events_per_second", 20)

	// Rate limiter defaults
	setDefault(k, "rateLimiter.enabled", true)
	setDefault(k, "rateLimiter.maxRatePerSecond", 10)
	setDefault(k, "rateLimiter.maxBurst", 20)
	setDefault(k, "rateLimiter.cacheTTL", 5*time.Minute)
	setDefault(k, "rateLimiter.sourceHeaderKey", "X-Forwarded-For")

	// Store defaults
	setDefault(k, "room_store.driver", StoreMemory)
	setDefault(k, "room_store.capacity", 1000)
	setDefault(k, "room_store.idle_expiry", 6*time.Hour)

	// Buzzer defaults
	setDefault(k, "buzzer.window", time.Second)
	setDefault(k, "buzzer.code_attempts", 5)

	// Mongo defaults
	setDefault(k, "mongo.uri", "mongodb://localhost:27017")
	setDefault(k, "mongo.database", "buzzer")
	setDefault(k, "mongo.rooms_collection", "rooms")
	setDefault(k, "mongo.audit_collection", "room_audit_log")
	setDefault(k, "mongo.audit_retention", 7*24*time.Hour)
	setDefault(k, "mongo.connect_timeout", 10*time.Second)
	setDefault(k, "mongo.max_pool_size", 50)

	// Event bus defaults
	setDefault(k, "events.driver", EventsNone)
	setDefault(k, "events.exchange", "room.events")
	setDefault(k, "events.queue", "room.audit")
	setDefault(k, "events.subject", "buzzer.rooms")
	setDefault(k, "events.audit", false)

	// Logger defaults
	setDefault(k, "logger.encoding", "json")
	setDefault(k, "logger.level", "info")
	setDefault(k, "logger.logger", "zap")
	setDefault(k, "logger.max_size_mb", 10)
	setDefault(k, "logger.max_backups", 5)
	setDefault(k, "logger.max_age_days", 7)
	setDefault(k, "logger.compress", true)

	// Tracing defaults
	setDefault(k, "tracing.enabled", false)
	setDefault(k, "tracing.service_name", "buzzer-api")
	setDefault(k, "tracing.environment", "development")
	setDefault(k, "tracing.endpoint", "http://localhost:4318/v1/traces")
	setDefault(k, "tracing.sample_ratio", 1.0)
}

func applyEnvOverrides(k *koanf.Koanf) {
	// HTTP config from env
	if host := env.GetString("HTTP_HOST", ""); host != "" {
		k.Set("http.host", host)
	}
	if port := env.GetInt("HTTP_PORT", 0); port > 0 {
		k.Set("http.port", port)
	}
	if readTimeout := env.GetInt("HTTP_READ_TIMEOUT_SECONDS", 0); readTimeout > 0 {
		k.Set("http.read_timeout", time.Duration(readTimeout)*time.Second)
	}
	if writeTimeout := env.GetInt("HTTP_WRITE_TIMEOUT_SECONDS", 0); writeTimeout > 0 {
		k.Set("http.write_timeout", time.Duration(writeTimeout)*time.Second)
	}

	// Rate limiter config from env
	if maxRate := env.GetInt("RATE_LIMIT_MAX_RATE_PER_SECOND", 0); maxRate > 0 {
		k.Set("rateLimiter.maxRatePerSecond", maxRate)
	}
	if maxBurst := env.GetInt("RATE_LIMIT_MAX_BURST", 0); maxBurst > 0 {
		k.Set("rateLimiter.maxBurst", maxBurst)
	}
	if sourceKey := env.GetString("RATE_LIMIT_SOURCE_HEADER_KEY", ""); sourceKey != "" {
		k.Set("rateLimiter.sourceHeaderKey", sourceKey)
	}

	// Store config from env
	if driver := env.GetString("ROOM_STORE_DRIVER", ""); driver != "" {
		k.Set("room_store.driver", driver)
	}
	if roomCapacity := env.GetInt("ROOM_STORE_CAPACITY", 0); roomCapacity > 0 {
		k.Set("room_store.capacity", uint(roomCapacity))
	}

	// Buzzer config from env
	if window := env.GetDuration("BUZZER_WINDOW", 0); window > 0 {
		k.Set("buzzer.window", window)
	}

	// Mongo config from env
	if uri := env.GetString("MONGO_URI", ""); uri != "" {
		k.Set("mongo.uri", uri)
	}
	if db := env.GetString("MONGO_DATABASE", ""); db != "" {
		k.Set("mongo.database", db)
	}

	// Event bus config from env
	if driver := env.GetString("EVENTS_DRIVER", ""); driver != "" {
		k.Set("events.driver", driver)
	}
	if url := env.GetString("EVENTS_URL", ""); url != "" {
		k.Set("events.url", url)
	}

	// Logger config from env
	if level := env.GetString("LOGGER_LEVEL", ""); level != "" {
		k.Set("logger.level", level)
	}
	if backend := env.GetString("LOGGER_LOGGER", ""); backend != "" {
		k.Set("logger.logger", backend)
	}
	if filePath := env.GetString("LOGGER_FILE_PATH", ""); filePath != "" {
		k.Set("logger.file_path", filePath)
	}

	// Tracing config from env
	if endpoint := env.GetString("OTEL_EXPORTER_OTLP_ENDPOINT", ""); endpoint != "" {
		k.Set("tracing.endpoint", endpoint)
		k.Set("tracing.enabled", true)
	}
	if environment := env.GetString("ENVIRONMENT", ""); environment != "" {
		k.Set("tracing.environment", environment)
	}
}

// setDefault only sets the value if the key doesn't already exist
func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}
