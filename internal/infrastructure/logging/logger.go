package logging

import (
	"github.com/hilthontt/buzzer/internal/infrastructure/env"
)

type Logger interface {
	Init()

	Debug(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Debugf(template string, args ...any)

	Info(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Infof(template string, args ...any)

	Warn(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Warnf(template string, args ...any)

	Error(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Errorf(template string, args ...any)

	Fatal(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Fatalf(template string, args ...any)
}

// LoggerConfig selects the backend and its output. An empty FilePath logs to
// stdout; otherwise output rotates through lumberjack.
type LoggerConfig struct {
	FilePath   string `koanf:"file_path"`
	Encoding   string `koanf:"encoding"`
	Level      string `koanf:"level"`
	Logger     string `koanf:"logger"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

func NewDefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		FilePath:   env.GetString("LOGGER_FILE_PATH", ""),
		Encoding:   env.GetString("LOGGER_ENCODING", "json"),
		Level:      env.GetString("LOGGER_LEVEL", "debug"),
		Logger:     env.GetString("LOGGER_LOGGER", "zap"),
		MaxSizeMB:  env.GetInt("LOGGER_MAX_SIZE_MB", 10),
		MaxBackups: env.GetInt("LOGGER_MAX_BACKUPS", 5),
		MaxAgeDays: env.GetInt("LOGGER_MAX_AGE_DAYS", 7),
		Compress:   env.GetBool("LOGGER_COMPRESS", true),
	}
}

func NewLogger(cfg *LoggerConfig) Logger {
	var l Logger
	switch cfg.Logger {
	case "zap", "":
		l = newZapLogger(cfg)
	case "zerolog":
		l = newZeroLogger(cfg)
	default:
		panic("logger not supported: supported loggers: [zap, zerolog]")
	}

	l.Init()
	return l
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (*nopLogger) Init()                                                 {}
func (*nopLogger) Debug(Category, SubCategory, string, map[ExtraKey]any) {}
func (*nopLogger) Debugf(string, ...any)                                 {}
func (*nopLogger) Info(Category, SubCategory, string, map[ExtraKey]any)  {}
func (*nopLogger) Infof(string, ...any)                                  {}
func (*nopLogger) Warn(Category, SubCategory, string, map[ExtraKey]any)  {}
func (*nopLogger) Warnf(string, ...any)                                  {}
func (*nopLogger) Error(Category, SubCategory, string, map[ExtraKey]any) {}
func (*nopLogger) Errorf(string, ...any)                                 {}
func (*nopLogger) Fatal(Category, SubCategory, string, map[ExtraKey]any) {}
func (*nopLogger) Fatalf(string, ...any)                                 {}
