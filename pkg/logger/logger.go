// Package logger wraps zerolog with the service-wide defaults: console or
// json output, optional rotating file sink, and component-scoped child
// loggers.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level       string `json:"level"`
	Format      string `json:"format"` // "json" or "console"
	ColorOutput bool   `json:"color_output"`
	TimeFormat  string `json:"time_format"`

	// File enables a rotating file sink alongside stdout when non-empty.
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Logger wraps zerolog.Logger with additional functionality.
type Logger struct {
	*zerolog.Logger
	config Config
}

// New creates a new logger instance with the given configuration.
func New(config Config) *Logger {
	zerolog.SetGlobalLevel(parseLogLevel(config.Level))

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	var output io.Writer = os.Stdout
	if config.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    orDefault(config.MaxSizeMB, 100),
			MaxBackups: orDefault(config.MaxBackups, 3),
			MaxAge:     orDefault(config.MaxAgeDays, 28),
			Compress:   true,
		}
		output = io.MultiWriter(os.Stdout, rotated)
	}

	var logger zerolog.Logger
	switch strings.ToLower(config.Format) {
	case "console", "pretty":
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: config.TimeFormat,
			NoColor:    !config.ColorOutput,
		}).With().Timestamp().Str("service", "whatsapp-checker").Logger()
	default:
		logger = zerolog.New(output).With().Timestamp().Str("service", "whatsapp-checker").Logger()
	}

	return &Logger{
		Logger: &logger,
		config: config,
	}
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	return New(Config{
		Level:       "info",
		Format:      "console",
		ColorOutput: true,
		TimeFormat:  time.RFC3339,
	})
}

// SetGlobalLogger sets the global logger instance.
func SetGlobalLogger(logger *Logger) {
	log.Logger = *logger.Logger
}

// WithComponent creates a logger with a component field.
func (l *Logger) WithComponent(component string) *Logger {
	newLogger := l.Logger.With().Str("component", component).Logger()
	return &Logger{
		Logger: &newLogger,
		config: l.config,
	}
}

// WithInstanceID creates a logger with an instance ID field.
func (l *Logger) WithInstanceID(instanceID string) *Logger {
	newLogger := l.Logger.With().Str("instance_id", instanceID).Logger()
	return &Logger{
		Logger: &newLogger,
		config: l.config,
	}
}

// WithUserID creates a logger with a user ID field.
func (l *Logger) WithUserID(userID string) *Logger {
	newLogger := l.Logger.With().Str("user_id", userID).Logger()
	return &Logger{
		Logger: &newLogger,
		config: l.config,
	}
}

// GetConfig returns the current logger configuration.
func (l *Logger) GetConfig() Config {
	return l.config
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
