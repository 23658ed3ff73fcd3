package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Auth     AuthConfig     `json:"auth"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	EnableCORS   bool          `json:"enable_cors"`
}

// DatabaseConfig holds database configuration. Driver selects between
// "postgres" and "sqlite".
type DatabaseConfig struct {
	Driver          string        `json:"driver"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password,omitempty"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	SQLitePath      string        `json:"sqlite_path"`
	Debug           bool          `json:"debug"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// AuthConfig holds admin-auth configuration.
type AuthConfig struct {
	JWTSecret    string        `json:"-"`
	TokenTTL     time.Duration `json:"token_ttl"`
	BcryptCost   int           `json:"bcrypt_cost"`
	DefaultAdmin string        `json:"default_admin"`
	// DefaultAdminPassword seeds the initial admin account when no user with
	// DefaultAdmin's name exists yet. Empty disables seeding.
	DefaultAdminPassword string `json:"-"`
}

// WhatsAppConfig holds the session supervisor tunables.
type WhatsAppConfig struct {
	AuthDir string `json:"auth_dir"`
	Debug   bool   `json:"debug"`

	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `json:"reconnect_delay"`
	ReconnectCooldown    time.Duration `json:"reconnect_cooldown"`

	CheckTimeout       time.Duration `json:"check_timeout"`
	CheckRetryAttempts int           `json:"check_retry_attempts"`
	CheckRetryDelay    time.Duration `json:"check_retry_delay"`

	BackupDelay time.Duration `json:"backup_delay"`
	CacheTTL    time.Duration `json:"cache_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"` // "json" or "console"
	ColorOutput bool   `json:"color_output"`
	TimeFormat  string `json:"time_format"`
	File        string `json:"file"`
}

// Load loads configuration from environment variables and .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	config := &Config{
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		Auth:     loadAuthConfig(),
		WhatsApp: loadWhatsAppConfig(),
		Logging:  loadLoggingConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
		Port:         getEnvAsIntOrDefault("SERVER_PORT", 3000),
		ReadTimeout:  getEnvAsDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getEnvAsDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:  getEnvAsDurationOrDefault("SERVER_IDLE_TIMEOUT", 120*time.Second),
		EnableCORS:   getEnvAsBoolOrDefault("SERVER_ENABLE_CORS", true),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          getEnvOrDefault("DB_DRIVER", "postgres"),
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            getEnvAsIntOrDefault("DB_PORT", 5432),
		User:            getEnvOrDefault("DB_USER", "checker"),
		Password:        os.Getenv("DB_PASSWORD"),
		Name:            getEnvOrDefault("DB_NAME", "whatsapp_checker"),
		SSLMode:         getEnvOrDefault("DB_SSL_MODE", "disable"),
		SQLitePath:      getEnvOrDefault("DB_SQLITE_PATH", "data/checker.db"),
		Debug:           getEnvAsBoolOrDefault("DB_DEBUG", false),
		MaxOpenConns:    getEnvAsIntOrDefault("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:            getEnvOrDefault("JWT_SECRET", ""),
		TokenTTL:             getEnvAsDurationOrDefault("JWT_TOKEN_TTL", 24*time.Hour),
		BcryptCost:           getEnvAsIntOrDefault("BCRYPT_COST", 12),
		DefaultAdmin:         getEnvOrDefault("DEFAULT_ADMIN_USER", "admin"),
		DefaultAdminPassword: os.Getenv("DEFAULT_ADMIN_PASSWORD"),
	}
}

func loadWhatsAppConfig() WhatsAppConfig {
	return WhatsAppConfig{
		AuthDir:              getEnvOrDefault("WHATSAPP_AUTH_DIR", "auth"),
		Debug:                getEnvAsBoolOrDefault("WHATSAPP_DEBUG", false),
		MaxReconnectAttempts: getEnvAsIntOrDefault("WHATSAPP_MAX_RECONNECT_ATTEMPTS", 10),
		ReconnectDelay:       getEnvAsDurationOrDefault("WHATSAPP_RECONNECT_DELAY", 5*time.Second),
		ReconnectCooldown:    getEnvAsDurationOrDefault("WHATSAPP_RECONNECT_COOLDOWN", 5*time.Minute),
		CheckTimeout:         getEnvAsDurationOrDefault("WHATSAPP_CHECK_TIMEOUT", 30*time.Second),
		CheckRetryAttempts:   getEnvAsIntOrDefault("WHATSAPP_CHECK_RETRY_ATTEMPTS", 3),
		CheckRetryDelay:      getEnvAsDurationOrDefault("WHATSAPP_CHECK_RETRY_DELAY", 2*time.Second),
		BackupDelay:          getEnvAsDurationOrDefault("WHATSAPP_BACKUP_DELAY", 5*time.Second),
		CacheTTL:             getEnvAsDurationOrDefault("CACHE_TTL", 24*time.Hour),
	}
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:       getEnvOrDefault("LOG_LEVEL", "info"),
		Format:      getEnvOrDefault("LOG_FORMAT", "console"),
		ColorOutput: getEnvAsBoolOrDefault("LOG_COLOR_OUTPUT", true),
		TimeFormat:  getEnvOrDefault("LOG_TIME_FORMAT", "2006-01-02 15:04:05"),
		File:        os.Getenv("LOG_FILE"),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.WhatsApp.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("invalid max reconnect attempts: %d", c.WhatsApp.MaxReconnectAttempts)
	}
	if c.WhatsApp.AuthDir == "" {
		return fmt.Errorf("whatsapp auth dir is required")
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// GetServerAddress returns the full server address.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetDatabaseDSN returns the PostgreSQL connection string.
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host,
		c.Database.Port, c.Database.Name, c.Database.SSLMode,
	)
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
		return true
	default:
		return false
	}
}
