package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/loan-docintel/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Queue    QueueConfig
	Layout   LayoutConfig
	LLM      LLMConfig
	Risk     RiskConfig
	LogLevel slog.Level
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" or "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// QueueConfig holds the processing queue defaults applied when a submission leaves them unset.
type QueueConfig struct {
	MaxConcurrent int
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// LayoutConfig holds the document layout/OCR service configuration
type LayoutConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model             string
	APIKey            string
	BaseURL           string
	Temperature       float32
	Timeout           time.Duration
	RequestsPerSecond float64
}

// RiskConfig holds application-level risk inputs
type RiskConfig struct {
	RequiredDocumentTypes []constants.DocumentType
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Queue: QueueConfig{
			MaxConcurrent: getEnvAsInt("QUEUE_MAX_CONCURRENT", 5),
			Timeout:       getEnvAsDuration("QUEUE_TIMEOUT", 5*time.Minute),
			RetryAttempts: getEnvAsInt("QUEUE_RETRY_ATTEMPTS", 2),
			RetryDelay:    getEnvAsDuration("QUEUE_RETRY_DELAY", 2*time.Second),
		},
		Layout: LayoutConfig{
			BaseURL:           getEnv("LAYOUT_BASE_URL", "http://localhost:8090"),
			APIKey:            getEnv("LAYOUT_API_KEY", ""),
			Timeout:           getEnvAsDuration("LAYOUT_TIMEOUT", 60*time.Second),
			RequestsPerSecond: getEnvAsFloat64("LAYOUT_RPS", 2),
		},
		LLM: LLMConfig{
			Model:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			BaseURL:           getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature:       getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:           getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			RequestsPerSecond: getEnvAsFloat64("OPENAI_RPS", 1),
		},
		Risk: RiskConfig{
			RequiredDocumentTypes: getEnvAsDocumentTypes("RISK_REQUIRED_DOCUMENT_TYPES", constants.DefaultRequiredDocumentTypes),
		},
		LogLevel: getEnvAsLogLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsLogLevel(key string, defaultValue slog.Level) slog.Level {
	if value := os.Getenv(key); value != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(value)); err == nil {
			return lvl
		}
	}
	return defaultValue
}

// getEnvAsDocumentTypes reads a comma-separated list; unknown labels are skipped.
func getEnvAsDocumentTypes(key string, defaultValue []constants.DocumentType) []constants.DocumentType {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []constants.DocumentType
	for _, part := range strings.Split(value, ",") {
		if t, ok := constants.CanonicalizeDocumentType(part); ok {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Queue.MaxConcurrent <= 0 {
		return NewAppError("CONFIG_ERROR", "QUEUE_MAX_CONCURRENT must be positive", ErrInvalidInput)
	}
	if c.Queue.RetryAttempts < 0 {
		return NewAppError("CONFIG_ERROR", "QUEUE_RETRY_ATTEMPTS must not be negative", ErrInvalidInput)
	}
	if c.Layout.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "LAYOUT_BASE_URL is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	return nil
}
