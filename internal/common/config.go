package common

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/claims-review/constants"
)

// Config holds all application configuration
type Config struct {
	Queue   QueueConfig
	Server  ServerConfig
	Preview PreviewConfig
	Events  EventsConfig
	Log     LogConfig
}

// QueueConfig holds the directory layout of the review queue
type QueueConfig struct {
	DataDir       string
	FailsDir      string
	OutputDir     string
	OriginalsDir  string
	PDFsDir       string
	Watch         bool
	WatchDebounce time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr        string
	MaxMessageBytes int
}

// PreviewConfig holds PDF region rendering configuration
type PreviewConfig struct {
	Pdftoppm string
	DPI      int
	MaxWidth int
	Timeout  time.Duration
}

// EventsConfig holds commit notification configuration
type EventsConfig struct {
	Brokers []string
	Topic   string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads an optional .env file and then configuration from environment variables
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", "error", err)
	}

	dataDir := getEnv("REVIEW_DATA_DIR", "./data")
	return &Config{
		Queue: QueueConfig{
			DataDir:       dataDir,
			FailsDir:      getEnv("REVIEW_FAILS_DIR", filepath.Join(dataDir, constants.FailsDir)),
			OutputDir:     getEnv("REVIEW_OUTPUT_DIR", filepath.Join(dataDir, constants.OutputDir)),
			OriginalsDir:  getEnv("REVIEW_ORIGINALS_DIR", filepath.Join(dataDir, constants.OriginalsDir)),
			PDFsDir:       getEnv("REVIEW_PDFS_DIR", filepath.Join(dataDir, constants.PDFsDir)),
			Watch:         getEnvAsBool("WATCH_FAILS", true),
			WatchDebounce: getEnvAsDuration("WATCH_DEBOUNCE", 250*time.Millisecond),
		},
		Server: ServerConfig{
			GRPCAddr:        getEnv("GRPC_ADDR", ":8080"),
			MaxMessageBytes: getEnvAsInt("GRPC_MAX_MESSAGE_BYTES", 4<<20),
		},
		Preview: PreviewConfig{
			Pdftoppm: getEnv("PDFTOPPM_BIN", "pdftoppm"),
			DPI:      getEnvAsInt("PREVIEW_DPI", 110),
			MaxWidth: getEnvAsInt("PREVIEW_MAX_WIDTH", 0),
			Timeout:  getEnvAsDuration("PREVIEW_TIMEOUT", 30*time.Second),
		},
		Events: EventsConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "claims.review"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Queue.FailsDir == "" || c.Queue.OutputDir == "" || c.Queue.OriginalsDir == "" {
		return NewAppError("CONFIG_ERROR", "fails, output and originals directories are required", ErrInvalidInput)
	}
	if c.Queue.FailsDir == c.Queue.OutputDir || c.Queue.FailsDir == c.Queue.OriginalsDir || c.Queue.OutputDir == c.Queue.OriginalsDir {
		return NewAppError("CONFIG_ERROR", "fails, output and originals must be distinct directories", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Server.MaxMessageBytes < 64<<10 {
		return NewAppError("CONFIG_ERROR", "GRPC_MAX_MESSAGE_BYTES must be at least 64KiB", ErrInvalidInput)
	}
	if c.Preview.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "PREVIEW_DPI must be positive", ErrInvalidInput)
	}
	return nil
}

// NewLogger builds the process logger from LogConfig.
func NewLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
