package common

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Templates TemplatesConfig
	Batch     BatchConfig
	Stats     StatsConfig
}

// TemplatesConfig holds template repository configuration
type TemplatesConfig struct {
	Dir           string
	PatternBudget time.Duration
}

// BatchConfig holds batch processing configuration
type BatchConfig struct {
	Workers         int
	QueueSize       int
	DocumentTimeout time.Duration
}

// StatsConfig holds bookkeeping store configuration
type StatsConfig struct {
	Path string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Templates: TemplatesConfig{
			Dir:           getEnv("TEMPLATES_DIR", "./templates"),
			PatternBudget: getEnvAsDuration("PATTERN_BUDGET", 250*time.Millisecond),
		},
		Batch: BatchConfig{
			Workers:         getEnvAsInt("BATCH_WORKERS", runtime.NumCPU()),
			QueueSize:       getEnvAsInt("BATCH_QUEUE_SIZE", 256),
			DocumentTimeout: getEnvAsDuration("DOCUMENT_TIMEOUT", 30*time.Second),
		},
		Stats: StatsConfig{
			Path: getEnv("STATS_DB_PATH", ":memory:"),
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Templates.Dir == "" {
		return NewAppError("CONFIG_ERROR", "TEMPLATES_DIR is required", ErrInvalidInput)
	}
	if c.Batch.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "BATCH_WORKERS must be positive", ErrInvalidInput)
	}
	if c.Templates.PatternBudget <= 0 {
		return NewAppError("CONFIG_ERROR", "PATTERN_BUDGET must be positive", ErrInvalidInput)
	}
	return nil
}
