package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Source  SourceConfig
	Storage StorageConfig
	Sync    SyncConfig
	Server  ServerConfig
}

// SourceConfig holds configuration for the external source API client
type SourceConfig struct {
	BaseURL          string
	Timeout          time.Duration
	MaxAttempts      int           // retry budget for batch fetches
	BaseDelay        time.Duration // first backoff delay; doubles per attempt
	BatchConcurrency int           // concurrent requests per batch group
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	Type        string // "memory", "mongodb", "postgresql", "dynamodb"
	MongoDBURI  string
	MongoDBName string
	PostgresURI string
	Region      string // For AWS DynamoDB
	TablePrefix string
	Endpoint    string // Custom DynamoDB endpoint for local testing
}

// SyncConfig holds sync orchestration configuration
type SyncConfig struct {
	Interval time.Duration
	Periodic bool // run full syncs on a ticker after the initial run
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load loads configuration from the environment with defaults. A .env file
// in the working directory is applied first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Source: SourceConfig{
			BaseURL:          getEnv("SOURCE_BASE_URL", "https://jsonplaceholder.typicode.com"),
			Timeout:          getEnvDuration("SOURCE_TIMEOUT", 30*time.Second),
			MaxAttempts:      getEnvInt("SOURCE_MAX_ATTEMPTS", 4),
			BaseDelay:        getEnvDuration("SOURCE_BASE_DELAY", 500*time.Millisecond),
			BatchConcurrency: getEnvInt("SOURCE_BATCH_CONCURRENCY", 5),
		},
		Storage: StorageConfig{
			Type:        getEnv("STORAGE_TYPE", "memory"),
			MongoDBURI:  getEnv("MONGODB_URI", ""),
			MongoDBName: getEnv("MONGODB_DATABASE", "content_sync"),
			PostgresURI: getEnv("POSTGRES_URI", ""),
			Region:      getEnv("AWS_REGION", "us-west-2"),
			TablePrefix: getEnv("TABLE_PREFIX", "content_sync"),
			Endpoint:    getEnv("DYNAMODB_ENDPOINT", ""), // For local DynamoDB
		},
		Sync: SyncConfig{
			Interval: getEnvDuration("SYNC_INTERVAL", 15*time.Minute),
			Periodic: getEnvBool("SYNC_PERIODIC", false),
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
