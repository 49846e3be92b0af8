package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Storage backends for the API server.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds server and worker configuration.
type Config struct {
	DatabaseURL      string
	StorageBackend   string
	ServerPort       string
	FrontendURL      string
	ExtensionOrigins []string
	OpenAIKey        string
	AIProvider       string
	AIModel          string
	AIEmbeddingModel string
	AIBaseURL        string
	EnableHSTS       bool
	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int
	WorkerDebugMode  bool
	ServerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", StoragePostgres)),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
		ExtensionOrigins: getEnvList("EXTENSION_ORIGINS"),
		OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
		AIProvider:       getEnv("AI_PROVIDER", "openai"),
		AIModel:          getEnv("AI_MODEL", ""),
		AIEmbeddingModel: getEnv("AI_EMBEDDING_MODEL", ""),
		AIBaseURL:        getEnv("AI_BASE_URL", ""),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		RedisURL:         getEnv("REDIS_URL", ""),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		WorkerDebugMode:  getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	switch cfg.StorageBackend {
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=%s", StoragePostgres)
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.StorageBackend)
	}

	if cfg.RabbitMQPrefetch < 1 {
		cfg.RabbitMQPrefetch = 1
	}

	return cfg, nil
}

// LoadWorker loads the configuration for cmd/worker, which needs both the
// database and the queue.
func LoadWorker() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.StorageBackend != StoragePostgres {
		return nil, fmt.Errorf("the worker requires STORAGE_BACKEND=%s", StoragePostgres)
	}
	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for the worker")
	}
	return cfg, nil
}

// CORSSeedOrigins are the origins stored when the server finds none: the
// dashboard at FRONTEND_URL and every EXTENSION_ORIGINS entry.
func (c *Config) CORSSeedOrigins() []string {
	seed := make([]string, 0, 1+len(c.ExtensionOrigins))
	if c.FrontendURL != "" {
		seed = append(seed, c.FrontendURL)
	}
	return append(seed, c.ExtensionOrigins...)
}

// AIConfig returns the provider factory settings.
func (c *Config) AIConfig() map[string]string {
	return map[string]string{
		"api_key":         c.OpenAIKey,
		"base_url":        c.AIBaseURL,
		"model":           c.AIModel,
		"embedding_model": c.AIEmbeddingModel,
	}
}

// CompanionConfig holds the device companion configuration.
type CompanionConfig struct {
	APIURL        string
	DataDir       string
	ListenAddr    string
	SweepInterval time.Duration
	Debug         bool
}

// DefaultListenAddr is where the companion daemon serves its message channel.
const DefaultListenAddr = "127.0.0.1:7420"

// LoadCompanion loads the companion configuration from environment variables.
func LoadCompanion() (*CompanionConfig, error) {
	dataDir := getEnv("MENTRA_DATA_DIR", "")
	if dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		dataDir = filepath.Join(base, "mentra")
	}

	cfg := &CompanionConfig{
		APIURL:        strings.TrimRight(getEnv("MENTRA_API_URL", "http://localhost:8080/api"), "/"),
		DataDir:       dataDir,
		ListenAddr:    getEnv("MENTRA_LISTEN_ADDR", DefaultListenAddr),
		SweepInterval: getEnvDuration("MENTRA_SWEEP_INTERVAL", time.Hour),
		Debug:         getEnvBool("MENTRA_DEBUG", false),
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("MENTRA_SWEEP_INTERVAL must be positive")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
