// Package config provides environment configuration for the Slack bot server.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends for the channel configuration blob.
const (
	StoreMemory = "memory"
	StoreNATS   = "nats"
	StoreRedis  = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Slack settings
	SlackBotToken      string
	SlackSigningSecret string
	SlackAdminIDs      []string
	SlackAPIURL        string
	SlackTimeout       time.Duration

	// Dify settings
	DifyAPIURL  string
	DifyAppKeys map[string]string
	DifyTimeout time.Duration

	// Event processing
	WorkerPoolSize int
	EventTimeout   time.Duration

	// Config store
	ConfigStore string
	ConfigKey   string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string
	NATSKVBucket string

	// Redis settings
	RedisURL string

	// Admin API
	AdminJWTSecret string

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),

		// Slack
		SlackBotToken:      getEnv("SLACK_BOT_TOKEN", ""),
		SlackSigningSecret: getEnv("SLACK_SIGNING_SECRET", ""),
		SlackAdminIDs:      getListEnv("SLACK_ADMIN_IDS"),
		SlackAPIURL:        getEnv("SLACK_API_URL", "https://slack.com/api/"),
		SlackTimeout:       getDurationEnv("SLACK_TIMEOUT", 10*time.Second),

		// Dify
		DifyAPIURL:  getEnv("DIFY_API_URL", "https://api.dify.ai/v1"),
		DifyAppKeys: getMapEnv("DIFY_APP_KEYS"),
		DifyTimeout: getDurationEnv("DIFY_TIMEOUT", 60*time.Second),

		// Events
		WorkerPoolSize: getIntEnv("WORKER_POOL_SIZE", 3),
		EventTimeout:   getDurationEnv("EVENT_TIMEOUT", 2*time.Minute),

		// Config store
		ConfigStore: strings.ToLower(getEnv("CONFIG_STORE", StoreMemory)),
		ConfigKey:   getEnv("CONFIG_KEY", "config"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),
		NATSKVBucket: getEnv("NATS_KV_BUCKET", "slackbot"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Admin API
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.SlackBotToken == "" {
		errs = append(errs, errors.New("SLACK_BOT_TOKEN is required"))
	}
	if c.SlackSigningSecret == "" {
		errs = append(errs, errors.New("SLACK_SIGNING_SECRET is required"))
	}
	switch c.ConfigStore {
	case StoreMemory, StoreNATS, StoreRedis:
	default:
		errs = append(errs, errors.New("CONFIG_STORE must be one of memory, nats, redis"))
	}
	if c.WorkerPoolSize < 1 {
		errs = append(errs, errors.New("WORKER_POOL_SIZE must be at least 1"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, dropping blanks.
func getListEnv(key string) []string {
	var out []string
	for _, entry := range strings.Split(os.Getenv(key), ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// getMapEnv parses "k1=v1,k2=v2". Entries without '=' are ignored.
func getMapEnv(key string) map[string]string {
	out := make(map[string]string)
	for _, entry := range getListEnv(key) {
		k, v, ok := strings.Cut(entry, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
