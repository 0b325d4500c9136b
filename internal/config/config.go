package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Logging   LoggingConfig
	Conflict  ConflictConfig
	Registry  RegistryConfig
	Presence  PresenceConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// URL is the CouchDB endpoint with credentials.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", d.User, d.Password, d.Host, d.Port)
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type WebSocketConfig struct {
	MaxMessageSize   int64
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	MaxConnPerEditor int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Enabled           bool
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
}

type ConflictConfig struct {
	TTL        time.Duration
	Store      string
	SQLitePath string
}

type RegistryConfig struct {
	Path                 string
	TrackedDocumentTypes []string
}

type PresenceConfig struct {
	StaleAfter      time.Duration
	PollInterval    time.Duration
	SaveGuardWindow time.Duration
}

const (
	StoreCouch  = "couch"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := getEnvAsDuration("JWT_EXPIRATION", "15m")
	if err != nil {
		return nil, err
	}
	conflictTTL, err := getEnvAsDuration("CONFLICT_TTL", "168h")
	if err != nil {
		return nil, err
	}
	staleAfter, err := getEnvAsDuration("PRESENCE_STALE_AFTER", "60s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := getEnvAsDuration("PRESENCE_POLL_INTERVAL", "15s")
	if err != nil {
		return nil, err
	}
	guardWindow, err := getEnvAsDuration("SAVE_GUARD_WINDOW", "10s")
	if err != nil {
		return nil, err
	}

	store := strings.ToLower(getEnv("CONFLICT_STORE", StoreCouch))
	switch store {
	case StoreCouch, StoreSQLite, StoreMemory:
	default:
		return nil, fmt.Errorf("invalid CONFLICT_STORE %q", store)
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "fabrica"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Expiration: jwtExp,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize:   int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 1048576)),
			WriteWait:        10 * time.Second,
			PongWait:         60 * time.Second,
			PingPeriod:       54 * time.Second,
			MaxConnPerEditor: getEnvAsInt("WS_MAX_CONN_PER_EDITOR", 5),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 60),
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Conflict: ConflictConfig{
			TTL:        conflictTTL,
			Store:      store,
			SQLitePath: getEnv("CONFLICT_SQLITE_PATH", "conflicts.db"),
		},
		Registry: RegistryConfig{
			Path:                 getEnv("FIELD_REGISTRY_PATH", ""),
			TrackedDocumentTypes: getEnvAsList("TRACKED_DOCUMENT_TYPES", "post,page"),
		},
		Presence: PresenceConfig{
			StaleAfter:      staleAfter,
			PollInterval:    pollInterval,
			SaveGuardWindow: guardWindow,
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
