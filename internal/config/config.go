package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	// Server
	HTTPAddr       string
	AllowedOrigins []string
	SiteURL        string

	// Stores
	DatabaseURL string
	RedisAddr   string
	RedisPass   string

	// Auth provider
	Provider ProviderConfig

	// Tabs
	HeartbeatInterval time.Duration
	TabIdleTTL        time.Duration
	TabStorageTTL     time.Duration
	SyncChannel       string

	// Local login throttling
	LoginMaxAttempts int
	LoginLockout     time.Duration
}

// ProviderConfig points at the hosted auth provider. URL and AnonKey are the
// only two values the service cannot start without.
type ProviderConfig struct {
	URL       string
	AnonKey   string
	JWTSecret string
	Timeout   time.Duration
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		SiteURL:        strings.TrimRight(getEnv("SITE_URL", "http://localhost:5173"), "/"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		RedisPass:   getEnv("REDIS_PASS", ""),

		Provider: ProviderConfig{
			URL:       strings.TrimRight(getEnv("PROVIDER_URL", ""), "/"),
			AnonKey:   getEnv("PROVIDER_ANON_KEY", ""),
			JWTSecret: getEnv("PROVIDER_JWT_SECRET", ""),
			Timeout:   getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),
		},

		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 5*time.Minute),
		TabIdleTTL:        getEnvDuration("TAB_IDLE_TTL", 30*time.Minute),
		TabStorageTTL:     getEnvDuration("TAB_STORAGE_TTL", 30*24*time.Hour),
		SyncChannel:       getEnv("SYNC_CHANNEL", "auth-sync"),

		LoginMaxAttempts: getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockout:     getEnvDuration("LOGIN_LOCKOUT", 15*time.Minute),
	}
}

// Validate reports missing required settings.
func (c AppConfig) Validate() error {
	var errs []error
	if c.Provider.URL == "" {
		errs = append(errs, errors.New("PROVIDER_URL is required"))
	}
	if c.Provider.AnonKey == "" {
		errs = append(errs, errors.New("PROVIDER_ANON_KEY is required"))
	}
	if c.LoginMaxAttempts <= 0 {
		errs = append(errs, errors.New("LOGIN_MAX_ATTEMPTS must be positive"))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// SecureCookies reports whether the browser cookie needs the Secure flag.
func (c AppConfig) SecureCookies() bool {
	return strings.HasPrefix(c.SiteURL, "https://")
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
