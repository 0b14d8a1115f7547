// Package config loads runtime settings from the environment and the location catalog
// from disk.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"restockbot/backend/internal/models"
)

// Config holds process-wide settings. It is read once at startup.
type Config struct {
	// Store
	StoreBackend   string
	StorePath      string
	StoreBackupDir string
	DatabaseDSN    string

	// Sessions
	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Telegram
	TelegramToken   string
	ModeratorChatID int64
	AlertChatID     int64

	// HTTP
	HTTPAddr       string
	AdminJWTSecret string

	// Scheduling
	RolloverWeekday time.Weekday
	RolloverHour    int
	Timezone        *time.Location

	SubmitterCooldown time.Duration
	LocationsFile     string

	SentryDSN string
	LogLevel  string
}

// Load reads a local .env when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoreBackend:      getEnv("STORE_BACKEND", "file"),
		StorePath:         getEnv("STORE_PATH", "data/restocks.json"),
		StoreBackupDir:    getEnv("STORE_BACKUP_DIR", "data/backups"),
		DatabaseDSN:       getEnv("DATABASE_DSN", ""),
		SessionBackend:    getEnv("SESSION_BACKEND", "memory"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		TelegramToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		ModeratorChatID:   getEnvInt64("MODERATOR_CHAT_ID", 0),
		AlertChatID:       getEnvInt64("ALERT_CHAT_ID", 0),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		AdminJWTSecret:    getEnv("ADMIN_JWT_SECRET", ""),
		RolloverHour:      getEnvInt("ROLLOVER_HOUR", DefaultRolloverHour),
		SubmitterCooldown: getEnvDuration("SUBMITTER_COOLDOWN", DefaultSubmitterCooldown),
		LocationsFile:     getEnv("LOCATIONS_FILE", "data/locations.json"),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	weekday, err := parseWeekday(getEnv("ROLLOVER_WEEKDAY", DefaultRolloverWeekday.String()))
	if err != nil {
		return nil, err
	}
	cfg.RolloverWeekday = weekday

	if cfg.RolloverHour < 0 || cfg.RolloverHour > 22 {
		return nil, fmt.Errorf("ROLLOVER_HOUR must be between 0 and 22, got %d", cfg.RolloverHour)
	}

	tz, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Timezone = tz

	switch cfg.StoreBackend {
	case "file":
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("DATABASE_DSN is required when STORE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.SessionBackend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}

	return cfg, nil
}

// LoadLocations reads the monitored-location catalog.
func LoadLocations(path string) (*models.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations file: %w", err)
	}
	var catalog models.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse locations file %s: %w", path, err)
	}
	seen := make(map[string]bool, len(catalog.Locations))
	for i, l := range catalog.Locations {
		if l.Key == "" {
			return nil, fmt.Errorf("location #%d has an empty key", i)
		}
		if seen[l.Key] {
			return nil, fmt.Errorf("duplicate location key %q", l.Key)
		}
		seen[l.Key] = true
	}
	return &catalog, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) || strings.EqualFold(d.String()[:3], s) {
			return d, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("invalid ROLLOVER_WEEKDAY %q", s)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvInt64(key string, defaultValue int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
