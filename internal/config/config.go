package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config — все параметры сервиса синхронизации.
type Config struct {
	Environment string
	DBDSN       string

	// --- Внешние сервисы ---

	RUZAPIURL     string
	EruditeAPIURL string
	EruditeAPIKey string
	GCalAPIURL    string
	GCalToken     string

	// --- Параметры синхронизации ---

	// SyncPeriodDays — окно выборки занятий (дней вперёд от сегодня)
	SyncPeriodDays int
	// SyncInterval — период фонового запуска батча
	SyncInterval time.Duration
	// Buildings — идентификаторы зданий, комнаты которых синхронизируются
	Buildings []string

	// --- Потолки конкурентности по сервисам ---

	RUZMaxConcurrency     int64
	EruditeMaxConcurrency int64
	GCalMaxConcurrency    int64

	// --- HTTP и кэш ---

	HTTPTimeout time.Duration
	CacheSize   int
	CacheTTL    time.Duration

	// --- Прочее ---

	MigrationsPath string
	TelegramToken  string
	TelegramChatID int64
}

// Load загружает конфигурацию из .env и переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы.
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Environment:   getEnvDefault("ENV", "development"),
		DBDSN:         os.Getenv("DB_DSN"),
		RUZAPIURL:     getEnvDefault("RUZ_API_URL", "http://92.242.58.221/ruzservice.svc"),
		EruditeAPIURL: getEnvDefault("ERUDITE_API_URL", "https://nvr.miem.hse.ru/api/erudite"),
		EruditeAPIKey: os.Getenv("ERUDITE_API_KEY"),
		GCalAPIURL:    getEnvDefault("GCAL_API_URL", "https://www.googleapis.com/calendar/v3"),
		GCalToken:     os.Getenv("GCAL_TOKEN"),

		MigrationsPath: getEnvDefault("MIGRATIONS_PATH", "migrations"),
		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.EruditeAPIKey == "" {
		return nil, fmt.Errorf("ERUDITE_API_KEY is required but not set")
	}

	var err error
	if cfg.SyncPeriodDays, err = getEnvInt("SYNC_PERIOD_DAYS", 1); err != nil {
		return nil, fmt.Errorf("SYNC_PERIOD_DAYS: %w", err)
	}
	if cfg.SyncInterval, err = getEnvDuration("SYNC_INTERVAL", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("SYNC_INTERVAL: %w", err)
	}
	cfg.Buildings = splitCSV(getEnvDefault("BUILDINGS", "92"))

	if cfg.RUZMaxConcurrency, err = getEnvInt64("RUZ_MAX_CONCURRENCY", 1); err != nil {
		return nil, fmt.Errorf("RUZ_MAX_CONCURRENCY: %w", err)
	}
	if cfg.EruditeMaxConcurrency, err = getEnvInt64("ERUDITE_MAX_CONCURRENCY", 10); err != nil {
		return nil, fmt.Errorf("ERUDITE_MAX_CONCURRENCY: %w", err)
	}
	if cfg.GCalMaxConcurrency, err = getEnvInt64("GCAL_MAX_CONCURRENCY", 5); err != nil {
		return nil, fmt.Errorf("GCAL_MAX_CONCURRENCY: %w", err)
	}

	if cfg.HTTPTimeout, err = getEnvDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("HTTP_TIMEOUT: %w", err)
	}
	if cfg.CacheSize, err = getEnvInt("CACHE_SIZE", 256); err != nil {
		return nil, fmt.Errorf("CACHE_SIZE: %w", err)
	}
	if cfg.CacheTTL, err = getEnvDuration("CACHE_TTL", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("CACHE_TTL: %w", err)
	}

	if cfg.TelegramChatID, err = getEnvInt64("TELEGRAM_CHAT_ID", 0); err != nil {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
	}

	return cfg, nil
}

// --- Вспомогательные функции ---

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use Go format: 30s, 15m, 1h)", val)
	}
	return d, nil
}

func splitCSV(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
