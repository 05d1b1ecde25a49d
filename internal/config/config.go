package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr         string
	GeminiAPIKey string

	LogLevel string

	PreferIPv4 bool

	GeminiBaseURL    string
	GeminiAPIVersion string
	ImageModel       string
	RatePerMinute    int

	HTTPTimeout    time.Duration
	RequestTimeout time.Duration
	MaxUploadBytes int64

	SessionTTL time.Duration

	HistoryDriver   string // "sqlite" | "file"
	HistoryPath     string
	HistoryKey      string
	HistoryMaxItems int
}

func Load() (Config, error) {
	cfg := Config{
		Addr:             strings.TrimSpace(getEnv("WEB_ADDR", ":8080")),
		LogLevel:         strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		PreferIPv4:       getEnvBool("PREFER_IPV4", true),
		GeminiBaseURL:    strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion: strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		ImageModel:       strings.TrimSpace(getEnv("IMAGE_MODEL", "gemini-2.5-flash-image")),
		RatePerMinute:    getEnvInt("GEMINI_RATE_PER_MINUTE", 0),
		HTTPTimeout:      time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		RequestTimeout:   time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 240)) * time.Second,
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_MB", 25)) << 20,
		SessionTTL:       time.Duration(getEnvInt("SESSION_TTL_MINUTES", 30)) * time.Minute,
		HistoryDriver:    strings.ToLower(strings.TrimSpace(getEnv("HISTORY_DRIVER", "sqlite"))),
		HistoryPath:      strings.TrimSpace(getEnv("HISTORY_PATH", "data/render-studio.db")),
		HistoryKey:       strings.TrimSpace(getEnv("HISTORY_KEY", "image-editor")),
		HistoryMaxItems:  getEnvInt("HISTORY_MAX_ITEMS", 200),
	}

	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}

	switch cfg.HistoryDriver {
	case "sqlite", "file":
	default:
		return Config{}, fmt.Errorf("HISTORY_DRIVER must be sqlite or file, got %q", cfg.HistoryDriver)
	}

	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 240 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.HistoryMaxItems < 1 {
		cfg.HistoryMaxItems = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
