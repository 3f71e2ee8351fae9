package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the terminal needs to run, loaded once in main.
type Config struct {
	// ListenAddr is the address of the local HTTP API the UI talks to.
	ListenAddr string

	// BackendBaseURL is the base URL of the business backend
	// (product lookup, sale submission, voice-command interpretation).
	BackendBaseURL string

	// UseFakeBackend switches to the in-memory backend for offline
	// development. No HTTP calls leave the process in that mode.
	UseFakeBackend bool

	// DecoderMode selects the barcode decoder configuration:
	// "push" (detections arrive over the local HTTP API) or "sim"
	// (scripted detections for development).
	DecoderMode string

	RedisAddr      string
	LookupCacheTTL time.Duration

	SalesLogPath string

	// Device is the terminal tag sent with every sale submission.
	Device string

	VoiceEnabled bool

	DebounceWindow    time.Duration
	DebounceThreshold int
	ScanCooldown      time.Duration
	SettleDelay       time.Duration

	LookupTimeout time.Duration
}

// Load reads the .env file (if present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using system environment variables")
	}

	return &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		BackendBaseURL:    getEnv("BACKEND_BASE_URL", "http://localhost:8000/sales/api"),
		UseFakeBackend:    getBool("USE_FAKE_BACKEND", false),
		DecoderMode:       getEnv("DECODER_MODE", "push"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		LookupCacheTTL:    getDuration("LOOKUP_CACHE_TTL", 30*time.Second),
		SalesLogPath:      getEnv("SALES_LOG_PATH", "./data/sales.db"),
		Device:            getEnv("DEVICE_TAG", defaultDevice()),
		VoiceEnabled:      getBool("VOICE_ENABLED", true),
		DebounceWindow:    getDuration("DEBOUNCE_WINDOW", 300*time.Millisecond),
		DebounceThreshold: getInt("DEBOUNCE_THRESHOLD", 2),
		ScanCooldown:      getDuration("SCAN_COOLDOWN", 500*time.Millisecond),
		SettleDelay:       getDuration("SETTLE_DELAY", 1500*time.Millisecond),
		LookupTimeout:     getDuration("LOOKUP_TIMEOUT", 5*time.Second),
	}
}

func defaultDevice() string {
	host, err := os.Hostname()
	if err != nil {
		return "pos-terminal"
	}
	return "pos-terminal:" + host
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return d
}
