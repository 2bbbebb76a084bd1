package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Capture modes select the camera implementation.
const (
	CaptureModeMock   = "mock"
	CaptureModeDenied = "denied"
	CaptureModeNone   = "none"
)

// Config contains all runtime settings for the proctoring service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel     string
	LogFormat    string
	OTLPEndpoint string

	DatabaseURL  string
	SeedDemoData bool

	SeatInactivityTimeout time.Duration
	AttemptIdleTimeout    time.Duration
	JanitorInterval       time.Duration

	DetectionInterval       time.Duration
	ElapsedInterval         time.Duration
	HeadMovementProbability float64
	DeviceProbability       float64
	DetectionSeed           uint64

	MovementAdvisoryThreshold int
	MovementAdvisoryTTL       time.Duration
	DeviceAdvisoryTTL         time.Duration

	CaptureMode string

	MatchRate        float64
	DenialResetDelay time.Duration
	AuthRateLimit    float64
	AuthRateBurst    int
}

// Load reads a .env file if present, then environment variables, and applies
// defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:                  envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:          envOrDefault("APP_METRICS_NAMESPACE", "proctor"),
		LogLevel:                  envOrDefault("LOG_LEVEL", "info"),
		LogFormat:                 envOrDefault("LOG_FORMAT", "text"),
		OTLPEndpoint:              stringsTrimSpace("OTEL_EXPORTER_OTLP_ENDPOINT"),
		DatabaseURL:               stringsTrimSpace("DATABASE_URL"),
		CaptureMode:               strings.ToLower(envOrDefault("CAPTURE_MODE", CaptureModeMock)),
		ShutdownTimeout:           15 * time.Second,
		SeatInactivityTimeout:     30 * time.Minute,
		AttemptIdleTimeout:        10 * time.Minute,
		JanitorInterval:           30 * time.Second,
		DetectionInterval:         2 * time.Second,
		ElapsedInterval:           time.Second,
		HeadMovementProbability:   0.3,
		DeviceProbability:         0.1,
		MovementAdvisoryThreshold: 5,
		MovementAdvisoryTTL:       3 * time.Second,
		DeviceAdvisoryTTL:         5 * time.Second,
		MatchRate:                 0.9,
		DenialResetDelay:          3 * time.Second,
		AuthRateLimit:             2,
		AuthRateBurst:             5,
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"APP_SEAT_INACTIVITY_TIMEOUT", &cfg.SeatInactivityTimeout},
		{"AUTH_ATTEMPT_IDLE_TIMEOUT", &cfg.AttemptIdleTimeout},
		{"APP_JANITOR_INTERVAL", &cfg.JanitorInterval},
		{"DETECTION_INTERVAL", &cfg.DetectionInterval},
		{"ELAPSED_INTERVAL", &cfg.ElapsedInterval},
		{"ADVISORY_MOVEMENT_TTL", &cfg.MovementAdvisoryTTL},
		{"ADVISORY_DEVICE_TTL", &cfg.DeviceAdvisoryTTL},
		{"AUTH_DENIAL_RESET_DELAY", &cfg.DenialResetDelay},
	}
	for _, d := range durations {
		if *d.dst, err = durationFromEnv(d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"DETECTION_HEAD_MOVEMENT_PROBABILITY", &cfg.HeadMovementProbability},
		{"DETECTION_DEVICE_PROBABILITY", &cfg.DeviceProbability},
		{"AUTH_MATCH_RATE", &cfg.MatchRate},
		{"AUTH_RATE_LIMIT_PER_SEC", &cfg.AuthRateLimit},
	}
	for _, f := range floats {
		if *f.dst, err = floatFromEnv(f.key, *f.dst); err != nil {
			return Config{}, err
		}
	}

	cfg.MovementAdvisoryThreshold, err = intFromEnv("ADVISORY_MOVEMENT_THRESHOLD", cfg.MovementAdvisoryThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.AuthRateBurst, err = intFromEnv("AUTH_RATE_BURST", cfg.AuthRateBurst)
	if err != nil {
		return Config{}, err
	}
	cfg.DetectionSeed, err = uint64FromEnv("DETECTION_SEED", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SeedDemoData, err = boolFromEnv("SEED_DEMO_DATA", cfg.SeedDemoData)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DetectionInterval < 10*time.Millisecond {
		return fmt.Errorf("DETECTION_INTERVAL must be at least 10ms")
	}
	if c.ElapsedInterval < 10*time.Millisecond {
		return fmt.Errorf("ELAPSED_INTERVAL must be at least 10ms")
	}
	if c.SeatInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SEAT_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if !isProbability(c.HeadMovementProbability) {
		return fmt.Errorf("DETECTION_HEAD_MOVEMENT_PROBABILITY must be within [0,1]")
	}
	if !isProbability(c.DeviceProbability) {
		return fmt.Errorf("DETECTION_DEVICE_PROBABILITY must be within [0,1]")
	}
	if !isProbability(c.MatchRate) {
		return fmt.Errorf("AUTH_MATCH_RATE must be within [0,1]")
	}
	if c.MovementAdvisoryThreshold < 0 {
		return fmt.Errorf("ADVISORY_MOVEMENT_THRESHOLD must be >= 0")
	}
	if c.AuthRateLimit <= 0 || c.AuthRateBurst <= 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT_PER_SEC and AUTH_RATE_BURST must be positive")
	}
	switch c.CaptureMode {
	case CaptureModeMock, CaptureModeDenied, CaptureModeNone:
	default:
		return fmt.Errorf("CAPTURE_MODE must be one of mock, denied, none")
	}
	return nil
}

func isProbability(p float64) bool { return p >= 0 && p <= 1 }

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func uint64FromEnv(key string, fallback uint64) (uint64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
