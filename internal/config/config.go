package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all producer settings, populated once at startup from
// environment variables and passed explicitly to every component.
type Config struct {
	// Storage. Exactly one of S3Bucket / LocalDataDir must be set.
	S3Bucket     string
	KMSKeyID     string
	StateKey     string
	LocalDataDir string

	// Source endpoints.
	SurfaceWeatherURL string
	HydrometricURL    string
	ClimateHourlyURL  string

	// Ingestion tuning.
	InitialLookback    time.Duration
	ClimateLookback    time.Duration
	FetchLimit         int
	FetchTimeout       time.Duration
	MinQAThreshold     float64
	MaxFutureDays      int
	IncrementalOverlap time.Duration

	// Optional Kafka delta publishing. Enabled when a topic is set.
	KafkaBrokers    []string
	KafkaDeltaTopic string

	// Runtime.
	RunInterval     time.Duration // 0 = single-shot
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// KafkaEnabled reports whether accepted features should also be published to
// a broker.
func (c *Config) KafkaEnabled() bool {
	return c.KafkaDeltaTopic != "" && len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Info("no .env file loaded", "reason", err)
	}

	initialLookbackMin, err := envInt("INITIAL_LOOKBACK_MIN", 60)
	if err != nil {
		return nil, err
	}
	climateLookbackDays, err := envInt("CLIMATE_HOURLY_LOOKBACK_DAYS", 7)
	if err != nil {
		return nil, err
	}
	fetchLimit, err := envInt("FETCH_LIMIT", 500)
	if err != nil {
		return nil, err
	}
	maxFutureDays, err := envInt("MAX_FUTURE_DAYS", 1)
	if err != nil {
		return nil, err
	}
	overlapMin, err := envInt("INCREMENTAL_OVERLAP_MIN", 15)
	if err != nil {
		return nil, err
	}
	minQA, err := envFloat("MIN_QA_THRESHOLD", 0)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := envDuration("FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	runInterval, err := envDuration("RUN_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		S3Bucket:     os.Getenv("S3_BUCKET_NAME"),
		KMSKeyID:     os.Getenv("KMS_KEY_ID"),
		StateKey:     envOrDefault("STATE_KEY", "data_state/state.json"),
		LocalDataDir: os.Getenv("LOCAL_DATA_DIR"),

		SurfaceWeatherURL: envOrDefault("API_URL_SWOB",
			"https://api.weather.gc.ca/collections/swob-realtime/items"),
		HydrometricURL: envOrDefault("API_URL_HYDROMETRIC",
			"https://api.weather.gc.ca/collections/hydrometric-realtime/items"),
		ClimateHourlyURL: envOrDefault("API_URL_CLIMATE_HOURLY",
			"https://api.weather.gc.ca/collections/climate-hourly/items"),

		InitialLookback:    time.Duration(initialLookbackMin) * time.Minute,
		ClimateLookback:    time.Duration(climateLookbackDays) * 24 * time.Hour,
		FetchLimit:         fetchLimit,
		FetchTimeout:       fetchTimeout,
		MinQAThreshold:     minQA,
		MaxFutureDays:      maxFutureDays,
		IncrementalOverlap: time.Duration(overlapMin) * time.Minute,

		KafkaBrokers:    parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaDeltaTopic: os.Getenv("KAFKA_DELTA_TOPIC"),

		RunInterval:     runInterval,
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.S3Bucket == "" && cfg.LocalDataDir == "" {
		return nil, errors.New("one of S3_BUCKET_NAME or LOCAL_DATA_DIR is required")
	}
	if cfg.S3Bucket != "" && cfg.LocalDataDir != "" {
		return nil, errors.New("S3_BUCKET_NAME and LOCAL_DATA_DIR are mutually exclusive")
	}
	if cfg.FetchLimit <= 0 {
		return nil, errors.New("FETCH_LIMIT must be positive")
	}
	if cfg.FetchTimeout <= 0 {
		return nil, errors.New("FETCH_TIMEOUT must be positive")
	}
	if cfg.MaxFutureDays < 0 {
		return nil, errors.New("MAX_FUTURE_DAYS must not be negative")
	}
	if cfg.IncrementalOverlap < 0 {
		return nil, errors.New("INCREMENTAL_OVERLAP_MIN must not be negative")
	}
	if cfg.KafkaDeltaTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_DELTA_TOPIC is set but KAFKA_BROKERS is not")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
