package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type UpstreamCfg struct {
	OverpassURL  string
	NominatimURL string
	OpenMeteoURL string
	UserAgent    string
	Timeout      time.Duration
	// requests per second; 0 means unlimited
	OverpassRPS  float64
	NominatimRPS float64
}

type SessionCfg struct {
	Max   int
	Store string // "memory" or "redis"
	TTL   time.Duration
}

type RedisCfg struct {
	Addr        string
	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

type EventsCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	Queue   int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr           string
	CORSOrigins    []string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	Upstream       UpstreamCfg
	MaxBBoxKm      float64
	NominatimBatch int
	Language       string
	Sessions       SessionCfg
	Redis          RedisCfg
	Events         EventsCfg
	WeatherYears   int
	Metrics        MetricsCfg
	Version        string
}

func FromEnv() Config {
	batch := getint("NOMINATIM_BATCH", 50)
	if batch < 1 || batch > 50 {
		batch = 50
	}
	store := strings.ToLower(getenv("SESSION_STORE", "memory"))
	if store != "redis" {
		store = "memory"
	}

	return Config{
		Addr:        getenv("ADDR", ":8090"),
		CORSOrigins: List(getenv("CORS_ORIGINS", "*")),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogConsole:  getbool("LOG_CONSOLE", false),
		LogSampleN:  getint("LOG_SAMPLE_N", 0),
		Upstream: UpstreamCfg{
			OverpassURL:  getenv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
			NominatimURL: getenv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
			OpenMeteoURL: getenv("OPENMETEO_URL", "https://archive-api.open-meteo.com/v1/archive"),
			UserAgent:    getenv("USER_AGENT", "geo-resolver/dev"),
			Timeout:      getduration("UPSTREAM_TIMEOUT", 200*time.Second),
			OverpassRPS:  getfloat("OVERPASS_RPS", 0),
			NominatimRPS: getfloat("NOMINATIM_RPS", 1),
		},
		MaxBBoxKm:      getfloat("MAX_BBOX_KM", 2000),
		NominatimBatch: batch,
		Language:       getenv("NOMINATIM_LANGUAGE", "en"),
		Sessions: SessionCfg{
			Max:   getint("SESSION_MAX", 256),
			Store: store,
			TTL:   getduration("SESSION_TTL", time.Hour),
		},
		Redis: RedisCfg{
			Addr:        getenv("REDIS_ADDR", "localhost:6379"),
			PoolSize:    getint("REDIS_POOL_SIZE", 16),
			DialTimeout: getduration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout: getduration("REDIS_READ_TIMEOUT", time.Second),
		},
		Events: EventsCfg{
			Enabled: getbool("REGION_EVENTS_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "regions-discovered"),
			Queue:   getint("REGION_EVENTS_QUEUE", 1024),
		},
		WeatherYears: getint("WEATHER_YEARS", 3),
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
		Version: getenv("APP_VERSION", "dev"),
	}
}

// LoadDotEnv reads KEY=VALUE pairs from the given files (".env" when none)
// without overriding variables already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Brokers splits a comma separated broker list, dropping blanks.
func Brokers(s string) []string { return List(s) }

// List splits a comma separated list, dropping blanks.
func List(s string) []string {
	var out []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
