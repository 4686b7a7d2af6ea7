// Package config loads the matchmaker's environment-driven configuration
// once at boot into a typed struct, instead of scattering os.Getenv calls
// across the codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-tunable value the core needs.
type Config struct {
	ListenAddr string

	PostgresDSN string
	RedisAddr   string
	RedisPassword string
	RedisDB     int

	JWTSecret string

	AllowedOrigins []string

	TelegramBotToken string

	SearchExpiry           time.Duration
	DisconnectCancelGrace  time.Duration
	RoomMemoryRetention    time.Duration
	ReconnectWindow        time.Duration
	StatsDebounce          time.Duration
	StatsCacheTTL          time.Duration
	HeartbeatInterval      time.Duration
	HeartbeatTimeout       time.Duration
	MaxMessageBytes        int64

	Reputation ReputationConfig
}

// ReputationConfig holds the abuse-handling tunables, adapted from the
// teacher's complaint/config package into the matchmaker's vocabulary.
type ReputationConfig struct {
	InitialScore int
	MaxScore     int
	MinScore     int

	BanThresholdScore     int
	BanThresholdFrequency int
	BanFrequencyWindow    time.Duration
	BanLevel1Duration     time.Duration
	BanLevel2Duration     time.Duration
	BanLevel3Duration     time.Duration

	ReportWeights map[string]int
}

// DefaultReputationConfig mirrors the teacher's complaint_config.go
// thresholds, renamed from complaint/ban vocabulary to report/reputation.
func DefaultReputationConfig() ReputationConfig {
	return ReputationConfig{
		InitialScore:          1000,
		MaxScore:               1000,
		MinScore:               0,
		BanThresholdScore:      500,
		BanThresholdFrequency:  5,
		BanFrequencyWindow:     24 * time.Hour,
		BanLevel1Duration:      30 * time.Minute,
		BanLevel2Duration:      6 * time.Hour,
		BanLevel3Duration:      24 * time.Hour,
		ReportWeights: map[string]int{
			"spam":      5,
			"abuse":     50,
			"illegal":   250,
		},
	}
}

// Load reads a .env file (if present, warning otherwise like the teacher's
// own bootstrap) and populates Config from the environment, falling back to
// the spec's stated defaults for every timing knob.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: no .env file loaded: %v\n", err)
	}

	cfg := &Config{
		ListenAddr:            getEnv("LISTEN_ADDR", ":8080"),
		PostgresDSN:           getEnv("POSTGRES_DSN", "host=localhost user=user password=password dbname=anonchat port=5432 sslmode=disable"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		AllowedOrigins:        splitCSV(getEnv("ALLOWED_ORIGINS", "*")),
		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		SearchExpiry:          getEnvDuration("SEARCH_EXPIRY", 30*time.Minute),
		DisconnectCancelGrace: getEnvDuration("DISCONNECT_CANCEL_GRACE", 10*time.Second),
		RoomMemoryRetention:   getEnvDuration("ROOM_MEMORY_RETENTION", 2*time.Minute),
		ReconnectWindow:       getEnvDuration("RECONNECT_WINDOW", 2*time.Minute),
		StatsDebounce:         getEnvDuration("STATS_DEBOUNCE", 2*time.Second),
		StatsCacheTTL:         getEnvDuration("STATS_CACHE_TTL", 5*time.Second),
		HeartbeatInterval:     getEnvDuration("HEARTBEAT_INTERVAL", 25*time.Second),
		HeartbeatTimeout:      getEnvDuration("HEARTBEAT_TIMEOUT", 20*time.Second),
		MaxMessageBytes:       int64(getEnvInt("MAX_MESSAGE_BYTES", 1<<20)),
		Reputation:            DefaultReputationConfig(),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
