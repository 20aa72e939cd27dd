package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Operational HTTP surface (health, metrics, executor snapshot)
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Notification listener
	Channels     []string
	PollInterval time.Duration

	// Task executor
	BakeWorkers       int
	TaskQueueCapacity int
	// How many finished task results stay queryable before the oldest
	// are evicted.
	ResultHistoryLimit int

	// Bake rate limiting: maximum build attempts per second across all
	// workers. Protects the archive service from a startup-scan stampede.
	BakeRateLimit int

	// External collaborators
	ArchiveBaseURL  string
	BakerBaseURL    string
	ProviderTimeout time.Duration

	// Maximum length of the persisted state_message excerpt.
	StateMessageLimit int
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		Channels:     getList("LISTEN_CHANNELS", []string{"post_publication", "post_publication_start_up"}),
		PollInterval: getDuration("POLL_INTERVAL", 5*time.Second),

		BakeWorkers:        getInt("BAKE_WORKERS", 4),
		TaskQueueCapacity:  getInt("TASK_QUEUE_CAPACITY", 1000),
		ResultHistoryLimit: getInt("RESULT_HISTORY_LIMIT", 10000),

		BakeRateLimit: getInt("BAKE_RATE_LIMIT", 10),

		ArchiveBaseURL:  getEnv("ARCHIVE_BASE_URL", "http://localhost:6543"),
		BakerBaseURL:    getEnv("BAKER_BASE_URL", "http://localhost:6544"),
		ProviderTimeout: getDuration("PROVIDER_TIMEOUT", 10*time.Minute),

		StateMessageLimit: getInt("STATE_MESSAGE_LIMIT", 256),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
