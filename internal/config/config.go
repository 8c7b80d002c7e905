// Package config reads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything tunable from outside the binary. The API key can
// come from here or from the persisted snapshot; the environment wins when
// both are set.
type Config struct {
	KeepaAPIKey string
	KeepaDomain int

	DataDir    string
	HistoryDSN string

	ListenAddr string

	RequestsPerMinute int
	RequestTimeout    time.Duration

	CollectSchedule string
}

// Load reads the environment. A .env file in the working directory is
// merged in first when present; real environment variables take priority.
func Load() Config {
	_ = godotenv.Load()

	dataDir := getenv("RESALESCOUT_DATA_DIR", ".resalescout")
	return Config{
		KeepaAPIKey:       os.Getenv("KEEPA_API_KEY"),
		KeepaDomain:       getenvInt("KEEPA_DOMAIN", 5),
		DataDir:           dataDir,
		HistoryDSN:        getenv("RESALESCOUT_HISTORY_DB", dataDir+"/history.db"),
		ListenAddr:        getenv("RESALESCOUT_LISTEN", "127.0.0.1:8788"),
		RequestsPerMinute: getenvInt("RESALESCOUT_RPM", 20),
		RequestTimeout:    getenvDuration("RESALESCOUT_TIMEOUT", 30*time.Second),
		CollectSchedule:   getenv("RESALESCOUT_SCHEDULE", ""),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
