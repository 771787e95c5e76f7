package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gamification-engine/utils"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DBDriver       string // postgres | sqlite
	DatabaseURL    string
	SQLitePath     string
	ServiceToken   string
	SyncServiceURL string
	AuthServiceURL string
	AllowedOrigins []string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	StreakLocation           *time.Location
	ConversionRate           int64
	CurrencyHistoryRetention int
	MaxLevel                 int
	ActivityPollInterval     time.Duration
	TeamSyncInterval         time.Duration
	RankingRecomputeInterval time.Duration
	ChallengeStatusInterval  time.Duration
	R2Enabled                bool
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		utils.LogWarn("⚠️  No .env file found, reading environment variables directly")
	}

	tzName := getenv("STREAK_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		utils.LogWarn("⚠️  Unknown STREAK_TIMEZONE %q, falling back to UTC", tzName)
		loc = time.UTC
	}

	return Config{
		Port:           getenv("PORT", "5200"),
		DBDriver:       strings.ToLower(getenv("DB_DRIVER", "postgres")),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		SQLitePath:     getenv("SQLITE_PATH", "./data/gamification.db"),
		ServiceToken:   getenv("GAMIFICATION_SERVICE_TOKEN", ""),
		SyncServiceURL: getenv("SYNC_SERVICE_URL", ""),
		AuthServiceURL: getenv("AUTH_SERVICE_URL", ""),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "http://localhost:3000")),
		RedisAddr:      getenv("REDIS_ADDR", ""),
		RedisPassword:  getenv("REDIS_PASSWORD", ""),
		RedisDB:        getenvInt("REDIS_DB", 0),

		StreakLocation:           loc,
		ConversionRate:           int64(getenvInt("CONVERSION_RATE", 10)),
		CurrencyHistoryRetention: getenvInt("CURRENCY_HISTORY_RETENTION", 1000),
		MaxLevel:                 getenvInt("MAX_LEVEL", 100),
		ActivityPollInterval:     getenvDuration("ACTIVITY_POLL_INTERVAL", 10*time.Second),
		TeamSyncInterval:         getenvDuration("TEAM_SYNC_INTERVAL", time.Minute),
		RankingRecomputeInterval: getenvDuration("RANKING_RECOMPUTE_INTERVAL", 15*time.Minute),
		ChallengeStatusInterval:  getenvDuration("CHALLENGE_STATUS_INTERVAL", time.Minute),
		R2Enabled:                getenvBool("R2_ENABLED", os.Getenv("R2_BUCKET_NAME") != ""),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// splitList splits a comma-separated env value and trims each entry.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
