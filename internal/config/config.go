package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	CORSOrigin string

	// Object store
	StoreEndpoint  string
	StoreAccessKey string
	StoreSecretKey string
	StoreBucket    string
	StoreUseTLS    bool
	StoreMaxQPS    float64

	// External configuration files
	CategoriesFile string
	AccountsFile   string

	// Folder holding per-(category, annotator) progress hints
	ProgressFolder string

	FolderIndexTTL time.Duration

	// Redis - refresh token storage
	RedisURL string

	// Meilisearch - decision search index, optional
	MeiliURL       string
	MeiliMasterKey string

	DevLogging bool
}

func Load() Config {
	return Config{
		Addr:       getenv("API_ADDR", ":8790"),
		JWTSecret:  getenv("TRIPLET_JWT_SECRET", "triplet-dev-secret"),
		AccessTTL:  time.Duration(getenvInt("TRIPLET_ACCESS_TTL_SECONDS", 900)) * time.Second,
		RefreshTTL: time.Duration(getenvInt("TRIPLET_REFRESH_TTL_SECONDS", 2592000)) * time.Second,
		CORSOrigin: getenv("TRIPLET_CORS_ORIGIN", "*"),

		StoreEndpoint:  getenv("STORE_ENDPOINT", "localhost:9000"),
		StoreAccessKey: getenv("STORE_ACCESS_KEY", "triplet"),
		StoreSecretKey: getenv("STORE_SECRET_KEY", "triplet-dev-secret"),
		StoreBucket:    getenv("STORE_BUCKET", "triplet-filter"),
		StoreUseTLS:    getenv("STORE_USE_TLS", "") == "1",
		StoreMaxQPS:    getenvFloat("STORE_MAX_QPS", 4.0),

		CategoriesFile: getenv("TRIPLET_CATEGORIES_FILE", "./config/categories.yaml"),
		AccountsFile:   getenv("TRIPLET_ACCOUNTS_FILE", "./config/accounts.yaml"),

		ProgressFolder: getenv("TRIPLET_PROGRESS_FOLDER", "progress"),

		FolderIndexTTL: time.Duration(getenvInt("TRIPLET_FOLDER_INDEX_TTL_SECONDS", 3600)) * time.Second,

		RedisURL: getenv("REDIS_URL", "redis://localhost:6379/0"),

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),

		DevLogging: getenv("DEV_LOGGING", "") == "1",
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
