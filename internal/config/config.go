package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultDBPath          = "./dev.db"
	defaultPort            = "8080"
	defaultDraftsPath      = "./drafts.db"
	defaultLogLevel        = "info"
	defaultStoreBackend    = StoreSQLite
	defaultRecalcDebounce  = time.Second
	defaultGSTPercent      = 18.0
	defaultCatalogDebounce = 500 * time.Millisecond
)

// Estimate store backends.
const (
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	AdminEmail    string
	AdminPassword string
	SessionSecret string
	DBPath        string
	Port          string

	AppEnv             string
	LogLevel           string
	StoreBackend       string
	FirestoreProjectID string
	DraftsPath         string
	CatalogDir         string
	CatalogDebounce    time.Duration
	RecalcDebounce     time.Duration
	DefaultGSTPercent  float64
}

// IsDev reports whether the app runs in local development mode.
func (c Config) IsDev() bool {
	return c.AppEnv == "" || strings.EqualFold(c.AppEnv, "dev") || strings.EqualFold(c.AppEnv, "development")
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// Best-effort: load local dev environment variables.
	// We don't fail if the file is missing; production should use real env injection.
	_ = loadDotEnv(".env")

	cfg := Config{
		AdminEmail:         os.Getenv("ADMIN_EMAIL"),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		DBPath:             os.Getenv("DB_PATH"),
		Port:               os.Getenv("PORT"),
		AppEnv:             os.Getenv("APP_ENV"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		StoreBackend:       strings.ToLower(os.Getenv("STORE_BACKEND")),
		FirestoreProjectID: os.Getenv("FIRESTORE_PROJECT_ID"),
		DraftsPath:         os.Getenv("DRAFTS_PATH"),
		CatalogDir:         os.Getenv("CATALOG_DIR"),
		CatalogDebounce:    defaultCatalogDebounce,
		RecalcDebounce:     durationMS("RECALC_DEBOUNCE_MS", defaultRecalcDebounce),
		DefaultGSTPercent:  floatEnv("DEFAULT_GST_PERCENT", defaultGSTPercent),
	}

	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.DraftsPath == "" {
		cfg.DraftsPath = defaultDraftsPath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	switch cfg.StoreBackend {
	case StoreSQLite, StoreFirestore:
	case "":
		cfg.StoreBackend = defaultStoreBackend
	default:
		log.Printf("warning: unknown STORE_BACKEND %q, using %s", cfg.StoreBackend, defaultStoreBackend)
		cfg.StoreBackend = defaultStoreBackend
	}

	if cfg.AdminEmail == "" {
		log.Print("warning: ADMIN_EMAIL is not set")
	}
	if cfg.AdminPassword == "" {
		log.Print("warning: ADMIN_PASSWORD is not set")
	}
	if cfg.SessionSecret == "" {
		log.Print("warning: SESSION_SECRET is not set")
	}
	if cfg.StoreBackend == StoreFirestore && cfg.FirestoreProjectID == "" {
		log.Print("warning: FIRESTORE_PROJECT_ID is not set")
	}

	return cfg
}

func durationMS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		log.Printf("warning: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func floatEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		log.Printf("warning: invalid %s=%q, using %v", key, v, def)
		return def
	}
	return f
}
