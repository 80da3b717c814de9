package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration
	DatabaseDebug             bool
	DatabaseFilePath          string
	DatabaseMaxRetries        int

	// External providers.
	GoogleBooksBaseURL   string
	GoogleBooksAPIKey    string
	OpenLibraryBaseURL   string
	WikipediaPrimaryURL  string
	WikipediaFallbackURL string
	TranslateURL         string
	TranslateAPIKey      string

	// Reconciliation behavior.
	PreferredLanguage string
	SecondaryLanguage string
	EditionScanBudget int
	TranslateSynopsis bool

	// HTTP behavior shared by all provider clients.
	HTTPTimeout       time.Duration
	UserAgent         string
	CourtesyDelay     time.Duration
	ProviderCacheSize int
}

const environmentENV = "ENVIRONMENT"

func New() (*Config, error) {
	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseFilePath:          "./tmp/data.sqlite",
		DatabaseMaxRetries:        3,

		GoogleBooksBaseURL:   "https://www.googleapis.com/books/v1/volumes",
		OpenLibraryBaseURL:   "https://openlibrary.org",
		WikipediaPrimaryURL:  "https://es.wikipedia.org",
		WikipediaFallbackURL: "https://en.wikipedia.org",

		PreferredLanguage: "es",
		SecondaryLanguage: "en",
		EditionScanBudget: 60,
		TranslateSynopsis: true,

		HTTPTimeout:       15 * time.Second,
		UserAgent:         "livrario-ingest/2.0",
		CourtesyDelay:     200 * time.Millisecond,
		ProviderCacheSize: 512,
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		cfg.DatabaseDebug = true
	case "test":
		cfg.DatabaseFilePath = "file::memory:?cache=shared"
	case "production":
		cfg.DatabaseFilePath = "/data/livrario.sqlite"
	}

	loadEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvOverrides applies environment variable overrides. The variable names
// match what the deployment already sets for the ingest service.
func loadEnvOverrides(cfg *Config) {
	setString(&cfg.DatabaseFilePath, "DATABASE_FILE_PATH")
	setString(&cfg.GoogleBooksBaseURL, "GOOGLE_BOOKS_BASE_URL")
	setString(&cfg.GoogleBooksAPIKey, "GOOGLE_BOOKS_API_KEY")
	setString(&cfg.OpenLibraryBaseURL, "OPENLIBRARY_BASE_URL")
	setString(&cfg.WikipediaPrimaryURL, "WIKIPEDIA_PRIMARY_URL")
	setString(&cfg.WikipediaFallbackURL, "WIKIPEDIA_FALLBACK_URL")
	setString(&cfg.TranslateURL, "LIBRETRANSLATE_URL")
	setString(&cfg.TranslateAPIKey, "LIBRETRANSLATE_API_KEY")
	setString(&cfg.PreferredLanguage, "PREFERRED_LANGUAGE")
	setString(&cfg.SecondaryLanguage, "SECONDARY_LANGUAGE")
	setString(&cfg.UserAgent, "OPENLIBRARY_USER_AGENT")

	if v, err := strconv.Atoi(os.Getenv("HTTP_TIMEOUT_SECONDS")); err == nil && v > 0 {
		cfg.HTTPTimeout = time.Duration(v) * time.Second
	}
	if v, err := strconv.Atoi(os.Getenv("EDITION_SCAN_BUDGET")); err == nil && v >= 0 {
		cfg.EditionScanBudget = v
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
