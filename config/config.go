package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	// OpenRouter-Anbindung für Modell-Completions
	OpenRouterAPIKey  string `envconfig:"OPENROUTER_API_KEY" required:"true"`
	OpenRouterBaseURL string `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	DefaultModel      string `envconfig:"DEFAULT_MODEL" default:"anthropic/claude-sonnet-4-20250514"`

	// Datenbank: "sqlite" (Standard) oder "postgres"
	DBDriver   string `envconfig:"DB_DRIVER" default:"sqlite"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"data/biosecurity.db"`
	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"8000"`

	// Grenzen für Ingestion und Klassifikation
	FeedMaxEntries     int `envconfig:"FEED_MAX_ENTRIES" default:"20"`
	ArxivMaxResults    int `envconfig:"ARXIV_MAX_RESULTS" default:"20"`
	ClassifyBatchLimit int `envconfig:"CLASSIFY_BATCH_LIMIT" default:"10"`

	ArxivBaseURL string `envconfig:"ARXIV_BASE_URL" default:"https://export.arxiv.org/api/query"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 6 * * *"`
}

// PostgresDSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
