package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"require"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// OpenAlex-API
	OpenAlexBaseURL     string  `envconfig:"OPENALEX_BASE_URL" default:"https://api.openalex.org"`
	OpenAlexMailto      string  `envconfig:"OPENALEX_MAILTO"`
	OpenAlexConceptTerm string  `envconfig:"OPENALEX_CONCEPT_TERM" default:"artificial intelligence"`
	OpenAlexMaxPages    int     `envconfig:"OPENALEX_MAX_PAGES" default:"50"`
	OpenAlexRateLimit   float64 `envconfig:"OPENALEX_RATE_LIMIT" default:"8"`

	// Pipeline
	FetchDaysBack     int     `envconfig:"FETCH_DAYS_BACK" default:"3"`
	RelevanceMinScore float64 `envconfig:"RELEVANCE_MIN_SCORE" default:"0.7"`
	CronSchedule      string  `envconfig:"CRON_SCHEDULE" default:"0 4 * * *"`

	// Integritäts-Validierung
	ValidationSampleSize        int  `envconfig:"VALIDATION_SAMPLE_SIZE" default:"10"`
	SuspiciousCitationThreshold int  `envconfig:"SUSPICIOUS_CITATION_THRESHOLD" default:"100000"`
	ValidateAfterImport         bool `envconfig:"VALIDATE_AFTER_IMPORT" default:"true"`

	// S3-Archiv für Roh-Batches (leer = deaktiviert)
	ArchiveS3Key    string `envconfig:"ARCHIVE_S3_KEY"`
	ArchiveS3Secret string `envconfig:"ARCHIVE_S3_SECRET"`
	ArchiveS3URL    string `envconfig:"ARCHIVE_S3_URL"`
	ArchiveS3Region string `envconfig:"ARCHIVE_S3_REGION"`
	ArchiveS3Bucket string `envconfig:"ARCHIVE_S3_BUCKET"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// ArchiveEnabled meldet, ob das S3-Archiv für Roh-Batches konfiguriert ist.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveS3Bucket != "" && c.ArchiveS3URL != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
