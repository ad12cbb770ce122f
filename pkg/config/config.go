package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage backends supported for document artifacts.
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Event publisher backends for lifecycle events.
const (
	PublisherLog    = "log"
	PublisherPubSub = "pubsub"
	PublisherKafka  = "kafka"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Rollbar    RollbarConfig
	Storage    StorageConfig
	Documents  DocumentsConfig
	Admissions AdmissionsConfig
	Events     EventsConfig
	Mail       MailConfig
	Summary    SummaryConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RollbarConfig forwards error level log entries when a token is present.
type RollbarConfig struct {
	Token       string
	Environment string
	CodeVersion string
}

// StorageConfig selects the object store used for document artifacts.
type StorageConfig struct {
	Backend         string
	LocalDir        string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	GCSBucket       string
	GCSCredentials  string
}

// DocumentsConfig controls document upload validation and default templates.
type DocumentsConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	TemplatePath     string
}

// AdmissionsConfig holds lifecycle tuning.
type AdmissionsConfig struct {
	DefaultPhoneRegion string
	ReviewLockTTL      time.Duration
	PhotoMaxDimension  int
	ProvisionWorkers   int
	ProvisionRetries   int
}

// EventsConfig selects where admission lifecycle events are published.
type EventsConfig struct {
	Publisher         string
	Topic             string
	PubSubProjectID   string
	PubSubCredentials string
	KafkaBrokers      []string
}

// MailConfig configures guardian notifications. Empty API key disables sending.
type MailConfig struct {
	SendGridAPIKey string
	FromName       string
	FromEmail      string
}

// SummaryConfig governs caching for the admissions summary endpoint.
type SummaryConfig struct {
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Rollbar = RollbarConfig{
		Token:       v.GetString("ROLLBAR_TOKEN"),
		Environment: v.GetString("ENV"),
		CodeVersion: v.GetString("BUILD_VERSION"),
	}

	cfg.Storage = StorageConfig{
		Backend:         strings.ToLower(v.GetString("STORAGE_BACKEND")),
		LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		SignedURLSecret: v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 15*time.Minute),
		GCSBucket:       v.GetString("GCS_BUCKET"),
		GCSCredentials:  v.GetString("GCS_CREDENTIALS_JSON"),
	}

	maxDocSize := v.GetInt64("DOCUMENTS_MAX_FILE_SIZE")
	if maxDocSize <= 0 {
		maxDocSize = 10 * 1024 * 1024
	}
	cfg.Documents = DocumentsConfig{
		MaxFileSizeBytes: maxDocSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("DOCUMENTS_ALLOWED_MIME_TYPES")),
		TemplatePath:     v.GetString("DOCUMENTS_TEMPLATE_PATH"),
	}

	cfg.Admissions = AdmissionsConfig{
		DefaultPhoneRegion: strings.ToUpper(v.GetString("ADMISSIONS_PHONE_REGION")),
		ReviewLockTTL:      parseDuration(v.GetString("ADMISSIONS_REVIEW_LOCK_TTL"), 15*time.Second),
		PhotoMaxDimension:  v.GetInt("ADMISSIONS_PHOTO_MAX_DIMENSION"),
		ProvisionWorkers:   v.GetInt("ADMISSIONS_PROVISION_WORKERS"),
		ProvisionRetries:   v.GetInt("ADMISSIONS_PROVISION_RETRIES"),
	}

	cfg.Events = EventsConfig{
		Publisher:         strings.ToLower(v.GetString("EVENTS_PUBLISHER")),
		Topic:             v.GetString("EVENTS_TOPIC"),
		PubSubProjectID:   v.GetString("PUBSUB_PROJECT_ID"),
		PubSubCredentials: v.GetString("PUBSUB_CREDENTIALS_JSON"),
		KafkaBrokers:      splitAndTrim(v.GetString("KAFKA_BROKERS")),
	}

	cfg.Mail = MailConfig{
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		FromEmail:      v.GetString("MAIL_FROM_EMAIL"),
	}

	cfg.Summary = SummaryConfig{
		CacheTTL: parseDuration(v.GetString("SUMMARY_CACHE_TTL"), 2*time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_admissions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "sma-admissions-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("BUILD_VERSION", "dev")

	v.SetDefault("STORAGE_BACKEND", StorageLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./documents")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "15m")
	v.SetDefault("GCS_BUCKET", "")
	v.SetDefault("GCS_CREDENTIALS_JSON", "")

	v.SetDefault("DOCUMENTS_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("DOCUMENTS_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png")
	v.SetDefault("DOCUMENTS_TEMPLATE_PATH", "")

	v.SetDefault("ADMISSIONS_PHONE_REGION", "ID")
	v.SetDefault("ADMISSIONS_REVIEW_LOCK_TTL", "15s")
	v.SetDefault("ADMISSIONS_PHOTO_MAX_DIMENSION", 512)
	v.SetDefault("ADMISSIONS_PROVISION_WORKERS", 1)
	v.SetDefault("ADMISSIONS_PROVISION_RETRIES", 3)

	v.SetDefault("EVENTS_PUBLISHER", PublisherLog)
	v.SetDefault("EVENTS_TOPIC", "admissions")
	v.SetDefault("PUBSUB_PROJECT_ID", "")
	v.SetDefault("PUBSUB_CREDENTIALS_JSON", "")
	v.SetDefault("KAFKA_BROKERS", "")

	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "SMA Admissions")
	v.SetDefault("MAIL_FROM_EMAIL", "admissions@example.sch.id")

	v.SetDefault("SUMMARY_CACHE_TTL", "2m")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
