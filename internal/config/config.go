package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	URL                string // overrides the discrete fields when set
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// HistoryConfig selects the durable backend for upload history.
type HistoryConfig struct {
	Driver string // file | postgres | redis
	Dir    string
}

// RedisConfig holds settings for the Redis history backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// StorageConfig selects the intermediate object storage.
type StorageConfig struct {
	Driver     string // minio | s3 | none
	Prefix     string
	PresignTTL time.Duration
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Config holds object storage settings for AWS S3 or any S3-compatible endpoint.
type S3Config struct {
	Region       string
	Bucket       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// CloudinaryConfig is the signing identity for direct client uploads.
type CloudinaryConfig struct {
	CloudName          string
	APIKey             string
	APISecret          string
	Folder             string
	SignatureAlgorithm string
}

// BrowserStackConfig is the remote device-testing provider.
type BrowserStackConfig struct {
	Username       string
	AccessKey      string
	UploadURL      string
	Timeout        time.Duration
	RetryMax       int
	URLPassthrough bool
}

// HandoffConfig tunes the background transfer pipeline.
type HandoffConfig struct {
	MaxUploadSize      int64
	Workers            int
	QueueSize          int
	TransferTimeout    time.Duration
	TerminalRetryMax   time.Duration
	StuckRecordTimeout time.Duration
	SweepInterval      time.Duration
	SpoolDir           string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Secrets have no defaults.
type AppConfig struct {
	Port            string
	LogLevel        string
	Timezone        string
	ShutdownTimeout time.Duration
	History         HistoryConfig
	Database        DatabaseConfig
	Redis           RedisConfig
	Storage         StorageConfig
	MinIO           MinIOConfig
	S3              S3Config
	Cloudinary      CloudinaryConfig
	BrowserStack    BrowserStackConfig
	Handoff         HandoffConfig
}

// DefaultMaxUploadSize is 500MiB.
const DefaultMaxUploadSize = 500 * units.MiB

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() *AppConfig {
	return &AppConfig{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Timezone:        getEnv("TZ", "UTC"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		History: HistoryConfig{
			Driver: strings.ToLower(getEnv("HISTORY_DRIVER", "file")),
			Dir:    getEnv("HISTORY_DIR", "./data/history"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "apkrelay"),
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(getEnv("STORAGE_DRIVER", "minio")),
			Prefix:     getEnv("STORAGE_PREFIX", "apk-uploads"),
			PresignTTL: getEnvDuration("STORAGE_PRESIGN_TTL", time.Hour),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		S3: S3Config{
			Region:       getEnv("AWS_REGION", "us-east-1"),
			Bucket:       getEnv("S3_BUCKET", ""),
			Endpoint:     getEnv("S3_ENDPOINT", ""),
			AccessKey:    getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
			UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", false),
		},
		Cloudinary: CloudinaryConfig{
			CloudName:          getEnv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:             getEnv("CLOUDINARY_API_KEY", ""),
			APISecret:          getEnv("CLOUDINARY_API_SECRET", ""),
			Folder:             getEnv("CLOUDINARY_FOLDER", "apk-uploads"),
			SignatureAlgorithm: strings.ToLower(getEnv("CLOUDINARY_SIGNATURE_ALGORITHM", "sha1")),
		},
		BrowserStack: BrowserStackConfig{
			Username:       getEnv("BROWSERSTACK_USERNAME", ""),
			AccessKey:      getEnv("BROWSERSTACK_ACCESS_KEY", ""),
			UploadURL:      getEnv("BROWSERSTACK_UPLOAD_URL", "https://api-cloud.browserstack.com/app-automate/upload"),
			Timeout:        getEnvDuration("BROWSERSTACK_TIMEOUT", 120*time.Second),
			RetryMax:       getEnvInt("BROWSERSTACK_RETRY_MAX", 2),
			URLPassthrough: getEnvBool("BROWSERSTACK_URL_PASSTHROUGH", false),
		},
		Handoff: HandoffConfig{
			MaxUploadSize:      getEnvSize("MAX_UPLOAD_SIZE", DefaultMaxUploadSize),
			Workers:            getEnvInt("HANDOFF_WORKERS", 4),
			QueueSize:          getEnvInt("HANDOFF_QUEUE_SIZE", 64),
			TransferTimeout:    getEnvDuration("HANDOFF_TIMEOUT", 10*time.Minute),
			TerminalRetryMax:   getEnvDuration("TERMINAL_WRITE_RETRY_MAX", 30*time.Second),
			StuckRecordTimeout: getEnvDuration("STUCK_RECORD_TIMEOUT", 0),
			SweepInterval:      getEnvDuration("STUCK_SWEEP_INTERVAL", time.Minute),
			SpoolDir:           getEnv("SPOOL_DIR", os.TempDir()),
		},
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

// getEnvSize accepts human sizes such as "500MB" or "1GiB" (binary multiples).
func getEnvSize(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		n, err := units.RAMInBytes(v)
		if err == nil && n > 0 {
			return n
		}
	}
	return def
}
