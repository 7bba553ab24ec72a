package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
// URL takes precedence over the discrete fields; Supabase hands out a full connection string.
type DatabaseConfig struct {
	URL                string
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

// Configured reports whether enough connection settings are present to attempt a connection.
func (c DatabaseConfig) Configured() bool {
	return c.URL != "" || c.Host != ""
}

// StorageConfig holds object storage settings.
// Driver "s3" talks to any S3 API (Supabase storage exposes one under /storage/v1/s3);
// driver "minio" is for a self-hosted MinIO during local development.
type StorageConfig struct {
	Driver           string
	SupabaseURL      string
	Endpoint         string
	Region           string
	AccessKey        string
	SecretKey        string
	Bucket           string
	UseSSL           bool
	PublicBaseURL    string
	UploadTimeoutSec int
}

// Configured reports whether the storage credentials and endpoint are present.
func (c StorageConfig) Configured() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

// ImageConfig controls server-side image normalization.
type ImageConfig struct {
	Normalize      bool
	Format         string
	MaxWidth       int
	MaxHeight      int
	TargetKB       int
	InitialQuality float64
	MinQuality     float64
	QualityStep    float64
	MaxAttempts    int
	MaxMegapixels  int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Port                  string
	Timezone              string
	BodyLimitMB           int
	SubmitRateLimitPerMin int
	AutoMigrate           bool
	CORSAllowOrigins      string
	Database              DatabaseConfig
	Storage               StorageConfig
	Image                 ImageConfig
}

// Location resolves the configured time zone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment variables.
// The CLI loads a .env file with godotenv before calling it; no .env file is required
// and real environment variables take precedence.
func Load() *AppConfig {
	supabaseURL := strings.TrimRight(getEnv("SUPABASE_URL", ""), "/")

	return &AppConfig{
		Port:                  getEnv("PORT", "3000"),
		Timezone:              getEnv("APP_TIMEZONE", "UTC"),
		BodyLimitMB:           getEnvInt("BODY_LIMIT_MB", 25),
		SubmitRateLimitPerMin: getEnvInt("SUBMIT_RATE_LIMIT_PER_MIN", 30),
		AutoMigrate:           getEnvBool("AUTO_MIGRATE", true),
		CORSAllowOrigins:      getEnv("CORS_ALLOW_ORIGINS", "*"),
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "require"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Driver:           strings.ToLower(getEnv("STORAGE_DRIVER", "s3")),
			SupabaseURL:      supabaseURL,
			Endpoint:         getEnv("STORAGE_ENDPOINT", defaultStorageEndpoint(supabaseURL)),
			Region:           getEnv("STORAGE_REGION", "us-east-1"),
			AccessKey:        getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey:        getEnv("STORAGE_SECRET_KEY", ""),
			Bucket:           getEnv("STORAGE_BUCKET", "images"),
			UseSSL:           getEnvBool("STORAGE_USE_SSL", true),
			PublicBaseURL:    strings.TrimRight(getEnv("STORAGE_PUBLIC_BASE_URL", defaultPublicBaseURL(supabaseURL)), "/"),
			UploadTimeoutSec: getEnvInt("STORAGE_UPLOAD_TIMEOUT_SEC", 30),
		},
		Image: ImageConfig{
			Normalize:      getEnvBool("IMAGE_NORMALIZE", true),
			Format:         strings.ToLower(getEnv("IMAGE_FORMAT", "jpeg")),
			MaxWidth:       getEnvInt("IMAGE_MAX_WIDTH", 1920),
			MaxHeight:      getEnvInt("IMAGE_MAX_HEIGHT", 2560),
			TargetKB:       getEnvInt("IMAGE_TARGET_KB", 800),
			InitialQuality: getEnvFloat("IMAGE_INITIAL_QUALITY", 0.8),
			MinQuality:     getEnvFloat("IMAGE_MIN_QUALITY", 0.6),
			QualityStep:    getEnvFloat("IMAGE_QUALITY_STEP", 0.1),
			MaxAttempts:    getEnvInt("IMAGE_MAX_ATTEMPTS", 5),
			MaxMegapixels:  getEnvInt("IMAGE_MAX_MEGAPIXELS", 50),
		},
	}
}

func defaultStorageEndpoint(supabaseURL string) string {
	if supabaseURL == "" {
		return ""
	}
	return supabaseURL + "/storage/v1/s3"
}

func defaultPublicBaseURL(supabaseURL string) string {
	if supabaseURL == "" {
		return ""
	}
	return supabaseURL + "/storage/v1/object/public"
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

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}
