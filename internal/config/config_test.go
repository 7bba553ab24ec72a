package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("STORAGE_USE_SSL", "false")
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co/")
	t.Setenv("STORAGE_ENDPOINT", "")
	t.Setenv("STORAGE_PUBLIC_BASE_URL", "")
	t.Setenv("IMAGE_MIN_QUALITY", "0.5")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.Database.Configured())
	assert.False(t, cfg.Storage.UseSSL)
	assert.Equal(t, "https://abc.supabase.co/storage/v1/s3", cfg.Storage.Endpoint)
	assert.Equal(t, "https://abc.supabase.co/storage/v1/object/public", cfg.Storage.PublicBaseURL)
	assert.Equal(t, "images", cfg.Storage.Bucket)
	assert.Equal(t, 0.5, cfg.Image.MinQuality)
	assert.Equal(t, 800, cfg.Image.TargetKB)
	assert.Equal(t, 5, cfg.Image.MaxAttempts)
	assert.Equal(t, 50, cfg.Image.MaxMegapixels)
}

func TestStorageConfigured(t *testing.T) {
	c := StorageConfig{Endpoint: "http://localhost:9000", Bucket: "images"}
	assert.False(t, c.Configured())

	c.AccessKey = "ak"
	c.SecretKey = "sk"
	assert.True(t, c.Configured())

	c.Bucket = ""
	assert.False(t, c.Configured())
}

func TestDatabaseConfigured(t *testing.T) {
	assert.False(t, DatabaseConfig{}.Configured())
	assert.True(t, DatabaseConfig{URL: "postgres://u@h/db"}.Configured())
	assert.True(t, DatabaseConfig{Host: "h"}.Configured())
}

func TestLocation(t *testing.T) {
	cfg := &AppConfig{Timezone: "Asia/Shanghai"}
	assert.Equal(t, "Asia/Shanghai", cfg.Location().String())

	cfg.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvFloat(t *testing.T) {
	key := "TEST_FLOAT_VAR"

	os.Setenv(key, "0.75")
	assert.Equal(t, 0.75, getEnvFloat(key, 0))

	os.Setenv(key, "x")
	assert.Equal(t, 0.8, getEnvFloat(key, 0.8))

	os.Unsetenv(key)
	assert.Equal(t, 0.8, getEnvFloat(key, 0.8))
}
