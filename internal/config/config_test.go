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
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("HISTORY_DRIVER", "Postgres")
	t.Setenv("MAX_UPLOAD_SIZE", "1GB")
	t.Setenv("BROWSERSTACK_URL_PASSTHROUGH", "true")
	t.Setenv("STUCK_RECORD_TIMEOUT", "15m")
	t.Setenv("DATABASE_URL", "postgres://relay@db/apkrelay")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, "postgres://relay@db/apkrelay", cfg.Database.URL)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, "postgres", cfg.History.Driver)
	assert.Equal(t, int64(1<<30), cfg.Handoff.MaxUploadSize)
	assert.True(t, cfg.BrowserStack.URLPassthrough)
	assert.Equal(t, 15*time.Minute, cfg.Handoff.StuckRecordTimeout)
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HISTORY_DRIVER", "MAX_UPLOAD_SIZE", "CLOUDINARY_FOLDER", "BROWSERSTACK_TIMEOUT", "STUCK_RECORD_TIMEOUT", "CLOUDINARY_API_SECRET"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "file", cfg.History.Driver)
	assert.Equal(t, int64(500*1024*1024), cfg.Handoff.MaxUploadSize)
	assert.Equal(t, "apk-uploads", cfg.Cloudinary.Folder)
	assert.Equal(t, 120*time.Second, cfg.BrowserStack.Timeout)
	assert.Zero(t, cfg.Handoff.StuckRecordTimeout)
	assert.Empty(t, cfg.Cloudinary.APISecret)
}

func TestLocation(t *testing.T) {
	cfg := &AppConfig{Timezone: "UTC"}
	assert.Equal(t, "UTC", cfg.Location().String())

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

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.False(t, getEnvBool(key, false))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"go duration", "90s", 90 * time.Second},
		{"plain seconds", "45", 45 * time.Second},
		{"invalid", "soon", time.Minute},
		{"unset", "", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION_VAR", tt.value)
			assert.Equal(t, tt.want, getEnvDuration("TEST_DURATION_VAR", time.Minute))
		})
	}
}

func TestGetEnvSize(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int64
	}{
		{"megabytes", "500MB", 500 * 1024 * 1024},
		{"plain bytes", "2048", 2048},
		{"invalid", "lots", 1},
		{"zero falls back", "0", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_SIZE_VAR", tt.value)
			assert.Equal(t, tt.want, getEnvSize("TEST_SIZE_VAR", 1))
		})
	}
}
