package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()
	setEnv(t, map[string]string{
		"DATA_DIR":    dataDir,
		"BACKEND_API": "",
		"PORT":        "",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.BackendAPI)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 30, cfg.BackendTimeoutSeconds)
	assert.Equal(t, 30, cfg.HistoryRetentionDays)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.False(t, cfg.Backup.Enabled())
}

func TestLoad_FromEnvironment(t *testing.T) {
	setEnv(t, map[string]string{
		"DATA_DIR":                t.TempDir(),
		"BACKEND_API":             "https://alloc.example.com/",
		"PORT":                    "8080",
		"LOG_LEVEL":               "debug",
		"LOG_PRETTY":              "false",
		"DEV_MODE":                "true",
		"BACKEND_TIMEOUT_SECONDS": "5",
		"CORS_ALLOWED_ORIGINS":    "http://a.test, http://b.test ,",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://alloc.example.com", cfg.BackendAPI, "trailing slash trimmed")
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 5, cfg.BackendTimeoutSeconds)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	setEnv(t, map[string]string{
		"DATA_DIR": t.TempDir(),
		"PORT":     "not-a-number",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
}

func validConfig() *Config {
	return &Config{
		BackendAPI:             "http://localhost:9000",
		BackendTimeoutSeconds:  30,
		Port:                   3000,
		HistoryRetentionDays:   30,
		HistoryCleanupSchedule: "0 0 3 * * *",
		Backup:                 &BackupConfig{Schedule: "0 30 3 * * *", RetentionDays: 14},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"relative backend url", func(c *Config) { c.BackendAPI = "localhost:9000" }, "BACKEND_API"},
		{"non-http scheme", func(c *Config) { c.BackendAPI = "ftp://host" }, "BACKEND_API"},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "PORT"},
		{"zero timeout", func(c *Config) { c.BackendTimeoutSeconds = 0 }, "BACKEND_TIMEOUT_SECONDS"},
		{"zero retention", func(c *Config) { c.HistoryRetentionDays = 0 }, "HISTORY_RETENTION_DAYS"},
		{"bad cleanup schedule", func(c *Config) { c.HistoryCleanupSchedule = "whenever" }, "HISTORY_CLEANUP_SCHEDULE"},
		{"descriptor schedule", func(c *Config) { c.HistoryCleanupSchedule = "@daily" }, ""},
		{"five-field cleanup schedule", func(c *Config) { c.HistoryCleanupSchedule = "0 3 * * *" }, "HISTORY_CLEANUP_SCHEDULE"},
		{"five-field backup schedule", func(c *Config) {
			c.Backup.Bucket = "b"
			c.Backup.Endpoint = "https://s3.test"
			c.Backup.AccessKeyID = "id"
			c.Backup.SecretAccessKey = "secret"
			c.Backup.Schedule = "*/5 * * * *"
		}, "BACKUP_SCHEDULE"},
		{"backup without endpoint", func(c *Config) { c.Backup.Bucket = "b" }, "BACKUP_S3_ENDPOINT"},
		{"backup without credentials", func(c *Config) {
			c.Backup.Bucket = "b"
			c.Backup.Endpoint = "https://s3.test"
		}, "credentials"},
		{"backup complete", func(c *Config) {
			c.Backup.Bucket = "b"
			c.Backup.Endpoint = "https://s3.test"
			c.Backup.AccessKeyID = "id"
			c.Backup.SecretAccessKey = "secret"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
