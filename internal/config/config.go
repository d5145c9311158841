// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	BackendAPI            string // Base URL of the external allocation service
	BackendTimeoutSeconds int
	DataDir               string // Directory holding planner.db and history.db (always absolute)
	Port                  int
	LogLevel              string
	LogPretty             bool
	DevMode               bool
	CORSAllowedOrigins    []string

	HistoryRetentionDays   int
	HistoryCleanupSchedule string

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup settings. Backups are disabled when Bucket is empty.
type BackupConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string
	RetentionDays   int
}

// Enabled reports whether database backups should be scheduled.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		BackendAPI:             strings.TrimRight(getEnv("BACKEND_API", "http://localhost:9000"), "/"),
		BackendTimeoutSeconds:  getEnvAsInt("BACKEND_TIMEOUT_SECONDS", 30),
		DataDir:                absDataDir,
		Port:                   getEnvAsInt("PORT", 3000),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogPretty:              getEnvAsBool("LOG_PRETTY", true),
		DevMode:                getEnvAsBool("DEV_MODE", false),
		CORSAllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		HistoryRetentionDays:   getEnvAsInt("HISTORY_RETENTION_DAYS", 30),
		HistoryCleanupSchedule: getEnv("HISTORY_CLEANUP_SCHEDULE", "0 0 3 * * *"),
		Backup:                 loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and well formed
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendAPI)
	if err != nil {
		return fmt.Errorf("invalid BACKEND_API %q: %w", c.BackendAPI, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BACKEND_API must be an absolute http(s) URL, got %q", c.BackendAPI)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.BackendTimeoutSeconds <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT_SECONDS must be positive, got %d", c.BackendTimeoutSeconds)
	}
	if c.HistoryRetentionDays <= 0 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must be positive, got %d", c.HistoryRetentionDays)
	}
	if err := validateSchedule("HISTORY_CLEANUP_SCHEDULE", c.HistoryCleanupSchedule); err != nil {
		return err
	}

	if c.Backup.Enabled() {
		if c.Backup.Endpoint == "" {
			return fmt.Errorf("BACKUP_S3_ENDPOINT is required when BACKUP_S3_BUCKET is set")
		}
		if c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("BACKUP_S3 credentials are required when BACKUP_S3_BUCKET is set")
		}
		if c.Backup.RetentionDays <= 0 {
			return fmt.Errorf("BACKUP_RETENTION_DAYS must be positive, got %d", c.Backup.RetentionDays)
		}
		if err := validateSchedule("BACKUP_SCHEDULE", c.Backup.Schedule); err != nil {
			return err
		}
	}

	return nil
}

// scheduleParser matches cron.WithSeconds: exactly six fields, or a descriptor.
var scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// validateSchedule parses a cron spec with the same options the scheduler uses.
func validateSchedule(name, spec string) error {
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, spec, err)
	}
	return nil
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
		Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:          getEnv("BACKUP_S3_REGION", "auto"),
		AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		Schedule:        getEnv("BACKUP_SCHEDULE", "0 30 3 * * *"),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 14),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
