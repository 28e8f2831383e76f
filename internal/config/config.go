// Package config loads settings from defaults, an optional YAML file and the environment,
// in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/commons-systems/atelier/internal/auth"
	"github.com/commons-systems/atelier/internal/drive"
	"github.com/commons-systems/atelier/internal/upload"
	"github.com/commons-systems/atelier/internal/validate"
)

const megabyte = 1024 * 1024

// Config holds every setting of the uploader.
type Config struct {
	ClientID            string        `yaml:"client_id"`
	ClientSecret        string        `yaml:"client_secret"`
	Scope               string        `yaml:"scope"`
	FolderID            string        `yaml:"folder_id"`
	SharedDriveFolderID string        `yaml:"shared_drive_folder_id"`
	Environment         string        `yaml:"environment"`
	Concurrency         int           `yaml:"concurrency"`
	MaxSizeMB           int           `yaml:"max_size_mb"`
	MaxFiles            int           `yaml:"max_files"`
	UploadTimeout       time.Duration `yaml:"upload_timeout"`
	DBPath              string        `yaml:"db_path"`
	DriveEndpoint       string        `yaml:"drive_endpoint"`
	DropDir             string        `yaml:"drop_dir"`
}

// ConfigurationError lists required settings that are missing or unusable.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "Google Drive is not configured: " + strings.Join(parts, "; ")
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Scope:       auth.DriveFileScope,
		Environment: drive.DefaultEnvironment,
		Concurrency: upload.DefaultConcurrency,
		MaxSizeMB:   10,
		MaxFiles:    10,
		DBPath:      defaultDBPath(),
	}
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "atelier.db"
	}
	return filepath.Join(dir, "atelier", "atelier.db")
}

// Load builds the configuration. path, or ATELIER_CONFIG when path is empty, names an
// optional YAML file; environment variables override it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ATELIER_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ClientID = getEnv("GOOGLE_CLIENT_ID", cfg.ClientID)
	cfg.ClientSecret = getEnv("GOOGLE_CLIENT_SECRET", cfg.ClientSecret)
	cfg.Scope = getEnv("GOOGLE_API_SCOPE", cfg.Scope)
	cfg.FolderID = getEnv("DRIVE_FOLDER_ID", cfg.FolderID)
	cfg.SharedDriveFolderID = getEnv("SHARED_DRIVE_FOLDER_ID", cfg.SharedDriveFolderID)
	cfg.Environment = getEnv("DEPLOY_PLATFORM", cfg.Environment)
	cfg.Concurrency = getEnvInt("UPLOAD_CONCURRENCY", cfg.Concurrency)
	cfg.MaxSizeMB = getEnvInt("UPLOAD_MAX_SIZE_MB", cfg.MaxSizeMB)
	cfg.MaxFiles = getEnvInt("UPLOAD_MAX_FILES", cfg.MaxFiles)
	cfg.UploadTimeout = getEnvDuration("UPLOAD_TIMEOUT", cfg.UploadTimeout)
	cfg.DBPath = getEnv("ATELIER_DB_PATH", cfg.DBPath)
	cfg.DriveEndpoint = getEnv("DRIVE_API_ENDPOINT", cfg.DriveEndpoint)

	return cfg, nil
}

// Validate reports missing required values. Commands that talk to Drive refuse to run
// until it passes.
func (c Config) Validate() error {
	var cfgErr ConfigurationError
	if c.ClientID == "" {
		cfgErr.Missing = append(cfgErr.Missing, "GOOGLE_CLIENT_ID")
	}
	if c.UploadFolderID() == "" {
		cfgErr.Missing = append(cfgErr.Missing, "DRIVE_FOLDER_ID")
	}
	if c.Concurrency < 1 || c.Concurrency > upload.MaxConcurrency {
		cfgErr.Invalid = append(cfgErr.Invalid, fmt.Sprintf("UPLOAD_CONCURRENCY=%d (1-%d)", c.Concurrency, upload.MaxConcurrency))
	}
	if c.MaxSizeMB < 1 {
		cfgErr.Invalid = append(cfgErr.Invalid, fmt.Sprintf("UPLOAD_MAX_SIZE_MB=%d", c.MaxSizeMB))
	}
	if c.MaxFiles < 1 {
		cfgErr.Invalid = append(cfgErr.Invalid, fmt.Sprintf("UPLOAD_MAX_FILES=%d", c.MaxFiles))
	}
	if c.UploadTimeout < 0 {
		cfgErr.Invalid = append(cfgErr.Invalid, fmt.Sprintf("UPLOAD_TIMEOUT=%v", c.UploadTimeout))
	}
	if len(cfgErr.Missing) > 0 || len(cfgErr.Invalid) > 0 {
		return &cfgErr
	}
	return nil
}

// IsConfigurationError reports whether err came from Validate.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// UploadFolderID is the destination folder. A shared drive folder wins.
func (c Config) UploadFolderID() string {
	if c.SharedDriveFolderID != "" {
		return c.SharedDriveFolderID
	}
	return c.FolderID
}

// SharedDrive reports whether the destination lives on a shared drive.
func (c Config) SharedDrive() bool {
	return c.SharedDriveFolderID != ""
}

// Policy returns the attachment policy with the configured limits.
func (c Config) Policy() validate.Policy {
	p := validate.DefaultPolicy()
	p.MaxSizeBytes = int64(c.MaxSizeMB) * megabyte
	p.MaxFileCount = c.MaxFiles
	return p
}

// Upload returns the orchestrator settings.
func (c Config) Upload() upload.Config {
	u := upload.DefaultConfig()
	u.Policy = c.Policy()
	u.Concurrency = c.Concurrency
	u.ParentFolderID = c.UploadFolderID()
	u.UploadTimeout = c.UploadTimeout
	return u
}

// Diagnostic describes one setting for the config command.
type Diagnostic struct {
	Name     string
	Set      bool
	Required bool
	Value    string // secrets are never shown
}

// Diagnostics lists which settings are present, without revealing secrets.
func (c Config) Diagnostics() []Diagnostic {
	return []Diagnostic{
		{Name: "GOOGLE_CLIENT_ID", Set: c.ClientID != "", Required: true, Value: c.ClientID},
		{Name: "GOOGLE_CLIENT_SECRET", Set: c.ClientSecret != ""},
		{Name: "GOOGLE_API_SCOPE", Set: c.Scope != "", Value: c.Scope},
		{Name: "DRIVE_FOLDER_ID", Set: c.FolderID != "", Required: c.SharedDriveFolderID == "", Value: c.FolderID},
		{Name: "SHARED_DRIVE_FOLDER_ID", Set: c.SharedDriveFolderID != "", Value: c.SharedDriveFolderID},
		{Name: "DEPLOY_PLATFORM", Set: c.Environment != "", Value: c.Environment},
		{Name: "UPLOAD_CONCURRENCY", Set: true, Value: strconv.Itoa(c.Concurrency)},
		{Name: "UPLOAD_MAX_SIZE_MB", Set: true, Value: strconv.Itoa(c.MaxSizeMB)},
		{Name: "UPLOAD_MAX_FILES", Set: true, Value: strconv.Itoa(c.MaxFiles)},
		{Name: "UPLOAD_TIMEOUT", Set: c.UploadTimeout > 0, Value: c.UploadTimeout.String()},
		{Name: "ATELIER_DB_PATH", Set: c.DBPath != "", Value: c.DBPath},
		{Name: "DRIVE_API_ENDPOINT", Set: c.DriveEndpoint != "", Value: c.DriveEndpoint},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
