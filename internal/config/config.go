package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported attachment storage backends
const (
	StorageFileSystem = "file_system"
	StorageDBFile     = "db_file"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseDriver string
	DatabaseURL    string

	// Server
	APIPort         int
	AllowedOrigins  []string
	UploadRateLimit float64
	UploadRateBurst int

	// Layout
	AppRoot    string
	PublicPath string

	// Attachments
	AttachmentPathPrefix string
	AttachmentStorage    string
	MaxUploadSize        int64

	// Path cache
	PathCacheEnabled         bool
	PathCacheColumn          string
	PathCacheHostID          string
	PathCachePartitionByHost bool
	NilPath                  string

	// Logging
	LogLevel string
	AppEnv   string
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	// Required: DATABASE_URL
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	// DATABASE_DRIVER (default: sqlite)
	cfg.DatabaseDriver = strings.ToLower(os.Getenv("DATABASE_DRIVER"))
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = DriverSQLite
	}

	// API_PORT (default: 8080)
	apiPort := os.Getenv("API_PORT")
	if apiPort == "" {
		cfg.APIPort = 8080
	} else {
		port, err := strconv.Atoi(apiPort)
		if err != nil {
			return nil, fmt.Errorf("API_PORT must be a valid integer: %w", err)
		}
		cfg.APIPort = port
	}

	// ALLOWED_ORIGINS (default: *)
	cfg.AllowedOrigins = []string{"*"}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	// UPLOAD_RATE_LIMIT requests per second per IP (default: 5), UPLOAD_RATE_BURST (default: 10)
	cfg.UploadRateLimit = 5
	if v := os.Getenv("UPLOAD_RATE_LIMIT"); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("UPLOAD_RATE_LIMIT must be a valid number: %w", err)
		}
		cfg.UploadRateLimit = limit
	}
	cfg.UploadRateBurst = 10
	if v := os.Getenv("UPLOAD_RATE_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("UPLOAD_RATE_BURST must be a valid integer: %w", err)
		}
		cfg.UploadRateBurst = burst
	}

	// APP_ROOT (default: .) and PUBLIC_PATH (default: APP_ROOT/public)
	cfg.AppRoot = os.Getenv("APP_ROOT")
	if cfg.AppRoot == "" {
		cfg.AppRoot = "."
	}
	cfg.PublicPath = os.Getenv("PUBLIC_PATH")
	if cfg.PublicPath == "" {
		cfg.PublicPath = filepath.Join(cfg.AppRoot, "public")
	}

	// ATTACHMENT_PATH_PREFIX (default: public/files)
	cfg.AttachmentPathPrefix = os.Getenv("ATTACHMENT_PATH_PREFIX")
	if cfg.AttachmentPathPrefix == "" {
		cfg.AttachmentPathPrefix = "public/files"
	}

	// ATTACHMENT_STORAGE (default: file_system)
	cfg.AttachmentStorage = os.Getenv("ATTACHMENT_STORAGE")
	if cfg.AttachmentStorage == "" {
		cfg.AttachmentStorage = StorageFileSystem
	}

	// MAX_UPLOAD_SIZE in bytes (default: 1 MiB)
	if size := os.Getenv("MAX_UPLOAD_SIZE"); size != "" {
		v, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("MAX_UPLOAD_SIZE must be a valid integer: %w", err)
		}
		cfg.MaxUploadSize = v
	} else {
		cfg.MaxUploadSize = 1024 * 1024
	}

	// PATH_CACHE_ENABLED (default: true)
	cacheEnabled := os.Getenv("PATH_CACHE_ENABLED")
	if cacheEnabled == "" {
		cfg.PathCacheEnabled = true
	} else {
		enabled, err := strconv.ParseBool(cacheEnabled)
		if err != nil {
			return nil, fmt.Errorf("PATH_CACHE_ENABLED must be a valid boolean: %w", err)
		}
		cfg.PathCacheEnabled = enabled
	}

	// PATH_CACHE_COLUMN (default: attachment_path_cache)
	cfg.PathCacheColumn = os.Getenv("PATH_CACHE_COLUMN")
	if cfg.PathCacheColumn == "" {
		cfg.PathCacheColumn = "attachment_path_cache"
	}

	// PATH_CACHE_PARTITION_BY_HOST (default: false), PATH_CACHE_HOST_ID (default: hostname)
	if partition := os.Getenv("PATH_CACHE_PARTITION_BY_HOST"); partition != "" {
		v, err := strconv.ParseBool(partition)
		if err != nil {
			return nil, fmt.Errorf("PATH_CACHE_PARTITION_BY_HOST must be a valid boolean: %w", err)
		}
		cfg.PathCachePartitionByHost = v
	}
	cfg.PathCacheHostID = os.Getenv("PATH_CACHE_HOST_ID")

	// NIL_PATH (default: empty string)
	cfg.NilPath = os.Getenv("NIL_PATH")

	// LOG_LEVEL (default: info)
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.AppEnv = os.Getenv("APP_ENV")
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}

	return cfg, nil
}

// LoadWithValidation loads and validates configuration, failing fast on errors
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProduction(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL cannot be empty")
	}
	if c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres {
		return fmt.Errorf("DatabaseDriver must be %q or %q", DriverSQLite, DriverPostgres)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.PublicPath == "" {
		return fmt.Errorf("PublicPath cannot be empty")
	}
	if c.AttachmentStorage != StorageFileSystem && c.AttachmentStorage != StorageDBFile {
		return fmt.Errorf("AttachmentStorage must be %q or %q", StorageFileSystem, StorageDBFile)
	}
	if c.UploadRateLimit > 0 && c.UploadRateBurst <= 0 {
		return fmt.Errorf("UploadRateBurst must be positive when uploads are rate limited")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MaxUploadSize must be positive")
	}
	if c.PathCacheEnabled && c.PathCacheColumn == "" {
		return fmt.Errorf("PathCacheColumn cannot be empty when the path cache is enabled")
	}
	return nil
}

// ValidateProduction performs additional validation for production environment
func (c *Config) ValidateProduction() error {
	if c.DatabaseDriver != DriverPostgres {
		return fmt.Errorf("DATABASE_DRIVER must be %q in production", DriverPostgres)
	}

	if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		return fmt.Errorf("sslmode=disable is not allowed in production")
	}

	return nil
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.String("database_driver", c.DatabaseDriver),
		slog.Int("api_port", c.APIPort),
		slog.Any("allowed_origins", c.AllowedOrigins),
		slog.Float64("upload_rate_limit", c.UploadRateLimit),
		slog.String("app_root", c.AppRoot),
		slog.String("public_path", c.PublicPath),
		slog.String("attachment_path_prefix", c.AttachmentPathPrefix),
		slog.String("attachment_storage", c.AttachmentStorage),
		slog.Int64("max_upload_size", c.MaxUploadSize),
		slog.Bool("path_cache_enabled", c.PathCacheEnabled),
		slog.String("path_cache_column", c.PathCacheColumn),
		slog.Bool("path_cache_partition_by_host", c.PathCachePartitionByHost),
		slog.String("log_level", c.LogLevel),
		slog.String("app_env", c.AppEnv),
	)
}
