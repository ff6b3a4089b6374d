// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// JWT Authentication. The previous secret is kept valid during rotation.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTSecretPrevious string `koanf:"jwt_secret_previous"`

	// Redis (optional; rate limiting falls back to in-memory when unset)
	RedisURL string `koanf:"redis_url"`

	// Change feed tuning
	FeedPollIntervalMS int `koanf:"feed_poll_interval_ms"`
	FeedPingIntervalS  int `koanf:"feed_ping_interval_s"`

	// Map storage (S3-compatible object storage for uploaded battle maps)
	MapBucketName      string `koanf:"map_bucket_name"`
	MapAccessKeyID     string `koanf:"map_access_key_id"`
	MapSecretAccessKey string `koanf:"map_secret_access_key"`
	MapEndpoint        string `koanf:"map_endpoint"`
	MapMaxUploadSizeMB int    `koanf:"map_max_upload_size_mb"`

	// CORS (browser clients; empty list disables cross-origin access)
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Profiling (pprof endpoints, refused outside development)
	ProfilingEnabled bool `koanf:"profiling_enabled"`

	// Tracing
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL          = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret            = errors.New("JWT_SECRET is required")
	ErrMissingMapBucketName        = errors.New("MAP_BUCKET_NAME is required")
	ErrMissingMapAccessKeyID       = errors.New("MAP_ACCESS_KEY_ID is required")
	ErrMissingMapSecretAccessKey   = errors.New("MAP_SECRET_ACCESS_KEY is required")
	ErrMissingMapEndpoint          = errors.New("MAP_ENDPOINT is required")
	ErrInvalidPort                 = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort               = 8080
	DefaultEnv                = "development"
	DefaultFeedPollIntervalMS = 500
	DefaultFeedPingIntervalS  = 30
	DefaultMapMaxUploadSizeMB = 25
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Parse port from env, collecting error if invalid
	// Try GRIDVEIL_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"GRIDVEIL_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	pollInterval, pollErr := getEnvIntOrDefault("FEED_POLL_INTERVAL_MS", k.Int("feed_poll_interval_ms"), DefaultFeedPollIntervalMS)
	if pollErr != nil {
		loadErrs = append(loadErrs, pollErr)
	}

	pingInterval, pingErr := getEnvIntOrDefault("FEED_PING_INTERVAL_S", k.Int("feed_ping_interval_s"), DefaultFeedPingIntervalS)
	if pingErr != nil {
		loadErrs = append(loadErrs, pingErr)
	}

	maxUploadSize, uploadSizeErr := getEnvIntOrDefault("MAP_MAX_UPLOAD_SIZE_MB", k.Int("map_max_upload_size_mb"), DefaultMapMaxUploadSizeMB)
	if uploadSizeErr != nil {
		loadErrs = append(loadErrs, uploadSizeErr)
	}

	corsOrigins := k.Strings("cors_allowed_origins")
	if val := os.Getenv("CORS_ALLOWED_ORIGINS"); val != "" {
		corsOrigins = nil
		for _, origin := range strings.Split(val, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				corsOrigins = append(corsOrigins, origin)
			}
		}
	}

	profilingEnabled := k.Bool("profiling_enabled")
	if val := os.Getenv("PROFILING_ENABLED"); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			profilingEnabled = true
		case "false", "0", "no", "off":
			profilingEnabled = false
		}
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:               port,
		Env:                getEnvOrDefaultMulti([]string{"GRIDVEIL_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:        getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		JWTSecret:          getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTSecretPrevious:  getEnvOrKoanf("JWT_SECRET_PREVIOUS", k, "jwt_secret_previous"),
		RedisURL:           getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		FeedPollIntervalMS: pollInterval,
		FeedPingIntervalS:  pingInterval,
		MapBucketName:      getEnvOrKoanf("MAP_BUCKET_NAME", k, "map_bucket_name"),
		MapAccessKeyID:     getEnvOrKoanf("MAP_ACCESS_KEY_ID", k, "map_access_key_id"),
		MapSecretAccessKey: getEnvOrKoanf("MAP_SECRET_ACCESS_KEY", k, "map_secret_access_key"),
		MapEndpoint:        getEnvOrKoanf("MAP_ENDPOINT", k, "map_endpoint"),
		MapMaxUploadSizeMB: maxUploadSize,
		CORSAllowedOrigins: corsOrigins,
		ProfilingEnabled:   profilingEnabled,
		OTLPEndpoint:       getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
// Note: A port value of 0 from a YAML file will fall back to the default; port 0 is not supported in YAML files.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}

	// Map storage is optional. Only validate fields if any storage value is set.
	if c.MapBucketName != "" || c.MapAccessKeyID != "" || c.MapSecretAccessKey != "" || c.MapEndpoint != "" {
		if c.MapBucketName == "" {
			errs = append(errs, ErrMissingMapBucketName)
		}
		if c.MapAccessKeyID == "" {
			errs = append(errs, ErrMissingMapAccessKeyID)
		}
		if c.MapSecretAccessKey == "" {
			errs = append(errs, ErrMissingMapSecretAccessKey)
		}
		if c.MapEndpoint == "" {
			errs = append(errs, ErrMissingMapEndpoint)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                   fmt.Sprintf("%d", c.Port),
		"env":                    c.Env,
		"database_url":           maskDatabaseURL(c.DatabaseURL),
		"jwt_secret":             maskSecret(c.JWTSecret),
		"jwt_secret_previous":    maskSecret(c.JWTSecretPrevious),
		"redis_url":              maskDatabaseURL(c.RedisURL),
		"feed_poll_interval_ms":  fmt.Sprintf("%d", c.FeedPollIntervalMS),
		"feed_ping_interval_s":   fmt.Sprintf("%d", c.FeedPingIntervalS),
		"map_bucket_name":        c.MapBucketName,
		"map_access_key_id":      maskSecret(c.MapAccessKeyID),
		"map_secret_access_key":  maskSecret(c.MapSecretAccessKey),
		"map_endpoint":           c.MapEndpoint,
		"map_max_upload_size_mb": fmt.Sprintf("%d", c.MapMaxUploadSizeMB),
		"cors_allowed_origins":   strings.Join(c.CORSAllowedOrigins, ","),
		"profiling_enabled":      fmt.Sprintf("%t", c.ProfilingEnabled),
		"otlp_endpoint":          c.OTLPEndpoint,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
