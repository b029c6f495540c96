package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Gemini    GeminiConfig
	Database  DatabaseConfig
	Azure     AzureConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Vitals    VitalsConfig
	Logging   LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port                 string
	Environment          string
	ShutdownTimeout      time.Duration
	MaxUploadBytes       int64
	SlowRequestThreshold time.Duration
}

// GeminiConfig holds the generative model configuration. The API key is
// not required at load time; the gateway reports it missing on first use.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// DatabaseConfig holds database connection configuration. An empty URL
// disables the profile routes.
type DatabaseConfig struct {
	URL             string
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

// AzureConfig holds Azure service configuration
type AzureConfig struct {
	Storage StorageConfig
}

// StorageConfig holds Azure Blob Storage configuration
type StorageConfig struct {
	AccountName     string
	AccountKey      string
	ReportContainer string
	// MemoryArchive keeps archived PDFs in process memory when no account
	// is configured
	MemoryArchive bool
}

// Enabled reports whether PDF archiving is configured.
func (s StorageConfig) Enabled() bool {
	return s.AccountName != "" && s.AccountKey != ""
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// CORSConfig holds cross-origin settings
type CORSConfig struct {
	AllowedOrigins []string
}

// VitalsConfig holds vitals simulator settings
type VitalsConfig struct {
	Interval time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console; empty keeps the environment default
}

// Load reads configuration from an optional .env file, environment
// variables and defaults.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.CORS.AllowedOrigins = splitList(v.GetString("cors.allowedorigins"))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)
	v.SetDefault("server.maxuploadbytes", 10<<20)
	v.SetDefault("server.slowrequestthreshold", 5*time.Second)

	// Gemini defaults
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.baseurl", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("gemini.timeout", 60*time.Second)

	// Database defaults
	v.SetDefault("database.maxconns", 10)
	v.SetDefault("database.connmaxlifetime", 5*time.Minute)

	// Azure Storage defaults
	v.SetDefault("azure.storage.reportcontainer", "docmate-reports")

	v.SetDefault("ratelimit.requestspersecond", 5.0)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("cors.allowedorigins", "*")
	v.SetDefault("vitals.interval", 2*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")
	v.BindEnv("server.shutdowntimeout", "SHUTDOWN_TIMEOUT")
	v.BindEnv("server.maxuploadbytes", "MAX_UPLOAD_BYTES")
	v.BindEnv("server.slowrequestthreshold", "SLOW_REQUEST_THRESHOLD")

	// Gemini
	v.BindEnv("gemini.apikey", "GEMINI_API_KEY")
	v.BindEnv("gemini.model", "GEMINI_MODEL")
	v.BindEnv("gemini.baseurl", "GEMINI_BASE_URL")
	v.BindEnv("gemini.timeout", "GEMINI_TIMEOUT")

	// Database
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.maxconns", "DATABASE_MAX_CONNS")

	// Azure Storage
	v.BindEnv("azure.storage.accountname", "AZURE_STORAGE_ACCOUNT_NAME")
	v.BindEnv("azure.storage.accountkey", "AZURE_STORAGE_ACCOUNT_KEY")
	v.BindEnv("azure.storage.reportcontainer", "AZURE_STORAGE_REPORT_CONTAINER")
	v.BindEnv("azure.storage.memoryarchive", "REPORT_MEMORY_ARCHIVE")

	v.BindEnv("ratelimit.requestspersecond", "RATE_LIMIT_RPS")
	v.BindEnv("ratelimit.burst", "RATE_LIMIT_BURST")
	v.BindEnv("cors.allowedorigins", "CORS_ALLOWED_ORIGINS")
	v.BindEnv("vitals.interval", "VITALS_INTERVAL")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.maxuploadbytes must be positive")
	}

	if c.Gemini.Model == "" {
		return fmt.Errorf("gemini.model is required")
	}

	if c.Gemini.BaseURL == "" {
		return fmt.Errorf("gemini.baseurl is required")
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}

	if c.Vitals.Interval <= 0 {
		return fmt.Errorf("vitals.interval must be positive")
	}

	if (c.Azure.Storage.AccountName == "") != (c.Azure.Storage.AccountKey == "") {
		return fmt.Errorf("azure storage requires both account name and account key")
	}

	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
