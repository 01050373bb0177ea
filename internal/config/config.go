package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	// HTTP server
	Port            string
	ShutdownTimeout time.Duration
	RateLimitPerMin int

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	SQLiteDBPath string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Ledger
	WriteTimeout time.Duration
	CacheSize    int
	CacheTTL     time.Duration

	// Migration
	RetentionPolicy string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL          string
	AMQPExchange     string
	AMQPPurgeQueue   string
	AMQPExportQueue  string
	WorkerConcurrent int

	// Advisor, disabled when GeminiAPIKey is empty
	GeminiAPIKey string
	GeminiModel  string

	// Google Sheets export, disabled when GoogleSpreadsheetID is empty
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// fileConfig is the optional TOML file. Values it sets become the defaults
// that environment variables override.
type fileConfig struct {
	Server struct {
		Port            string `toml:"port"`
		ShutdownTimeout string `toml:"shutdown_timeout"`
		RateLimitPerMin int    `toml:"rate_limit_per_min"`
	} `toml:"server"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Storage struct {
		Path string `toml:"path"`
	} `toml:"storage"`
	Auth struct {
		JWTSecret string `toml:"jwt_secret"`
		TokenTTL  string `toml:"token_ttl"`
	} `toml:"auth"`
	Ledger struct {
		WriteTimeout string `toml:"write_timeout"`
		CacheSize    int    `toml:"cache_size"`
		CacheTTL     string `toml:"cache_ttl"`
	} `toml:"ledger"`
	Migration struct {
		Retention string `toml:"retention"`
	} `toml:"migration"`
	AMQP struct {
		URL         string `toml:"url"`
		Exchange    string `toml:"exchange"`
		PurgeQueue  string `toml:"purge_queue"`
		ExportQueue string `toml:"export_queue"`
		Concurrency int    `toml:"concurrency"`
	} `toml:"amqp"`
	Advisor struct {
		APIKey string `toml:"api_key"`
		Model  string `toml:"model"`
	} `toml:"advisor"`
	Sheets struct {
		SpreadsheetID      string `toml:"spreadsheet_id"`
		ServiceAccountFile string `toml:"service_account_file"`
	} `toml:"sheets"`
}

func defaults() *Config {
	return &Config{
		Port:             "8081",
		ShutdownTimeout:  10 * time.Second,
		RateLimitPerMin:  120,
		LogLevel:         "info",
		LogFormat:        "text",
		SQLiteDBPath:     "./data/balanceview.db",
		TokenTTL:         24 * time.Hour,
		WriteTimeout:     10 * time.Second,
		CacheSize:        1000,
		CacheTTL:         5 * time.Minute,
		RetentionPolicy:  "retain",
		AMQPExchange:     "balanceview",
		AMQPPurgeQueue:   "legacy_purge",
		AMQPExportQueue:  "ledger_export",
		WorkerConcurrent: 2,
		GeminiModel:      "gemini-2.0-flash",
	}
}

// Load builds the configuration from defaults, the TOML file named by
// BALANCEVIEW_CONFIG if any, and the environment, in increasing priority.
func Load() (*Config, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("BALANCEVIEW_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var f fileConfig
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Port, f.Server.Port)
	setInt(&c.RateLimitPerMin, f.Server.RateLimitPerMin)
	setString(&c.LogLevel, f.Log.Level)
	setString(&c.LogFormat, f.Log.Format)
	setString(&c.SQLiteDBPath, f.Storage.Path)
	setString(&c.JWTSecret, f.Auth.JWTSecret)
	setInt(&c.CacheSize, f.Ledger.CacheSize)
	setString(&c.RetentionPolicy, f.Migration.Retention)
	setString(&c.AMQPURL, f.AMQP.URL)
	setString(&c.AMQPExchange, f.AMQP.Exchange)
	setString(&c.AMQPPurgeQueue, f.AMQP.PurgeQueue)
	setString(&c.AMQPExportQueue, f.AMQP.ExportQueue)
	setInt(&c.WorkerConcurrent, f.AMQP.Concurrency)
	setString(&c.GeminiAPIKey, f.Advisor.APIKey)
	setString(&c.GeminiModel, f.Advisor.Model)
	setString(&c.GoogleSpreadsheetID, f.Sheets.SpreadsheetID)
	setString(&c.GoogleServiceAccountFile, f.Sheets.ServiceAccountFile)

	for _, d := range []struct {
		dst *time.Duration
		raw string
		key string
	}{
		{&c.ShutdownTimeout, f.Server.ShutdownTimeout, "server.shutdown_timeout"},
		{&c.TokenTTL, f.Auth.TokenTTL, "auth.token_ttl"},
		{&c.WriteTimeout, f.Ledger.WriteTimeout, "ledger.write_timeout"},
		{&c.CacheTTL, f.Ledger.CacheTTL, "ledger.cache_ttl"},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: invalid %s %q: %w", path, d.key, d.raw, err)
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MIN", c.RateLimitPerMin)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.TokenTTL = getEnvDuration("TOKEN_TTL", c.TokenTTL)

	c.WriteTimeout = getEnvDuration("LEDGER_WRITE_TIMEOUT", c.WriteTimeout)
	c.CacheSize = getEnvInt("LEDGER_CACHE_SIZE", c.CacheSize)
	c.CacheTTL = getEnvDuration("LEDGER_CACHE_TTL", c.CacheTTL)

	c.RetentionPolicy = getEnv("LEGACY_RETENTION", c.RetentionPolicy)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPPurgeQueue = getEnv("AMQP_PURGE_QUEUE", c.AMQPPurgeQueue)
	c.AMQPExportQueue = getEnv("AMQP_EXPORT_QUEUE", c.AMQPExportQueue)
	c.WorkerConcurrent = getEnvInt("WORKER_CONCURRENCY", c.WorkerConcurrent)

	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.GoogleServiceAccountJSON)
	c.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", c.GoogleServiceAccountFile)
}

// AMQPEnabled reports whether change events and purges go through a broker.
func (c *Config) AMQPEnabled() bool { return c.AMQPURL != "" }

func (c *Config) AdvisorEnabled() bool { return c.GeminiAPIKey != "" }

func (c *Config) SheetsEnabled() bool { return c.GoogleSpreadsheetID != "" }

// Validate checks the configuration and returns every problem at once.
// serverSide adds the checks only the HTTP server needs.
func (c *Config) Validate(serverSide bool) error {
	var errors []string

	if serverSide {
		if port, err := strconv.Atoi(c.Port); err != nil {
			errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
		}
		if len(c.JWTSecret) < 16 {
			errors = append(errors, "JWT secret must be at least 16 characters")
		}
		if c.RateLimitPerMin < 1 {
			errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMin))
		}
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	}

	switch strings.ToLower(c.RetentionPolicy) {
	case "retain", "purge":
	default:
		errors = append(errors, fmt.Sprintf("invalid retention policy '%s': must be 'retain' or 'purge'", c.RetentionPolicy))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "pretty":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text, json or pretty", c.LogFormat))
	}

	if c.WriteTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid write timeout %v: must be at least 100ms", c.WriteTimeout))
	}
	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.TokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.TokenTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPPurgeQueue == "" || c.AMQPExportQueue == "" {
			errors = append(errors, "AMQP queue names cannot be empty when AMQP URL is provided")
		}
		if c.WorkerConcurrent < 1 {
			errors = append(errors, fmt.Sprintf("invalid worker concurrency %d: must be at least 1", c.WorkerConcurrent))
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets export")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
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
		if i, err := strconv.Atoi(value); err == nil {
			return i
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
