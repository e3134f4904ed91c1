// Package config loads server settings from a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ammar1510/chathub/internal/logger"
)

var log = logger.New("config")

// ErrMissingSecret is returned when JWT_SECRET is unset
var ErrMissingSecret = errors.New("JWT_SECRET environment variable is required")

// Config holds every runtime setting
type Config struct {
	Env            string
	Port           string
	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string

	DBType               string
	DatabaseURL          string
	SQLitePath           string
	EmbeddedPostgres     bool
	EmbeddedPostgresPort uint32
	DBConnectTimeout     time.Duration
	EmbeddedStartTimeout time.Duration
	StorageTimeout       time.Duration
	MessageRetention     int

	MaxMessageLength   int
	HistoryLimit       int
	RateLimitPerMinute int

	LogLevel string
	LogFile  string
}

func defaultConfig() Config {
	return Config{
		Env:                  "development",
		Port:                 "8080",
		TokenTTL:             24 * time.Hour,
		AllowedOrigins:       []string{"*"},
		DBType:               "postgres",
		SQLitePath:           "chathub.db",
		EmbeddedPostgres:     true,
		DBConnectTimeout:     5 * time.Second,
		EmbeddedStartTimeout: 60 * time.Second,
		StorageTimeout:       10 * time.Second,
		MessageRetention:     1000,
		MaxMessageLength:     500,
		HistoryLimit:         50,
		RateLimitPerMinute:   60,
		LogFile:              "server.log",
	}
}

// Load reads .env (if present) and then the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn(".env file not found, using environment variables")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Unparseable values are errors.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := defaultConfig()
	var errs []error

	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid count %q", key, v))
			return
		}
		*dst = n
	}
	setDuration := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		d, err := ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	setString("ENV", &cfg.Env)
	setString("PORT", &cfg.Port)
	setString("JWT_SECRET", &cfg.JWTSecret)
	setDuration("TOKEN_TTL", &cfg.TokenTTL)
	if v := getenv("ALLOWED_ORIGINS"); strings.TrimSpace(v) != "" {
		cfg.AllowedOrigins = splitList(v)
		if len(cfg.AllowedOrigins) == 0 {
			errs = append(errs, fmt.Errorf("ALLOWED_ORIGINS: no origins in %q", v))
		}
	}

	setString("DB_TYPE", &cfg.DBType)
	setString("SQLITE_PATH", &cfg.SQLitePath)
	cfg.DatabaseURL = databaseURL(getenv, cfg.DBType, cfg.SQLitePath)
	if v := strings.TrimSpace(getenv("EMBEDDED_POSTGRES")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("EMBEDDED_POSTGRES: invalid flag %q", v))
		} else {
			cfg.EmbeddedPostgres = b
		}
	}
	if v := strings.TrimSpace(getenv("EMBEDDED_POSTGRES_PORT")); v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			errs = append(errs, fmt.Errorf("EMBEDDED_POSTGRES_PORT: invalid port %q", v))
		} else {
			cfg.EmbeddedPostgresPort = uint32(port)
		}
	}
	setDuration("DB_CONNECT_TIMEOUT", &cfg.DBConnectTimeout)
	setDuration("EMBEDDED_START_TIMEOUT", &cfg.EmbeddedStartTimeout)
	setDuration("STORAGE_TIMEOUT", &cfg.StorageTimeout)
	setInt("MESSAGE_RETENTION", &cfg.MessageRetention)

	setInt("MAX_MESSAGE_LENGTH", &cfg.MaxMessageLength)
	setInt("HISTORY_LIMIT", &cfg.HistoryLimit)
	setInt("RATE_LIMIT_PER_MINUTE", &cfg.RateLimitPerMinute)

	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOG_FILE", &cfg.LogFile)

	switch cfg.DBType {
	case "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("DB_TYPE: unsupported database type %q", cfg.DBType))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, ErrMissingSecret)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether ENV=production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// databaseURL prefers DATABASE_URL, then builds one from the DB_* parts.
// An empty result means no database was configured.
func databaseURL(getenv func(string) string, dbType, sqlitePath string) string {
	if url := strings.TrimSpace(getenv("DATABASE_URL")); url != "" {
		return url
	}

	if dbType == "sqlite3" {
		return sqlitePath
	}

	host := getenv("DB_HOST")
	name := getenv("DB_NAME")
	user := getenv("DB_USER")
	if host == "" || name == "" || user == "" {
		return ""
	}

	port := getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, getenv("DB_PASSWORD"), host, port, name,
	)
}

// ParseDuration accepts Go duration strings ("90s", "1h") or bare seconds
func ParseDuration(value string) (time.Duration, error) {
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %q", value)
		}
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
