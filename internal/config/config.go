package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Search      SearchConfig
	Sources     SourcesConfig
	Admin       AdminConfig
	Jobs        JobsConfig
	Logging     LoggingConfig
	Environment string
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
}

// SearchConfig points at the search daemon.
type SearchConfig struct {
	Host              string
	Port              int
	Protocol          string
	APIKey            string
	ConnectionTimeout time.Duration
}

// BaseURL assembles the daemon address.
func (s SearchConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", s.Protocol, s.Host, s.Port)
}

// SourcesConfig holds upstream credentials for the ingestion adapters.
type SourcesConfig struct {
	APIBaseURL string
	APIKey     string
	ScrapeURL  string
}

// AdminConfig gates the editorial surface: a username allowlist plus one
// shared bcrypt password hash.
type AdminConfig struct {
	Allowlist    []string
	PasswordHash string
}

type JobsConfig struct {
	RetryIngestion  int
	RetryProjection int
	Workers         int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		},
		Search: SearchConfig{
			Host:              getEnv("SEARCH_HOST", "localhost"),
			Port:              getEnvInt("SEARCH_PORT", 8108),
			Protocol:          getEnv("SEARCH_PROTOCOL", "http"),
			APIKey:            getEnv("SEARCH_API_KEY", ""),
			ConnectionTimeout: time.Duration(getEnvInt("SEARCH_CONNECTION_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		Sources: SourcesConfig{
			APIBaseURL: getEnv("SOURCE_API_BASE_URL", ""),
			APIKey:     getEnv("SOURCE_API_KEY", ""),
			ScrapeURL:  getEnv("SOURCE_SCRAPE_URL", ""),
		},
		Admin: AdminConfig{
			Allowlist:    getEnvList("ADMIN_ALLOWLIST"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Jobs: JobsConfig{
			RetryIngestion:  getEnvInt("JOB_RETRY_INGESTION", 3),
			RetryProjection: getEnvInt("JOB_RETRY_PROJECTION", 5),
			Workers:         getEnvInt("JOB_WORKERS", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Search.APIKey == "" {
		return Config{}, fmt.Errorf("SEARCH_API_KEY is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
