// Package config handles loading of the pipeline settings: storage paths and
// service endpoints from environment variables (populated from .env in
// main.go) and the schedule/transform definition from pipeline.yaml.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

const DefaultAPIURL = "https://api.openbrewerydb.org/breweries"

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	APIURL       string
	PageSize     int
	IncludeDir   string
	BronzePath   string
	SilverPath   string
	GoldPath     string
	RawTablePath string
	EnginePath   string
	PipelineFile string

	LogFile     string
	LogLevel    string
	MetricsPort string

	RedisURL        string
	MongoConnString string
	MongoDatabase   string
}

// LoadConfig loads application settings from environment variables.
// Every storage path defaults to a directory under INCLUDE_DIR.
func LoadConfig() (*Config, error) {
	include := getEnv("INCLUDE_DIR", "include")

	pageSize, err := strconv.Atoi(getEnv("BREWERY_API_PAGE_SIZE", "50"))
	if err != nil {
		return nil, fmt.Errorf("BREWERY_API_PAGE_SIZE: %w", err)
	}

	cfg := &Config{
		APIURL:       getEnv("BREWERY_API_URL", DefaultAPIURL),
		PageSize:     pageSize,
		IncludeDir:   include,
		BronzePath:   getEnv("BRONZE_PATH", filepath.Join(include, "bronze")),
		SilverPath:   getEnv("SILVER_PATH", filepath.Join(include, "silver")),
		GoldPath:     getEnv("GOLD_PATH", filepath.Join(include, "gold")),
		RawTablePath: getEnv("RAW_TABLE_PATH", filepath.Join(include, "raw_delta_table")),
		EnginePath:   getEnv("ENGINE_DB_PATH", filepath.Join(include, "breweries.db")),
		PipelineFile: getEnv("PIPELINE_FILE", filepath.Join("configs", "pipeline.yaml")),

		LogFile:     os.Getenv("LOG_FILE"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),

		RedisURL:        os.Getenv("REDIS_URL"),
		MongoConnString: os.Getenv("MONGO_CONNECTION_STRING"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "breweries"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("BREWERY_API_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("BREWERY_API_URL must be an http(s) URL, got %q", c.APIURL)
	}
	if c.PageSize < 0 {
		return errors.New("BREWERY_API_PAGE_SIZE must not be negative")
	}
	if c.LogLevel != "info" && c.LogLevel != "debug" {
		return fmt.Errorf("LOG_LEVEL must be info or debug, got %q", c.LogLevel)
	}
	return nil
}

// EnsureLayout creates the bronze, silver and gold directories and the raw
// table directory if they do not exist.
func (c *Config) EnsureLayout() error {
	for _, dir := range []string{c.BronzePath, c.SilverPath, c.GoldPath, c.RawTablePath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory '%s': %w", dir, err)
		}
	}
	return nil
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
