// Package config holds client configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds catalog client configuration.
type Config struct {
	BaseURL         string // backend root, e.g. https://localhost:3000
	Timeout         time.Duration
	UserAgent       string
	PageSize        int
	RequestsPerSec  int // 0 disables client-side pacing
	ETagCacheSize   int
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SessionFile     string
	OutputFile      string
	OutputFormat    string // csv, json, or dual
	MetricsAddr     string
	Verbose         bool
}

// DefaultConfig returns the defaults for the demo backend.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://localhost:3000",
		Timeout:         10 * time.Second,
		UserAgent:       "bookcat/1.0",
		PageSize:        5,
		RequestsPerSec:  0,
		ETagCacheSize:   4096,
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: time.Hour,
		SessionFile:     defaultSessionFile(),
		OutputFile:      "output/books.csv",
		OutputFormat:    "csv",
		MetricsAddr:     "",
		Verbose:         false,
	}
}

func defaultSessionFile() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home + "/.bookcat/session.json"
	}
	return ".bookcat-session.json"
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.RequestsPerSec < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.ETagCacheSize <= 0 {
		return fmt.Errorf("etag cache size must be positive")
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token ttl must be positive")
	}
	if c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("refresh token ttl must be positive")
	}
	if c.AccessTokenTTL > c.RefreshTokenTTL {
		return fmt.Errorf("access token ttl (%s) cannot exceed refresh token ttl (%s)", c.AccessTokenTTL, c.RefreshTokenTTL)
	}
	if c.SessionFile == "" {
		return fmt.Errorf("session file cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	return nil
}

// EnvString reads a string environment override.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment override.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}
