package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Registry  RegistryConfig  `yaml:"registry"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Cache     CacheConfig     `yaml:"cache"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	UserAgent string          `yaml:"user_agent"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port        int      `yaml:"port" validate:"required,min=1,max=65535"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// RegistryConfig locates the flat route registry file
type RegistryConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// ScraperConfig contains browser and scrape settings
type ScraperConfig struct {
	BaseURL             string `yaml:"base_url" validate:"required,url"`
	ChromePath          string `yaml:"chrome_path"`
	NavTimeoutSeconds   int    `yaml:"nav_timeout_seconds" validate:"required,min=1"`
	ElementWaitSeconds  int    `yaml:"element_wait_seconds" validate:"required,min=1"`
	RequestDelaySeconds int    `yaml:"request_delay_seconds" validate:"min=0"`
	DailyRefreshEnabled bool   `yaml:"daily_refresh_enabled"`
	DailyRefreshTime    string `yaml:"daily_refresh_time"`
}

// CacheConfig controls timetable snapshot freshness
type CacheConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" validate:"required,min=1"`
}

// CleanupConfig controls expired snapshot removal
type CleanupConfig struct {
	RetentionHours int `yaml:"retention_hours" validate:"required,min=1"`
}

// RateLimitConfig bounds scrape-triggering HTTP requests
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" validate:"min=0"`
	RequestsPerHour   int  `yaml:"requests_per_hour" validate:"min=0"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Registry: RegistryConfig{
			Path: "data/routes.json",
		},
		Scraper: ScraperConfig{
			BaseURL:             "https://www.ratbv.ro/afisaje",
			ChromePath:          "",
			NavTimeoutSeconds:   30,
			ElementWaitSeconds:  5,
			RequestDelaySeconds: 2,
			DailyRefreshEnabled: false,
			DailyRefreshTime:    "05:30",
		},
		Cache: CacheConfig{
			TTLMinutes: 5,
		},
		Cleanup: CleanupConfig{
			RetentionHours: 24,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 10,
			RequestsPerHour:   120,
		},
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults; environment variables override file values either way.
func LoadConfig(filepath string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(filepath); err == nil {
		data, err := os.ReadFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvOverrides()

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// applyEnvOverrides lets the deployment environment win over the file for
// the values that differ per host.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("CHROME_PATH"); v != "" {
		c.Scraper.ChromePath = v
	}
	if v := os.Getenv("REGISTRY_PATH"); v != "" {
		c.Registry.Path = v
	}
}

// GetNavTimeout returns the whole-session navigation timeout as a duration
func (c *ScraperConfig) GetNavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// GetElementWait returns the implicit element wait as a duration
func (c *ScraperConfig) GetElementWait() time.Duration {
	return time.Duration(c.ElementWaitSeconds) * time.Second
}

// GetRequestDelay returns the delay between scheduled scrapes as a duration
func (c *ScraperConfig) GetRequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// GetTTL returns the snapshot freshness window as a duration
func (c *CacheConfig) GetTTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// GetRetention returns the snapshot retention window as a duration
func (c *CleanupConfig) GetRetention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}
