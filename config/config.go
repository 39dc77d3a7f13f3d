package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names for secrets. Values from the environment win
// over the config file so tokens can stay out of it.
const (
	EnvTelegramToken = "ISSUEBOT_TELEGRAM_TOKEN"
	EnvGithubToken   = "ISSUEBOT_GITHUB_TOKEN"
)

// Config represents the application configuration.
type Config struct {
	// Telegram bot API token (required; can come from ISSUEBOT_TELEGRAM_TOKEN)
	TelegramToken string `yaml:"telegram_token"`

	// GitHub API token (optional; anonymous access works with a low rate limit)
	GitHubToken string `yaml:"github_token"`

	// Path to the SQLite database file
	DatabasePath string `yaml:"database_path"`

	// How often subscriptions are checked for new issues
	CheckIntervalMinutes int `yaml:"check_interval_minutes"`

	// Log file path; empty logs to stderr
	LogPath string `yaml:"log_path"`

	// Log level: debug, info, warn or error
	LogLevel string `yaml:"log_level"`
}

// Load loads the configuration from a YAML file, applies defaults and
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if envToken := os.Getenv(EnvTelegramToken); envToken != "" {
		config.TelegramToken = envToken
	}
	if envToken := os.Getenv(EnvGithubToken); envToken != "" {
		config.GitHubToken = envToken
	}

	applyDefaults(&config)

	// Make database path absolute relative to the config file
	if !filepath.IsAbs(config.DatabasePath) {
		config.DatabasePath = filepath.Join(filepath.Dir(path), config.DatabasePath)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.DatabasePath == "" {
		config.DatabasePath = "issuebot.db"
	}
	if config.CheckIntervalMinutes == 0 {
		config.CheckIntervalMinutes = 20
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}

func validate(config *Config) error {
	if config.TelegramToken == "" {
		return fmt.Errorf("telegram_token is required (or set %s)", EnvTelegramToken)
	}
	if config.CheckIntervalMinutes < 1 {
		return fmt.Errorf("check_interval_minutes must be at least 1, got %d", config.CheckIntervalMinutes)
	}
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", config.LogLevel)
	}
	return nil
}

// CheckInterval returns the subscription check interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMinutes) * time.Minute
}

// CreateDefault writes a default configuration file if none exists.
func CreateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	config := &Config{
		DatabasePath:         "issuebot.db",
		CheckIntervalMinutes: 20,
		LogLevel:             "info",
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
