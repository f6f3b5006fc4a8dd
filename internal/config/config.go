// Package config provides configuration for the session orchestrator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Model provider
	LLMBaseURL string        `yaml:"llm_base_url"`
	LLMAPIKey  string        `yaml:"llm_api_key"`
	LLMModel   string        `yaml:"llm_model"`
	LLMTimeout time.Duration `yaml:"-"`

	// Turn and presence timing
	ReplyTimeout      time.Duration `yaml:"-"`
	HeartbeatInterval time.Duration `yaml:"-"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// fileConfig mirrors Config for YAML decoding with millisecond fields.
type fileConfig struct {
	HTTPPort            int    `yaml:"http_port"`
	DatabaseURL         string `yaml:"database_url"`
	LLMBaseURL          string `yaml:"llm_base_url"`
	LLMAPIKey           string `yaml:"llm_api_key"`
	LLMModel            string `yaml:"llm_model"`
	LLMTimeoutMs        int    `yaml:"llm_timeout_ms"`
	ReplyTimeoutMs      int    `yaml:"reply_timeout_ms"`
	HeartbeatIntervalMs int    `yaml:"heartbeat_interval_ms"`
	LogLevel            string `yaml:"log_level"`
}

// Load loads configuration from environment variables, with an optional YAML
// file overlay named by CONFIG_FILE.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", "file:zenithwell.db?cache=shared&mode=rwc"),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "http://localhost:4000"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o"),
		LLMTimeout:        time.Duration(getEnvInt("LLM_TIMEOUT_MS", 60000)) * time.Millisecond,
		ReplyTimeout:      time.Duration(getEnvInt("REPLY_TIMEOUT_MS", 10000)) * time.Millisecond,
		HeartbeatInterval: time.Duration(getEnvInt("HEARTBEAT_INTERVAL_MS", 30000)) * time.Millisecond,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if fc.HTTPPort != 0 {
		c.HTTPPort = fc.HTTPPort
	}
	if fc.DatabaseURL != "" {
		c.DatabaseURL = fc.DatabaseURL
	}
	if fc.LLMBaseURL != "" {
		c.LLMBaseURL = fc.LLMBaseURL
	}
	if fc.LLMAPIKey != "" {
		c.LLMAPIKey = fc.LLMAPIKey
	}
	if fc.LLMModel != "" {
		c.LLMModel = fc.LLMModel
	}
	if fc.LLMTimeoutMs != 0 {
		c.LLMTimeout = time.Duration(fc.LLMTimeoutMs) * time.Millisecond
	}
	if fc.ReplyTimeoutMs != 0 {
		c.ReplyTimeout = time.Duration(fc.ReplyTimeoutMs) * time.Millisecond
	}
	if fc.HeartbeatIntervalMs != 0 {
		c.HeartbeatInterval = time.Duration(fc.HeartbeatIntervalMs) * time.Millisecond
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
