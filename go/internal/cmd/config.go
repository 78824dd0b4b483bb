package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service settings. Values come from an optional YAML file
// with environment variables filling the gaps.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Locks struct {
		LeaseMinutes int `yaml:"lease_minutes"`
		SweepMinutes int `yaml:"sweep_minutes"`
	} `yaml:"locks"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the Postgres connection URL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func databaseConfigFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "gamenight"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

// loadConfig reads the YAML config file when present and fills the rest
// from environment variables. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	var config Config

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if config.Server.Port == "" {
		config.Server.Port = getEnv("PORT", "8080")
	}
	if config.Locks.LeaseMinutes <= 0 {
		config.Locks.LeaseMinutes = getEnvAsInt("LOCK_LEASE_MINUTES", 5)
	}
	if config.Locks.SweepMinutes <= 0 {
		config.Locks.SweepMinutes = getEnvAsInt("LOCK_SWEEP_MINUTES", config.Locks.LeaseMinutes)
	}

	return &config, nil
}

func (c *Config) lockLease() time.Duration {
	return time.Duration(c.Locks.LeaseMinutes) * time.Minute
}

func (c *Config) sweepInterval() time.Duration {
	return time.Duration(c.Locks.SweepMinutes) * time.Minute
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
