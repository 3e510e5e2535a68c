// Package config provides environment-based configuration for the licensing service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the licensing service.
type Config struct {
	// Database configuration
	DatabaseDSN string

	// Authentication
	JWTSecret  string
	JWTExpiry  time.Duration
	BcryptCost int

	// Email delivery
	MailEndpoint string
	MailAPIKey   string
	MailFrom     string

	// Base URL used to build invitation acceptance links.
	InviteBaseURL string

	// Payment verification stub. Purchases succeed only when the
	// submitted phone number matches this value.
	PaymentTestPhone string

	// Server configuration
	APIHost string
	APIPort int

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseDSN:      getEnv("DATABASE_URL", "postgres://localhost:5432/powerflow?sslmode=disable"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTExpiry:        getDurationEnv("JWT_EXPIRY", 7*24*time.Hour),
		BcryptCost:       getIntEnv("BCRYPT_COST", 12),
		MailEndpoint:     getEnv("MAIL_ENDPOINT", "https://api.resend.com/emails"),
		MailAPIKey:       getEnv("MAIL_API_KEY", ""),
		MailFrom:         getEnv("MAIL_FROM", "PowerFlow <onboarding@resend.dev>"),
		InviteBaseURL:    getEnv("INVITE_BASE_URL", "http://localhost:3000"),
		PaymentTestPhone: getEnv("PAYMENT_TEST_PHONE", "0966262458"),
		APIHost:          getEnv("API_HOST", "0.0.0.0"),
		APIPort:          getIntEnv("API_PORT", 8080),
		ShutdownTimeout:  getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	return nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	return &Config{
		DatabaseDSN:      getEnv("DATABASE_URL", "postgres://localhost:5432/powerflow?sslmode=disable"),
		JWTSecret:        getEnv("JWT_SECRET", "development-secret-key-min-32-chars"),
		JWTExpiry:        getDurationEnv("JWT_EXPIRY", 7*24*time.Hour),
		BcryptCost:       getIntEnv("BCRYPT_COST", 10),
		MailEndpoint:     getEnv("MAIL_ENDPOINT", "https://api.resend.com/emails"),
		MailAPIKey:       getEnv("MAIL_API_KEY", ""),
		MailFrom:         getEnv("MAIL_FROM", "PowerFlow <onboarding@resend.dev>"),
		InviteBaseURL:    getEnv("INVITE_BASE_URL", "http://localhost:3000"),
		PaymentTestPhone: getEnv("PAYMENT_TEST_PHONE", "0966262458"),
		APIHost:          getEnv("API_HOST", "0.0.0.0"),
		APIPort:          getIntEnv("API_PORT", 8080),
		ShutdownTimeout:  getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
