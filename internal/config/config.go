// Package config loads environment variables and the Viper-based application configuration.
package config

import (
	"os"
	"path/filepath"

	"ecobridge/internal/logging"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from a .env file in the working directory or its parent,
// if one exists. Variables already set in the environment win.
func LoadEnv(logger logging.Logger) string {
	logger = logging.OrDefault(logger)

	for _, envFile := range []string{".env", filepath.Join("..", ".env")} {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			logger.WithError(err).Warn("Error loading .env file", logging.F("path", envFile))
			return ""
		}
		logger.Debug("Loaded environment variables", logging.F("path", envFile))
		return envFile
	}

	logger.Debug("No .env file found, using environment variables")
	return ""
}

// GetEnv retrieves an environment variable with a fallback value if not set
func GetEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return value
}
