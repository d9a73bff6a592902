package config

import (
	"os"
	"strings"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// GetEnv returns the value of an environment variable or a default value if not set.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvironment returns the environment named by SYNCSTOCK_SERVER_ENVIRONMENT,
// lower-cased, defaulting to development.
func GetEnvironment() string {
	return strings.ToLower(GetEnv("SYNCSTOCK_SERVER_ENVIRONMENT", EnvDevelopment))
}

// IsProductionLike reports whether env is staging or production.
func IsProductionLike(env string) bool {
	env = strings.ToLower(env)
	return env == EnvStaging || env == EnvProduction
}

// IsDevelopment reports whether the server runs in the development environment.
func (c ServerConfig) IsDevelopment() bool {
	return strings.ToLower(c.Environment) == EnvDevelopment
}

// IsProductionLike reports whether the server runs in staging or production.
func (c ServerConfig) IsProductionLike() bool {
	return IsProductionLike(c.Environment)
}
