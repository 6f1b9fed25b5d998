package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string // PGCONTENTS_DB
	JWKSURL     string // PGCONTENTS_JWKS_URL; empty enables the debug header fallback
	CORSOrigins string

	// MaxFileSizeBytes bounds encrypted content size. Unlimited disables the
	// check.
	MaxFileSizeBytes int64

	// EncryptionPassword is the master password content is written under.
	// Empty means content is stored unencrypted.
	EncryptionPassword string

	// EncryptionFallbacks are retired master passwords still accepted for
	// reads. An empty entry stands for content written unencrypted.
	EncryptionFallbacks []string

	// LogDir enables file logging when set (in addition to stdout).
	LogDir string

	// Debug enables the X-Forwarded-User auth fallback
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:                getEnv("PORT", "8888"),
		Environment:         env,
		DatabaseURL:         getEnv("PGCONTENTS_DB", ""),
		JWKSURL:             getEnv("PGCONTENTS_JWKS_URL", ""),
		CORSOrigins:         getEnv("CORS_ORIGINS", "http://localhost:8889"),
		MaxFileSizeBytes:    getEnvInt64("PGCONTENTS_MAX_FILE_SIZE", UnlimitedFileSize),
		EncryptionPassword:  getEnv("PGCONTENTS_ENCRYPTION_PASSWORD", ""),
		EncryptionFallbacks: getEnvList("PGCONTENTS_ENCRYPTION_FALLBACKS"),
		LogDir:              getEnv("PGCONTENTS_LOG_DIR", ""),
		// Debug defaults to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvList splits a comma-separated variable. Entries are not trimmed of
// inner whitespace; an empty entry is preserved so a trailing comma can name
// the unencrypted legacy fallback.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}
