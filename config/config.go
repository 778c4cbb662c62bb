package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the process configuration. Values come from the environment
// (optionally seeded from a .env file) with sensible local defaults.
type Config struct {
	// Paths
	DBPath       string // sqlite database file
	DataDir      string // settings, secret key material, logs
	SettingsPath string // settings JSON file
	LogPath      string // rotating log file, empty disables file output

	// Analysis
	FFprobePath string // primary duration probe
	AfinfoPath  string // fallback probe (macOS)
	WorkerCount int    // hashing/metadata worker pool size

	// Remote object store
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// Server
	HTTPAddr string

	// Logging
	LogLevel string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override variables already set in the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	dataDir := getEnv("SONEXA_DATA_DIR", "data")

	return &Config{
		DBPath:       getEnv("SONEXA_DB_PATH", filepath.Join(dataDir, "sonexa.db")),
		DataDir:      dataDir,
		SettingsPath: getEnv("SONEXA_SETTINGS_PATH", filepath.Join(dataDir, "settings.json")),
		LogPath:      getEnv("SONEXA_LOG_PATH", filepath.Join(dataDir, "logs", "sonexa.log")),

		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
		AfinfoPath:  getEnv("AFINFO_PATH", "afinfo"),
		WorkerCount: getEnvInt("WORKER_COUNT", 4),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "sonexa-files"),
		MinioRegion:    getEnv("MINIO_REGION", ""),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", true),

		HTTPAddr: getEnv("SONEXA_HTTP_ADDR", ":8080"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}
