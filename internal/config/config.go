// Package config provides environment-driven configuration for the
// embeddings service.
package config

import (
	"os"
	"strconv"
)

const (
	// DefaultPort is the default HTTP port for the embeddings service.
	DefaultPort = 8000

	// DefaultModelPath is the local directory the model is loaded from
	// when it exists.
	DefaultModelPath = "/models/all-MiniLM-L6-v2"

	// DefaultModelID is the hub identifier fetched when the local path
	// is absent.
	DefaultModelID = "sentence-transformers/all-MiniLM-L6-v2"

	// DefaultHubURL is the model hub used to fetch models by identifier.
	DefaultHubURL = "https://huggingface.co"
)

// Config holds the service configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int

	// ModelPath is the local filesystem directory to load the model from
	// if present.
	ModelPath string

	// ModelID is the hub model identifier used when ModelPath is absent.
	ModelID string

	// HubURL is the base URL of the model hub.
	HubURL string

	// ONNXRuntimeLib is an explicit path to the ONNX Runtime shared
	// library. Empty means probe well-known locations.
	ONNXRuntimeLib string

	// LogLevel is the zerolog level name (debug, info, warn, error).
	LogLevel string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:           getEnvInt("EMBEDDINGS_PORT", DefaultPort),
		ModelPath:      getEnv("EMBEDDINGS_MODEL_PATH", DefaultModelPath),
		ModelID:        getEnv("EMBEDDINGS_MODEL", DefaultModelID),
		HubURL:         getEnv("EMBEDDINGS_HUB_URL", DefaultHubURL),
		ONNXRuntimeLib: getEnv("EMBEDDINGS_ONNXRUNTIME_LIB", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}
