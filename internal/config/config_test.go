package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults verifies the documented defaults.
func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "/models/all-MiniLM-L6-v2", cfg.ModelPath)
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.ModelID)
	assert.Equal(t, "https://huggingface.co", cfg.HubURL)
	assert.Empty(t, cfg.ONNXRuntimeLib)
	assert.Equal(t, "info", cfg.LogLevel)
}

// TestLoad_EnvOverrides verifies environment variables take precedence.
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("EMBEDDINGS_PORT", "9100")
	t.Setenv("EMBEDDINGS_MODEL_PATH", "/srv/models/minilm")
	t.Setenv("EMBEDDINGS_MODEL", "org/custom-model")
	t.Setenv("EMBEDDINGS_HUB_URL", "http://hub.internal")
	t.Setenv("EMBEDDINGS_ONNXRUNTIME_LIB", "/opt/ort/libonnxruntime.so")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "/srv/models/minilm", cfg.ModelPath)
	assert.Equal(t, "org/custom-model", cfg.ModelID)
	assert.Equal(t, "http://hub.internal", cfg.HubURL)
	assert.Equal(t, "/opt/ort/libonnxruntime.so", cfg.ONNXRuntimeLib)
	assert.Equal(t, "debug", cfg.LogLevel)
}

// TestLoad_InvalidPort falls back to the default rather than failing.
func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("EMBEDDINGS_PORT", "not-a-port")

	cfg := Load()

	assert.Equal(t, DefaultPort, cfg.Port)
}
