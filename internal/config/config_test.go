package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/echo/internal/memory"
)

var envKeys = []string{
	"APP_BIND_ADDR", "APP_SHUTDOWN_TIMEOUT", "APP_SESSION_INACTIVITY_TIMEOUT",
	"APP_METRICS_NAMESPACE", "APP_ALLOW_ANY_ORIGIN",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT",
	"GROQ_API_KEY", "LLM_API_KEY", "LLM_API_URL", "LLM_MODEL", "LLM_MAX_ATTEMPTS",
	"LLM_ATTEMPT_TIMEOUT", "LLM_RETRY_BACKOFF", "LLM_RATE_LIMIT_BACKOFF", "LLM_INTENT_CACHE_SIZE",
	"PERSONA", "MEMORY_CAPACITY", "MEMORY_EVICTION", "MEMORY_ENCRYPTION_KEY", "MEMORY_JOURNAL",
	"DATABASE_URL", "REDIS_URL",
	"VOICE_PROVIDER", "STT_API_KEY", "STT_API_URL", "STT_MODEL",
	"TTS_API_KEY", "TTS_API_URL", "TTS_MODEL", "TTS_VOICE",
	"ECHO_DOTENV_PROBE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.BindAddr)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionInactivityTimeout)
	assert.Equal(t, "echo", cfg.MetricsNamespace)
	assert.Equal(t, "https://api.groq.com/openai/v1/chat/completions", cfg.LLMAPIURL)
	assert.Equal(t, "llama3-8b-8192", cfg.LLMModel)
	assert.Equal(t, 3, cfg.LLMMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.LLMAttemptTimeout)
	assert.Equal(t, 3*time.Second, cfg.LLMRetryBackoff)
	assert.Equal(t, 5*time.Second, cfg.LLMRateLimitWait)
	assert.Equal(t, 128, cfg.LLMIntentCacheSize)
	assert.Equal(t, "caring", cfg.Persona)
	assert.Equal(t, 5, cfg.MemoryCapacity)
	assert.Equal(t, memory.EvictGlobal, cfg.MemoryEviction)
	assert.Nil(t, cfg.MemoryEncryptionKey)
	assert.Equal(t, "none", cfg.MemoryJournal)
	assert.Equal(t, "auto", cfg.VoiceProvider)
	assert.Empty(t, cfg.LLMAPIKey)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadAPIKeyAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_API_KEY", "fallback")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fallback", cfg.LLMAPIKey)
	assert.Equal(t, "fallback", cfg.STTAPIKey)

	t.Setenv("GROQ_API_KEY", " primary ")
	t.Setenv("TTS_API_KEY", "speech")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.LLMAPIKey)
	assert.Equal(t, "speech", cfg.TTSAPIKey)
}

func TestLoadMemorySettings(t *testing.T) {
	clearEnv(t)
	key := make([]byte, 32)
	key[0] = 7
	t.Setenv("MEMORY_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(key))
	t.Setenv("MEMORY_EVICTION", "Session")
	t.Setenv("MEMORY_CAPACITY", "12")
	t.Setenv("MEMORY_JOURNAL", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, key, cfg.MemoryEncryptionKey)
	assert.Equal(t, memory.EvictPerSession, cfg.MemoryEviction)
	assert.Equal(t, 12, cfg.MemoryCapacity)
	assert.Equal(t, "redis", cfg.MemoryJournal)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"APP_SESSION_INACTIVITY_TIMEOUT": "1s",
		"APP_SHUTDOWN_TIMEOUT":           "soon",
		"APP_ALLOW_ANY_ORIGIN":           "maybe",
		"LLM_MAX_ATTEMPTS":               "0",
		"LLM_INTENT_CACHE_SIZE":          "-1",
		"MEMORY_CAPACITY":                "0",
		"MEMORY_EVICTION":                "lifo",
		"MEMORY_ENCRYPTION_KEY":          "too-short",
		"MEMORY_JOURNAL":                 "postgres",
		"PERSONA":                        "grumpy",
		"VOICE_PROVIDER":                 "carrier-pigeon",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Unsetenv("ECHO_DOTENV_PROBE"))
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ECHO_DOTENV_PROBE=from-file\n"), 0o600))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("ECHO_DOTENV_PROBE"))
}
