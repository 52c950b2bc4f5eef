package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ent0n29/echo/internal/logging"
	"github.com/ent0n29/echo/internal/memory"
	"github.com/ent0n29/echo/internal/persona"
)

// Config contains all runtime settings for the assistant service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	AllowAnyOrigin           bool

	Log logging.Config

	LLMAPIKey          string
	LLMAPIURL          string
	LLMModel           string
	LLMMaxAttempts     int
	LLMAttemptTimeout  time.Duration
	LLMRetryBackoff    time.Duration
	LLMRateLimitWait   time.Duration
	LLMIntentCacheSize int

	Persona string

	MemoryCapacity      int
	MemoryEviction      memory.EvictionPolicy
	MemoryEncryptionKey []byte
	MemoryJournal       string
	DatabaseURL         string
	RedisURL            string

	VoiceProvider string
	STTAPIKey     string
	STTAPIURL     string
	STTModel      string
	TTSAPIKey     string
	TTSAPIURL     string
	TTSModel      string
	TTSVoice      string
}

// LoadDotEnv merges .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "echo"),
		Log: logging.Config{
			Level:  envOrDefault("LOG_LEVEL", "info"),
			Format: envOrDefault("LOG_FORMAT", "json"),
			Output: envOrDefault("LOG_OUTPUT", "stdout"),
		},
		LLMAPIKey:     firstNonEmpty(trimmed("GROQ_API_KEY"), trimmed("LLM_API_KEY")),
		LLMAPIURL:     envOrDefault("LLM_API_URL", "https://api.groq.com/openai/v1/chat/completions"),
		LLMModel:      envOrDefault("LLM_MODEL", "llama3-8b-8192"),
		Persona:       envOrDefault("PERSONA", string(persona.KindCaring)),
		MemoryJournal: strings.ToLower(envOrDefault("MEMORY_JOURNAL", "none")),
		DatabaseURL:   trimmed("DATABASE_URL"),
		RedisURL:      trimmed("REDIS_URL"),
		VoiceProvider: strings.ToLower(envOrDefault("VOICE_PROVIDER", "auto")),
		STTAPIURL:     envOrDefault("STT_API_URL", "https://api.groq.com/openai/v1/audio/transcriptions"),
		STTModel:      envOrDefault("STT_MODEL", "whisper-large-v3"),
		TTSAPIURL:     trimmed("TTS_API_URL"),
		TTSModel:      envOrDefault("TTS_MODEL", "tts-1"),
		TTSVoice:      envOrDefault("TTS_VOICE", "alloy"),
	}
	cfg.STTAPIKey = firstNonEmpty(trimmed("STT_API_KEY"), cfg.LLMAPIKey)
	cfg.TTSAPIKey = firstNonEmpty(trimmed("TTS_API_KEY"), cfg.LLMAPIKey)

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", false); err != nil {
		return Config{}, err
	}
	if cfg.LLMMaxAttempts, err = intFromEnv("LLM_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.LLMAttemptTimeout, err = durationFromEnv("LLM_ATTEMPT_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LLMRetryBackoff, err = durationFromEnv("LLM_RETRY_BACKOFF", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LLMRateLimitWait, err = durationFromEnv("LLM_RATE_LIMIT_BACKOFF", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LLMIntentCacheSize, err = intFromEnv("LLM_INTENT_CACHE_SIZE", 128); err != nil {
		return Config{}, err
	}
	if cfg.MemoryCapacity, err = intFromEnv("MEMORY_CAPACITY", memory.DefaultCapacity); err != nil {
		return Config{}, err
	}
	if cfg.MemoryEviction, err = memory.ParseEvictionPolicy(strings.ToLower(trimmed("MEMORY_EVICTION"))); err != nil {
		return Config{}, fmt.Errorf("MEMORY_EVICTION: %w", err)
	}
	if raw := trimmed("MEMORY_ENCRYPTION_KEY"); raw != "" {
		if cfg.MemoryEncryptionKey, err = memory.ParseKey(raw); err != nil {
			return Config{}, fmt.Errorf("MEMORY_ENCRYPTION_KEY: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.LLMMaxAttempts <= 0 {
		return fmt.Errorf("LLM_MAX_ATTEMPTS must be positive")
	}
	if c.LLMAttemptTimeout <= 0 {
		return fmt.Errorf("LLM_ATTEMPT_TIMEOUT must be positive")
	}
	if c.LLMRetryBackoff < 0 || c.LLMRateLimitWait < 0 {
		return fmt.Errorf("LLM backoff durations must be >= 0")
	}
	if c.LLMIntentCacheSize <= 0 {
		return fmt.Errorf("LLM_INTENT_CACHE_SIZE must be positive")
	}
	if c.MemoryCapacity <= 0 {
		return fmt.Errorf("MEMORY_CAPACITY must be positive")
	}
	if _, err := persona.Parse(c.Persona); err != nil {
		return fmt.Errorf("PERSONA: %w", err)
	}
	switch c.MemoryJournal {
	case "none", "":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("MEMORY_JOURNAL=postgres requires DATABASE_URL")
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("MEMORY_JOURNAL=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("MEMORY_JOURNAL must be none, postgres or redis")
	}
	switch c.VoiceProvider {
	case "auto", "http", "mock", "none":
	default:
		return fmt.Errorf("VOICE_PROVIDER must be auto, http, mock or none")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := trimmed(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
