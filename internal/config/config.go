package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backend names.
const (
	BackendFile    = "file"
	BackendSurreal = "surrealdb"
)

// LLM provider names.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// Storage backend
	StoreBackend string
	StatePath    string // file backend state file

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Orchestration
	Workers          int
	ExtractorTimeout time.Duration
	StaleAfter       time.Duration

	// Extractors
	ExtractorConfigPath string

	// LLM
	LLMProvider     string
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		StoreBackend: getEnv("MEMGEN_STORE_BACKEND", BackendFile),
		StatePath:    getEnv("MEMGEN_STATE_PATH", "/tmp/memgen-state.json"),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "memgen"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "generation"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		Workers:          getEnvInt("MEMGEN_WORKERS", 5),
		ExtractorTimeout: getEnvDuration("MEMGEN_EXTRACTOR_TIMEOUT", 300*time.Second),
		StaleAfter:       getEnvDuration("MEMGEN_LOCK_STALE_AFTER", 15*time.Minute),

		ExtractorConfigPath: getEnv("MEMGEN_EXTRACTOR_CONFIG", "extractors.yaml"),

		LLMProvider:     getEnv("MEMGEN_LLM_PROVIDER", ProviderOllama),
		LLMModel:        getEnv("MEMGEN_LLM_MODEL", "llama3.1"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		LogFile:  getEnv("MEMGEN_LOG_FILE", "/tmp/memgen.log"),
		LogLevel: parseLogLevel(getEnv("MEMGEN_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
