package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	LLMProvider    string
	APIKey         string
	KeySanitized   bool // credential contained whitespace that was stripped
	OpenAIBaseURL  string
	ChatModel      string
	EmbeddingModel string

	HTTPPort    string
	LogLevel    string
	LogFilePath string
	Environment string

	SessionTTL          time.Duration
	ReaperInterval      time.Duration
	FrontendOrigin      string
	ProviderTimeout     time.Duration
	ContextCharBudget   int
	MaxUploadBytes      int64
	QueryEmbedCacheSize int
	QueryEmbedCacheTTL  time.Duration
	EnvFileLoaded       bool
}

var AppConfig Config

// LoadConfig populates AppConfig from the environment, reading envFile first
// when it exists.
func LoadConfig(envFile string) error {
	cfg, err := Load(envFile)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

func Load(envFile string) (Config, error) {
	loaded := false
	if envFile != "" {
		loaded = godotenv.Load(envFile) == nil
	}

	cfg := Config{
		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", ProviderGemini))),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ChatModel:           getEnv("CHAT_MODEL", ""),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", ""),
		HTTPPort:            getEnv("HTTP_PORT", "8000"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		LogFilePath:         getEnv("LOG_FILE_PATH", "quizzio.log"),
		Environment:         getEnv("APP_ENV", "development"),
		SessionTTL:          time.Duration(getEnvAsInt("SESSION_TTL_MINUTES", 30)) * time.Minute,
		ReaperInterval:      time.Duration(getEnvAsInt("REAPER_INTERVAL_SECONDS", 60)) * time.Second,
		FrontendOrigin:      getEnv("FRONTEND_ORIGIN", "http://localhost:3000"),
		ProviderTimeout:     time.Duration(getEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 60)) * time.Second,
		ContextCharBudget:   getEnvAsInt("CONTEXT_CHAR_BUDGET", 12000),
		MaxUploadBytes:      int64(getEnvAsInt("MAX_UPLOAD_MB", 20)) << 20,
		QueryEmbedCacheSize: getEnvAsInt("QUERY_EMBEDDING_CACHE_SIZE", 512),
		QueryEmbedCacheTTL:  time.Duration(getEnvAsInt("QUERY_EMBEDDING_CACHE_TTL_MINUTES", 30)) * time.Minute,
		EnvFileLoaded:       loaded,
	}

	var rawKey string
	switch cfg.LLMProvider {
	case ProviderGemini:
		rawKey = getEnv("GEMINI_API_KEY", "")
		cfg.ChatModel = orDefault(cfg.ChatModel, "gemini-1.5-flash-latest")
		cfg.EmbeddingModel = orDefault(cfg.EmbeddingModel, "text-embedding-004")
	case ProviderOpenAI:
		rawKey = getEnv("OPENAI_API_KEY", "")
		cfg.ChatModel = orDefault(cfg.ChatModel, "gpt-3.5-turbo")
		cfg.EmbeddingModel = orDefault(cfg.EmbeddingModel, "text-embedding-3-small")
	default:
		return Config{}, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
	cfg.APIKey = SanitizeKey(rawKey)
	cfg.KeySanitized = cfg.APIKey != rawKey

	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("SESSION_TTL_MINUTES must be positive")
	}
	if cfg.ReaperInterval <= 0 {
		return Config{}, fmt.Errorf("REAPER_INTERVAL_SECONDS must be positive")
	}
	return cfg, nil
}

// SanitizeKey removes every whitespace character from a credential. Keys
// pasted with a trailing newline otherwise produce illegal header values.
func SanitizeKey(raw string) string {
	return strings.Join(strings.Fields(raw), "")
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
