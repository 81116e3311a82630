package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL string
	Port        string
	Env         string
	LogLevel    string

	RedisURL     string
	DedupTTL     time.Duration
	NATSURL      string
	AlertPrefix  string
	AlertBuffer  int
	AdminPhone   string
	AdminSession string

	// Gateway
	WhatsAppProvider string
	EvolutionBaseURL string
	EvolutionAPIKey  string
	WAHABaseURL      string
	WAHAAPIKey       string
	GatewayTimeout   time.Duration

	// AI backend
	LLMProvider string
	LLMModel    string
	OpenAIKey   string
	GroqKey     string
	DeepSeekKey string
	ClaudeKey   string
	GeminiKey   string
	LLMTimeout  time.Duration

	FallbackReply   string
	PipelineTimeout time.Duration

	// Billing policy
	CharsPerToken        int
	SystemOverheadTokens int
	MinChargeTokens      int
	TokensPerCredit      int
	MinChargeCredits     int64

	ReconcileSchedule string
	PendingStaleAfter time.Duration
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("⚠️ .env file not found, using system environment variables")
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Port:        os.Getenv("PORT"),
		Env:         os.Getenv("ENV"),
		LogLevel:    os.Getenv("LOG_LEVEL"),

		RedisURL:     os.Getenv("REDIS_URL"),
		DedupTTL:     time.Duration(getInt("DEDUP_TTL_HOURS", 24)) * time.Hour,
		NATSURL:      os.Getenv("NATS_URL"),
		AlertPrefix:  os.Getenv("ALERT_SUBJECT_PREFIX"),
		AlertBuffer:  getInt("ALERT_BUFFER", 256),
		AdminPhone:   os.Getenv("ADMIN_PHONE"),
		AdminSession: os.Getenv("ADMIN_SESSION"),

		WhatsAppProvider: os.Getenv("WHATSAPP_PROVIDER"),
		EvolutionBaseURL: os.Getenv("EVOLUTION_BASE_URL"),
		EvolutionAPIKey:  os.Getenv("EVOLUTION_API_KEY"),
		WAHABaseURL:      os.Getenv("WAHA_BASE_URL"),
		WAHAAPIKey:       os.Getenv("WAHA_API_KEY"),
		GatewayTimeout:   time.Duration(getInt("GATEWAY_TIMEOUT_SECONDS", 15)) * time.Second,

		LLMProvider: os.Getenv("LLM_PROVIDER"),
		LLMModel:    os.Getenv("LLM_MODEL"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		GroqKey:     os.Getenv("GROQ_API_KEY"),
		DeepSeekKey: os.Getenv("DEEPSEEK_API_KEY"),
		ClaudeKey:   os.Getenv("CLAUDE_API_KEY"),
		GeminiKey:   os.Getenv("GEMINI_API_KEY"),
		LLMTimeout:  time.Duration(getInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,

		FallbackReply:   os.Getenv("FALLBACK_REPLY"),
		PipelineTimeout: time.Duration(getInt("PIPELINE_TIMEOUT_SECONDS", 90)) * time.Second,

		CharsPerToken:        getInt("BILLING_CHARS_PER_TOKEN", 4),
		SystemOverheadTokens: getInt("BILLING_SYSTEM_OVERHEAD_TOKENS", 20),
		MinChargeTokens:      getInt("BILLING_MIN_CHARGE_TOKENS", 50),
		TokensPerCredit:      getInt("BILLING_TOKENS_PER_CREDIT", 1000),
		MinChargeCredits:     int64(getInt("BILLING_MIN_CHARGE_CREDITS", 1)),

		ReconcileSchedule: os.Getenv("RECONCILE_SCHEDULE"),
		PendingStaleAfter: time.Duration(getInt("PENDING_STALE_AFTER_MINUTES", 15)) * time.Minute,
	}

	// Default values
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AlertPrefix == "" {
		cfg.AlertPrefix = "alerts"
	}
	if cfg.WhatsAppProvider == "" {
		cfg.WhatsAppProvider = "evolution"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "openai"
	}
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = "Sorry, we are having trouble answering right now. Please try again in a moment."
	}
	if cfg.ReconcileSchedule == "" {
		cfg.ReconcileSchedule = "0 */5 * * * *"
	}
	// A message younger than the pipeline timeout may still be in flight.
	if cfg.PendingStaleAfter <= cfg.PipelineTimeout {
		stale := 2 * cfg.PipelineTimeout
		log.Warn().
			Dur("pending_stale_after", cfg.PendingStaleAfter).
			Dur("pipeline_timeout", cfg.PipelineTimeout).
			Dur("using", stale).
			Msg("⚠️ Pending stale window must exceed the pipeline timeout")
		cfg.PendingStaleAfter = stale
	}

	return cfg
}

// IsProduction reports whether ENV is set to production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Int("default", fallback).Msg("⚠️ Invalid integer setting, using default")
		return fallback
	}
	return v
}
