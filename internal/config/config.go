package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// LLM provider selection: "groq" (default), "gemini", or "bedrock".
	// When a fallback provider is configured it wraps the primary.
	LLMProvider         string
	FallbackLLMProvider string

	GroqAPIKey         string
	GroqBaseURL        string
	GroqModelID        string
	GroqWhisperModelID string
	GroqTimeout        time.Duration

	GeminiAPIKey  string
	GeminiModelID string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	BedrockModelID      string

	// Language hint passed to speech-to-text.
	TranscriptionLanguage string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AuditTrailPath string

	AdminJWTSecret string

	// SendGrid alert escalation (optional; no-op channel when unset)
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	AlertEmailTo      string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "groq"))),
		FallbackLLMProvider: strings.ToLower(strings.TrimSpace(getEnv("FALLBACK_LLM_PROVIDER", ""))),

		GroqAPIKey:         getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:        getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModelID:        getEnv("GROQ_MODEL_ID", "openai/gpt-oss-120b"),
		GroqWhisperModelID: getEnv("GROQ_WHISPER_MODEL_ID", "whisper-large-v3"),
		GroqTimeout:        getEnvAsDuration("GROQ_TIMEOUT", 60*time.Second),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),

		TranscriptionLanguage: getEnv("TRANSCRIPTION_LANGUAGE", "es"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AuditTrailPath: getEnv("AUDIT_TRAIL_PATH", "emotion_events.log"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "SerenAI Alerts"),
		AlertEmailTo:      getEnv("ALERT_EMAIL_TO", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping empties.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
